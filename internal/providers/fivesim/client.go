package fivesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

const defaultBaseURL = "https://5sim.net"

// Client integrates the 5sim virtual number API (bearer token auth).
type Client struct {
	enabled     bool
	baseURL     string
	token       string
	httpClient  *http.Client
	timeouts    providers.CallTimeouts
	countryMap  map[string]string
	serviceMap  map[string]string
	logg        *logger.Logger
}

// New validates credentials and builds the 5sim conformance.
func New(cfg config.FiveSimConfig, timeouts providers.CallTimeouts, logg *logger.Logger) (*Client, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("fivesim api token is required when enabled")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		enabled:    cfg.Enabled,
		baseURL:    base,
		token:      strings.TrimSpace(cfg.APIToken),
		httpClient: &http.Client{},
		timeouts:   timeouts,
		countryMap: config.SelectorMap(cfg.CountryCodes),
		serviceMap: config.SelectorMap(cfg.ServiceCodes),
		logg:       logg,
	}, nil
}

func (c *Client) ID() enums.ProviderID { return enums.ProviderFiveSim }

func (c *Client) Enabled() bool { return c.enabled }

// MapSelector resolves "country:service" selectors through the configured
// code maps, falling back to identity per side.
func (c *Client) MapSelector(code string) string {
	country, service, ok := splitSelector(code)
	if !ok {
		return code
	}
	if mapped, found := c.countryMap[country]; found {
		country = mapped
	}
	if mapped, found := c.serviceMap[service]; found {
		service = mapped
	}
	return country + ":" + service
}

func splitSelector(code string) (country, service string, ok bool) {
	parts := strings.SplitN(code, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type profileResponse struct {
	Balance float64 `json:"balance"`
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.get(ctx, "/v1/user/profile")
	if err != nil {
		return decimal.Zero, err
	}
	var profile profileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fivesim profile")
	}
	return decimal.NewFromFloat(profile.Balance), nil
}

type countryEntry struct {
	Text string `json:"text_en"`
}

func (c *Client) Catalog(ctx context.Context) ([]providers.CatalogItem, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.get(ctx, "/v1/guest/countries")
	if err != nil {
		return nil, err
	}
	countries := map[string]countryEntry{}
	if err := json.Unmarshal(body, &countries); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fivesim countries")
	}
	items := make([]providers.CatalogItem, 0, len(countries))
	for code, entry := range countries {
		items = append(items, providers.CatalogItem{
			Code:     code,
			Name:     entry.Text,
			Country:  code,
			Currency: "RUB",
		})
	}
	return items, nil
}

type buyResponse struct {
	ID      int64   `json:"id"`
	Phone   string  `json:"phone"`
	Price   float64 `json:"price"`
	Status  string  `json:"status"`
	Expires string  `json:"expires"`
}

func (c *Client) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	country, service, ok := splitSelector(c.MapSelector(input.SelectorCode))
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeVendorRejected, fmt.Sprintf("invalid selector %q, want country:service", input.SelectorCode))
	}

	ctx, cancel := c.timeouts.WithInteractiveTimeout(ctx)
	defer cancel()

	body, err := c.get(ctx, fmt.Sprintf("/v1/user/buy/activation/%s/any/%s", country, service))
	if err != nil {
		return nil, err
	}
	var resp buyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fivesim buy response")
	}
	if resp.ID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeVendorRejected, "fivesim returned no activation id")
	}

	result := &providers.PlaceOrderResult{
		VendorOrderID: fmt.Sprintf("%d", resp.ID),
		Price:         decimal.NewFromFloat(resp.Price),
	}
	if expires, parseErr := time.Parse(time.RFC3339, resp.Expires); parseErr == nil {
		result.ExpiresAt = &expires
	}
	return result, nil
}

type checkResponse struct {
	Status string `json:"status"`
	Phone  string `json:"phone"`
	SMS    []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"sms"`
}

// activationPayload is the fulfillment value delivered for phone orders.
type activationPayload struct {
	Phone string   `json:"phone"`
	Codes []string `json:"codes"`
}

func (c *Client) CheckStatus(ctx context.Context, vendorOrderID string) (*providers.StatusResult, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.get(ctx, "/v1/user/check/"+vendorOrderID)
	if err != nil {
		return nil, err
	}
	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fivesim check response")
	}

	result := &providers.StatusResult{
		VendorStatus: resp.Status,
		Status:       MapStatus(resp.Status),
	}
	if len(resp.SMS) > 0 {
		payload := activationPayload{Phone: resp.Phone}
		for _, sms := range resp.SMS {
			payload.Codes = append(payload.Codes, sms.Code)
		}
		raw, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, marshalErr, "encode activation payload")
		}
		result.Payload = raw
	}
	return result, nil
}

var terminatePaths = map[enums.TerminalAction]string{
	enums.TerminalActionFinish: "/v1/user/finish/",
	enums.TerminalActionCancel: "/v1/user/cancel/",
	enums.TerminalActionBan:    "/v1/user/ban/",
}

func (c *Client) Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error {
	path, ok := terminatePaths[action]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeVendorRejected, fmt.Sprintf("fivesim does not support %s", action))
	}

	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	_, err := c.get(ctx, path+vendorOrderID)
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build fivesim request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorUnreachable, err, "fivesim request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorUnreachable, err, "read fivesim response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, pkgerrors.New(pkgerrors.CodeVendorUnreachable, fmt.Sprintf("fivesim returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, pkgerrors.New(pkgerrors.CodeVendorRejected, msg)
	}
	return body, nil
}
