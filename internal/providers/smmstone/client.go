package smmstone

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
)

const (
	defaultBaseURL  = "https://smmstone.com/api/v2"
	formContentType = "application/x-www-form-urlencoded"
)

// Client integrates the SMM panel API. Every call is a form POST carrying the
// api key plus a sign field derived from key and action.
type Client struct {
	enabled    bool
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeouts   providers.CallTimeouts
	serviceMap map[string]string
}

func New(cfg config.SmmStoneConfig, timeouts providers.CallTimeouts) (*Client, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("smmstone api key is required when enabled")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		enabled:    cfg.Enabled,
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{},
		timeouts:   timeouts,
		serviceMap: config.SelectorMap(cfg.ServiceCodes),
	}, nil
}

func (c *Client) ID() enums.ProviderID { return enums.ProviderSmmStone }

func (c *Client) Enabled() bool { return c.enabled }

func (c *Client) MapSelector(code string) string {
	if mapped, found := c.serviceMap[code]; found {
		return mapped
	}
	return code
}

func (c *Client) sign(action string) string {
	sum := md5.Sum([]byte(c.apiKey + action))
	return hex.EncodeToString(sum[:])
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.post(ctx, "balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	balance, _, parseErr := ParseBalance(body)
	if parseErr != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, parseErr, "smmstone balance")
	}
	return decimal.NewFromFloat(balance), nil
}

type serviceEntry struct {
	Service  flexValue `json:"service"`
	Name     string    `json:"name"`
	Rate     flexValue `json:"rate"`
	Category string    `json:"category"`
}

func (c *Client) Catalog(ctx context.Context) ([]providers.CatalogItem, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.post(ctx, "services", nil)
	if err != nil {
		return nil, err
	}
	var services []serviceEntry
	if err := json.Unmarshal(body, &services); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode smmstone services")
	}
	items := make([]providers.CatalogItem, 0, len(services))
	for _, entry := range services {
		item := providers.CatalogItem{
			Code:     entry.Service.String(),
			Name:     entry.Name,
			Currency: "USD",
		}
		if rate, ok := entry.Rate.Float(); ok {
			item.Price = decimal.NewFromFloat(rate)
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	if input.Target == nil || strings.TrimSpace(*input.Target) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeVendorRejected, "smmstone orders require a target link")
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	ctx, cancel := c.timeouts.WithInteractiveTimeout(ctx)
	defer cancel()

	body, err := c.post(ctx, "add", url.Values{
		"service":  {c.MapSelector(input.SelectorCode)},
		"link":     {strings.TrimSpace(*input.Target)},
		"quantity": {strconv.Itoa(quantity)},
	})
	if err != nil {
		return nil, err
	}
	orderID, parseErr := ParseOrderID(body)
	if parseErr != nil {
		// keep the panel's own reason in the message so the purchase
		// caller sees why the order was rejected
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorRejected, parseErr, fmt.Sprintf("smmstone add order: %v", parseErr))
	}
	return &providers.PlaceOrderResult{VendorOrderID: orderID}, nil
}

// deliveryPayload is the fulfillment value recorded for panel orders.
type deliveryPayload struct {
	StartCount int64   `json:"start_count"`
	Remains    int64   `json:"remains"`
	Delivered  int64   `json:"delivered"`
	Charge     float64 `json:"charge"`
}

func (c *Client) CheckStatus(ctx context.Context, vendorOrderID string) (*providers.StatusResult, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.post(ctx, "status", url.Values{"order": {vendorOrderID}})
	if err != nil {
		return nil, err
	}
	fields, parseErr := ParseStatus(body)
	if parseErr != nil {
		// An unparseable status read is ambiguous, not a verdict on the
		// order. Callers leave the order untouched and try again later.
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, parseErr, "smmstone status")
	}

	result := &providers.StatusResult{
		VendorStatus: fields.Status,
		Status:       MapStatus(fields.Status),
	}
	if fields.HasCounts {
		raw, marshalErr := json.Marshal(deliveryPayload{
			StartCount: fields.StartCount,
			Remains:    fields.Remains,
			Delivered:  fields.StartCount - fields.Remains,
			Charge:     fields.Charge,
		})
		if marshalErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, marshalErr, "encode delivery payload")
		}
		result.Payload = raw
	}
	return result, nil
}

var terminateActions = map[enums.TerminalAction]string{
	enums.TerminalActionCancel: "cancel",
	enums.TerminalActionRefill: "refill",
}

func (c *Client) Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error {
	vendorAction, ok := terminateActions[action]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeVendorRejected, fmt.Sprintf("smmstone does not support %s", action))
	}

	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.post(ctx, vendorAction, url.Values{"order": {vendorOrderID}})
	if err != nil {
		return err
	}
	if _, parseErr := decodeEnvelope(body); parseErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeVendorRejected, parseErr, "smmstone "+vendorAction)
	}
	return nil
}

func (c *Client) post(ctx context.Context, action string, params url.Values) ([]byte, error) {
	form := url.Values{}
	for key, values := range params {
		form[key] = values
	}
	form.Set("key", c.apiKey)
	form.Set("action", action)
	form.Set("sign", c.sign(action))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build smmstone request")
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorUnreachable, err, "smmstone request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorUnreachable, err, "read smmstone response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, pkgerrors.New(pkgerrors.CodeVendorUnreachable, fmt.Sprintf("smmstone returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, pkgerrors.New(pkgerrors.CodeVendorRejected, truncate(msg, 200))
	}
	return body, nil
}
