package esimgo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
)

const defaultBaseURL = "https://api.esim-go.com"

// Client integrates the eSIM Go API. Auth is an API key passed as a query
// parameter on every request; fulfillment arrives via status pulls or webhook
// pushes, both of which carry the SM-DP+ coordinates the payload is built from.
type Client struct {
	enabled    bool
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeouts   providers.CallTimeouts
	regionMap  map[string]string
}

func New(cfg config.EsimGoConfig, timeouts providers.CallTimeouts) (*Client, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("esimgo api key is required when enabled")
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
		regionMap:  config.SelectorMap(cfg.RegionCodes),
	}, nil
}

func (c *Client) ID() enums.ProviderID { return enums.ProviderEsimGo }

func (c *Client) Enabled() bool { return c.enabled }

func (c *Client) MapSelector(code string) string {
	if mapped, found := c.regionMap[code]; found {
		return mapped
	}
	return code
}

type organisationResponse struct {
	Balance float64 `json:"balance"`
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.call(ctx, http.MethodGet, "/v2.4/organisation", nil)
	if err != nil {
		return decimal.Zero, err
	}
	var org organisationResponse
	if err := json.Unmarshal(body, &org); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode esimgo organisation")
	}
	return decimal.NewFromFloat(org.Balance), nil
}

type catalogueResponse struct {
	Bundles []struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Country     string  `json:"country"`
		Price       float64 `json:"price"`
	} `json:"bundles"`
}

func (c *Client) Catalog(ctx context.Context) ([]providers.CatalogItem, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.call(ctx, http.MethodGet, "/v2.4/catalogue", nil)
	if err != nil {
		return nil, err
	}
	var catalogue catalogueResponse
	if err := json.Unmarshal(body, &catalogue); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode esimgo catalogue")
	}
	items := make([]providers.CatalogItem, 0, len(catalogue.Bundles))
	for _, bundle := range catalogue.Bundles {
		items = append(items, providers.CatalogItem{
			Code:     bundle.Name,
			Name:     bundle.Description,
			Country:  bundle.Country,
			Price:    decimal.NewFromFloat(bundle.Price),
			Currency: "USD",
		})
	}
	return items, nil
}

type orderRequest struct {
	Type  string `json:"type"`
	Order []struct {
		Type     string `json:"type"`
		Item     string `json:"item"`
		Quantity int    `json:"quantity"`
	} `json:"order"`
	Assign bool `json:"assign"`
}

type orderResponse struct {
	OrderReference string  `json:"orderReference"`
	Status         string  `json:"status"`
	Total          float64 `json:"total"`
}

func (c *Client) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	req := orderRequest{Type: "transaction", Assign: true}
	req.Order = append(req.Order, struct {
		Type     string `json:"type"`
		Item     string `json:"item"`
		Quantity int    `json:"quantity"`
	}{Type: "bundle", Item: c.MapSelector(input.SelectorCode), Quantity: quantity})

	ctx, cancel := c.timeouts.WithInteractiveTimeout(ctx)
	defer cancel()

	body, err := c.call(ctx, http.MethodPost, "/v2.4/orders", req)
	if err != nil {
		return nil, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode esimgo order response")
	}
	if resp.OrderReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeVendorRejected, "esimgo returned no order reference")
	}
	return &providers.PlaceOrderResult{
		VendorOrderID: resp.OrderReference,
		Price:         decimal.NewFromFloat(resp.Total),
	}, nil
}

type statusResponse struct {
	Status string `json:"status"`
	Esims  []struct {
		ICCID       string `json:"iccid"`
		SMDPAddress string `json:"smdpAddress"`
		MatchingID  string `json:"matchingId"`
	} `json:"esims"`
}

func (c *Client) CheckStatus(ctx context.Context, vendorOrderID string) (*providers.StatusResult, error) {
	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	body, err := c.call(ctx, http.MethodGet, "/v2.4/orders/"+url.PathEscape(vendorOrderID), nil)
	if err != nil {
		return nil, err
	}
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode esimgo status response")
	}

	result := &providers.StatusResult{
		VendorStatus: resp.Status,
		Status:       MapStatus(resp.Status),
	}
	if len(resp.Esims) > 0 {
		first := resp.Esims[0]
		if payload, ok := BuildPayload(first.ICCID, first.SMDPAddress, first.MatchingID); ok {
			result.Payload = payload
		}
	}
	return result, nil
}

func (c *Client) Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error {
	if action != enums.TerminalActionCancel {
		return pkgerrors.New(pkgerrors.CodeVendorRejected, fmt.Sprintf("esimgo does not support %s", action))
	}

	ctx, cancel := c.timeouts.WithBackgroundTimeout(ctx)
	defer cancel()

	_, err := c.call(ctx, http.MethodPost, "/v2.4/orders/"+url.PathEscape(vendorOrderID)+"/cancel", nil)
	return err
}

// Payload is the fulfillment value delivered for eSIM orders. Activation is
// the composite LPA string a handset consumes directly; it is derived, never
// read off the wire.
type Payload struct {
	ICCID       string `json:"iccid"`
	SMDPAddress string `json:"smdp_address"`
	MatchingID  string `json:"matching_id"`
	Activation  string `json:"activation"`
}

// BuildPayload assembles the eSIM fulfillment payload from SM-DP+ coordinates.
// It reports false when any coordinate is missing so an order is never
// completed on a partial profile.
func BuildPayload(iccid, smdpAddress, matchingID string) (json.RawMessage, bool) {
	iccid = strings.TrimSpace(iccid)
	smdpAddress = strings.TrimSpace(smdpAddress)
	matchingID = strings.TrimSpace(matchingID)
	if iccid == "" || smdpAddress == "" || matchingID == "" {
		return nil, false
	}
	raw, err := json.Marshal(Payload{
		ICCID:       iccid,
		SMDPAddress: smdpAddress,
		MatchingID:  matchingID,
		Activation:  fmt.Sprintf("LPA:1$%s$%s", smdpAddress, matchingID),
	})
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *Client) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode esimgo request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build esimgo request")
	}
	query := req.URL.Query()
	query.Set("apiKey", c.apiKey)
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorUnreachable, err, "esimgo request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVendorUnreachable, err, "read esimgo response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, pkgerrors.New(pkgerrors.CodeVendorUnreachable, fmt.Sprintf("esimgo returned %d", resp.StatusCode))
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
