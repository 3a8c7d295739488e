package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// Provider is the closed contract every vendor integration conforms to. The
// layer normalizes vendor protocols; it never mutates orders itself.
type Provider interface {
	ID() enums.ProviderID
	Enabled() bool
	Balance(ctx context.Context) (decimal.Decimal, error)
	Catalog(ctx context.Context) ([]CatalogItem, error)
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	CheckStatus(ctx context.Context, vendorOrderID string) (*StatusResult, error)
	Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error
	// MapSelector translates an internal selector code into the vendor's own
	// code, defaulting to identity when no mapping is configured.
	MapSelector(code string) string
}

// CatalogItem is one purchasable unit from a vendor catalog listing.
type CatalogItem struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Country  string          `json:"country,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// PlaceOrderInput carries the normalized purchase request.
type PlaceOrderInput struct {
	UserID       uuid.UUID
	SelectorCode string
	Quantity     int
	Target       *string
}

// PlaceOrderResult is the normalized outcome of a successful vendor placement.
type PlaceOrderResult struct {
	VendorOrderID string
	Price         decimal.Decimal
	ExpiresAt     *time.Time
}

// StatusResult is one observation of a vendor order. Status carries the
// canonical mapping of VendorStatus; Payload holds any delivered value.
type StatusResult struct {
	VendorStatus string
	Status       enums.OrderStatus
	Payload      json.RawMessage
}

// CallTimeouts separates the interactive purchase call budget from the longer
// background reconciliation budget.
type CallTimeouts struct {
	Interactive time.Duration
	Background  time.Duration
}

// DefaultCallTimeouts returns the timeouts used when config leaves them unset.
func DefaultCallTimeouts() CallTimeouts {
	return CallTimeouts{Interactive: 8 * time.Second, Background: 30 * time.Second}
}

func (t CallTimeouts) interactive() time.Duration {
	if t.Interactive <= 0 {
		return DefaultCallTimeouts().Interactive
	}
	return t.Interactive
}

func (t CallTimeouts) background() time.Duration {
	if t.Background <= 0 {
		return DefaultCallTimeouts().Background
	}
	return t.Background
}

// WithInteractiveTimeout bounds a purchase-path vendor call.
func (t CallTimeouts) WithInteractiveTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.interactive())
}

// WithBackgroundTimeout bounds a reconciliation-path vendor call.
func (t CallTimeouts) WithBackgroundTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.background())
}
