package providers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/virtuline/virtuline-backend/pkg/enums"
)

// Instrument wraps a provider so every call produces a telemetry record,
// regardless of outcome.
func Instrument(p Provider, telemetry *Telemetry) Provider {
	if p == nil || telemetry == nil {
		return p
	}
	return &instrumented{next: p, telemetry: telemetry}
}

type instrumented struct {
	next      Provider
	telemetry *Telemetry
}

func (i *instrumented) ID() enums.ProviderID { return i.next.ID() }

func (i *instrumented) Enabled() bool { return i.next.Enabled() }

func (i *instrumented) MapSelector(code string) string { return i.next.MapSelector(code) }

func (i *instrumented) Balance(ctx context.Context) (decimal.Decimal, error) {
	start := time.Now()
	balance, err := i.next.Balance(ctx)
	i.telemetry.Record(ctx, i.next.ID(), "balance", err, time.Since(start))
	return balance, err
}

func (i *instrumented) Catalog(ctx context.Context) ([]CatalogItem, error) {
	start := time.Now()
	items, err := i.next.Catalog(ctx)
	i.telemetry.Record(ctx, i.next.ID(), "catalog", err, time.Since(start))
	return items, err
}

func (i *instrumented) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	ctx = WithInitiator(ctx, input.UserID)
	start := time.Now()
	result, err := i.next.PlaceOrder(ctx, input)
	i.telemetry.Record(ctx, i.next.ID(), "place_order", err, time.Since(start))
	return result, err
}

func (i *instrumented) CheckStatus(ctx context.Context, vendorOrderID string) (*StatusResult, error) {
	start := time.Now()
	result, err := i.next.CheckStatus(ctx, vendorOrderID)
	i.telemetry.Record(ctx, i.next.ID(), "check_status", err, time.Since(start))
	return result, err
}

func (i *instrumented) Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error {
	start := time.Now()
	err := i.next.Terminate(ctx, vendorOrderID, action)
	i.telemetry.Record(ctx, i.next.ID(), "terminate_"+action.String(), err, time.Since(start))
	return err
}
