package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine is the single write path for reconciliation events. Poll results,
// webhook bodies and forced expiries all funnel through Apply, which
// serializes per-order work with a row lock and commits the status flip, the
// payload attach and any refund in one transaction.
type Engine struct {
	repo     orders.Repository
	wallet   wallet.Service
	registry *providers.Registry
	db       TxRunner
	logg     *logger.Logger
	now      func() time.Time
}

// EngineParams wires the engine dependencies.
type EngineParams struct {
	Repo     orders.Repository
	Wallet   wallet.Service
	Registry *providers.Registry
	DB       TxRunner
	Logger   *logger.Logger
	Now      func() time.Time
}

// NewEngine validates dependencies and constructs the engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:     params.Repo,
		wallet:   params.Wallet,
		registry: params.Registry,
		db:       params.DB,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Apply evaluates one observation against the order and commits the outcome.
// It is safe to call concurrently for the same order; the row lock linearizes
// evaluations so the idempotency guard always sees the latest vendor status.
func (e *Engine) Apply(ctx context.Context, orderID uuid.UUID, obs orders.Observation) (*models.Order, error) {
	var applied *models.Order
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		ctx := e.logg.WithOrderID(ctx, order.ID.String())

		decision := orders.Evaluate(order, obs)
		if decision.Skip != orders.SkipNone {
			e.logg.Info(e.logg.WithField(ctx, "skip", string(decision.Skip)), "reconciliation event skipped")
			applied = order
			return nil
		}
		if decision.HeldForPayload {
			e.logg.Warn(ctx, "vendor reported completion without delivered value, holding order")
		}

		order.Status = decision.NextStatus
		// A held completion stays re-evaluable: recording the vendor status
		// now would make the duplicate guard swallow the retry that finally
		// carries the payload.
		if obs.VendorStatus != "" && !decision.HeldForPayload {
			order.VendorStatus = obs.VendorStatus
		}
		if len(decision.AttachPayload) > 0 {
			order.Payload = decision.AttachPayload
		}

		if decision.RefundDue {
			_, issued, err := e.wallet.RefundOrder(ctx, tx, order.ID, order.UserID, order.ChargedCents)
			if err != nil {
				return err
			}
			if issued {
				at := e.now()
				order.RefundIssuedAt = &at
				order.Status = enums.OrderStatusRefunded
				e.logg.Info(ctx, "order refunded")
			}
		}

		if err := repo.Save(ctx, order); err != nil {
			return err
		}
		applied = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Reconcile pulls the order's current vendor status and applies it.
func (e *Engine) Reconcile(ctx context.Context, orderID uuid.UUID) error {
	order, err := e.repo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsFinal() {
		return nil
	}

	provider, err := e.registry.Get(order.Provider)
	if err != nil {
		return err
	}
	status, err := provider.CheckStatus(ctx, order.ProviderOrderID)
	if err != nil {
		return err
	}

	_, err = e.Apply(ctx, order.ID, orders.Observation{
		VendorStatus: status.VendorStatus,
		Status:       status.Status,
		Payload:      status.Payload,
	})
	return err
}

// ForceExpire transitions an overdue order to expired, attempting a
// best-effort vendor cancel first. Cancel failures are logged and ignored;
// the expiry and its refund guard proceed regardless.
func (e *Engine) ForceExpire(ctx context.Context, order *models.Order) error {
	ctx = e.logg.WithOrderID(ctx, order.ID.String())

	if provider, err := e.registry.Get(order.Provider); err == nil {
		if err := provider.Terminate(ctx, order.ProviderOrderID, enums.TerminalActionCancel); err != nil {
			e.logg.Warn(e.logg.WithProvider(ctx, order.Provider.String()), "best-effort vendor cancel failed")
		}
	}

	_, err := e.Apply(ctx, order.ID, orders.ForcedExpiry())
	return err
}
