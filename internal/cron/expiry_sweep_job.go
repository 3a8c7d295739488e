package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

const sweepBatchSize = 200

// expiryCandidateReader is the narrow read surface the sweep needs.
type expiryCandidateReader interface {
	ListExpiryCandidates(ctx context.Context, category enums.OrderCategory, now time.Time, ceiling time.Duration, limit int) ([]models.Order, error)
}

// sweepApplier commits reconciliation outcomes; implemented by the reconcile
// engine.
type sweepApplier interface {
	Apply(ctx context.Context, orderID uuid.UUID, obs orders.Observation) (*models.Order, error)
	ForceExpire(ctx context.Context, order *models.Order) error
}

// ExpirySweepJobParams configure the expiry sweep safety net.
type ExpirySweepJobParams struct {
	Logger   *logger.Logger
	Reader   expiryCandidateReader
	Applier  sweepApplier
	Registry *providers.Registry
	Config   config.ReconcileConfig
	Batch    int
}

// NewExpirySweepJob builds the batch pass that guarantees every overdue
// phone order eventually leaves its active status, even when its poll chain
// was lost to a crash.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("applier required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = sweepBatchSize
	}
	return &expirySweepJob{
		logg:     params.Logger,
		reader:   params.Reader,
		applier:  params.Applier,
		registry: params.Registry,
		cfg:      params.Config,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type expirySweepJob struct {
	logg     *logger.Logger
	reader   expiryCandidateReader
	applier  sweepApplier
	registry *providers.Registry
	cfg      config.ReconcileConfig
	batch    int
	now      func() time.Time
}

func (j *expirySweepJob) Name() string { return "expiry-sweep" }

func (j *expirySweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.reader.ListExpiryCandidates(ctx, enums.OrderCategoryPhone, now, j.cfg.OrderSafetyCeiling, j.batch)
	if err != nil {
		return fmt.Errorf("query expiry candidates: %w", err)
	}

	resolved, forced := 0, 0
	var errs []error
	for i := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		order := candidates[i]
		wasForced, err := j.sweepOne(ctx, &order)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep order %s: %w", order.ID, err))
			continue
		}
		if wasForced {
			forced++
		} else {
			resolved++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"resolved":   resolved,
		"forced":     forced,
	})
	j.logg.Info(logCtx, "expiry sweep complete")
	return multierr.Combine(errs...)
}

// sweepOne queries the vendor once. A status that resolves the order without
// expiring it is applied normally; anything else (vendor unreachable, still
// unresolved, or expired vendor-side) goes down the forced-expiry path.
func (j *expirySweepJob) sweepOne(ctx context.Context, order *models.Order) (forced bool, err error) {
	ctx = j.logg.WithOrderID(ctx, order.ID.String())

	status, checkErr := j.checkVendor(ctx, order)
	if checkErr != nil {
		j.logg.Warn(j.logg.WithProvider(ctx, order.Provider.String()), "vendor unresolvable during sweep, forcing expiry")
		return true, j.applier.ForceExpire(ctx, order)
	}
	if status.Status.IsActive() || status.Status == enums.OrderStatusExpired {
		return true, j.applier.ForceExpire(ctx, order)
	}

	_, err = j.applier.Apply(ctx, order.ID, orders.Observation{
		VendorStatus: status.VendorStatus,
		Status:       status.Status,
		Payload:      status.Payload,
	})
	return false, err
}

func (j *expirySweepJob) checkVendor(ctx context.Context, order *models.Order) (*providers.StatusResult, error) {
	provider, err := j.registry.Get(order.Provider)
	if err != nil {
		return nil, err
	}
	return provider.CheckStatus(ctx, order.ProviderOrderID)
}
