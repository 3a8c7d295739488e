package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

// PollScheduler is the persistence surface the worker drains.
type PollScheduler interface {
	Schedule(ctx context.Context, orderID uuid.UUID, at time.Time) error
	Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error)
	Remove(ctx context.Context, orderID uuid.UUID) error
}

// Applier commits reconciliation outcomes. Implemented by Engine.
type Applier interface {
	Apply(ctx context.Context, orderID uuid.UUID, obs orders.Observation) (*models.Order, error)
	ForceExpire(ctx context.Context, order *models.Order) error
}

// Worker drains due poll markers and requeries vendors one order at a time.
// Each unit of work either schedules its own successor (order still active),
// retries after a fixed delay (vendor unreachable, bounded), or ends the
// chain (terminal state or retries exhausted, leaving the sweep to finish).
type Worker struct {
	scheduler PollScheduler
	applier   Applier
	repo      orders.Repository
	registry  *providers.Registry
	logg      *logger.Logger
	cfg       config.ReconcileConfig
	tick      time.Duration
	batch     int64
	now       func() time.Time

	retries map[uuid.UUID]int
}

// WorkerParams wires the polling worker dependencies.
type WorkerParams struct {
	Scheduler PollScheduler
	Applier   Applier
	Repo      orders.Repository
	Registry  *providers.Registry
	Logger    *logger.Logger
	Config    config.ReconcileConfig
	Tick      time.Duration
	Batch     int64
	Now       func() time.Time
}

// NewWorker validates dependencies and constructs the polling worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Scheduler == nil {
		return nil, fmt.Errorf("poll scheduler required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("applier required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	tick := params.Tick
	if tick <= 0 {
		tick = 5 * time.Second
	}
	batch := params.Batch
	if batch <= 0 {
		batch = 50
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		scheduler: params.Scheduler,
		applier:   params.Applier,
		repo:      params.Repo,
		registry:  params.Registry,
		logg:      params.Logger,
		cfg:       params.Config,
		tick:      tick,
		batch:     batch,
		now:       now,
		retries:   map[uuid.UUID]int{},
	}, nil
}

// Run drains due markers until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	w.logg.Info(ctx, "poll worker started")
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "poll worker stopping")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain processes every currently due poll marker once.
func (w *Worker) Drain(ctx context.Context) {
	due, err := w.scheduler.Due(ctx, w.now(), w.batch)
	if err != nil {
		w.logg.Error(ctx, "reading due poll markers failed", err)
		return
	}
	for _, orderID := range due {
		if ctx.Err() != nil {
			return
		}
		w.Process(ctx, orderID)
	}
}

// Process runs one poll unit for one order.
func (w *Worker) Process(ctx context.Context, orderID uuid.UUID) {
	ctx = w.logg.WithOrderID(ctx, orderID.String())

	order, err := w.repo.FindByID(ctx, orderID)
	if err != nil {
		w.logg.Warn(ctx, "scheduled order not loadable, dropping poll marker")
		w.endChain(ctx, orderID)
		return
	}
	if order.Status.IsFinal() {
		w.endChain(ctx, orderID)
		return
	}

	now := w.now()
	if order.ExpiresAt != nil && now.After(*order.ExpiresAt) {
		if err := w.applier.ForceExpire(ctx, order); err != nil {
			w.logg.Error(ctx, "forced expiry failed", err)
			w.rescheduleRetry(ctx, orderID)
			return
		}
		w.endChain(ctx, orderID)
		return
	}

	provider, err := w.registry.Get(order.Provider)
	if err != nil {
		w.logg.Error(ctx, "order references unregistered provider", err)
		w.endChain(ctx, orderID)
		return
	}

	status, err := provider.CheckStatus(ctx, order.ProviderOrderID)
	if err != nil {
		if isRetryable(err) {
			w.rescheduleRetry(ctx, orderID)
			return
		}
		w.logg.Error(ctx, "status check failed", err)
		w.rescheduleRetry(ctx, orderID)
		return
	}
	delete(w.retries, orderID)

	applied, err := w.applier.Apply(ctx, orderID, orders.Observation{
		VendorStatus: status.VendorStatus,
		Status:       status.Status,
		Payload:      status.Payload,
	})
	if err != nil {
		w.logg.Error(ctx, "applying poll result failed", err)
		w.rescheduleRetry(ctx, orderID)
		return
	}

	if applied.Status.IsActive() {
		if err := w.scheduler.Schedule(ctx, orderID, w.now().Add(w.cfg.PollInterval)); err != nil {
			w.logg.Warn(ctx, "scheduling successor poll failed")
		}
		return
	}
	w.endChain(ctx, orderID)
}

// rescheduleRetry requeues the identical check after the retry delay, up to
// the configured bound. Past the bound the chain ends and the expiry sweep
// becomes the order's resolution path.
func (w *Worker) rescheduleRetry(ctx context.Context, orderID uuid.UUID) {
	w.retries[orderID]++
	if w.retries[orderID] > w.cfg.PollMaxRetries {
		w.logg.Warn(ctx, "poll retries exhausted, deferring to expiry sweep")
		w.endChain(ctx, orderID)
		return
	}
	if err := w.scheduler.Schedule(ctx, orderID, w.now().Add(w.cfg.PollRetryDelay)); err != nil {
		w.logg.Warn(ctx, "scheduling poll retry failed")
	}
}

func (w *Worker) endChain(ctx context.Context, orderID uuid.UUID) {
	delete(w.retries, orderID)
	if err := w.scheduler.Remove(ctx, orderID); err != nil {
		w.logg.Warn(ctx, "removing poll marker failed")
	}
}

func isRetryable(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeVendorUnreachable
}
