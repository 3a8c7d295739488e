package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

func sweepTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

type fakeCandidateReader struct {
	candidates []models.Order
	err        error
}

func (f *fakeCandidateReader) ListExpiryCandidates(ctx context.Context, category enums.OrderCategory, now time.Time, ceiling time.Duration, limit int) ([]models.Order, error) {
	return f.candidates, f.err
}

type appliedObservation struct {
	orderID uuid.UUID
	obs     orders.Observation
}

type fakeSweepApplier struct {
	applied    []appliedObservation
	forced     []uuid.UUID
	applyCalls int
	applyErr   error
}

func (f *fakeSweepApplier) Apply(ctx context.Context, orderID uuid.UUID, obs orders.Observation) (*models.Order, error) {
	f.applyCalls++
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, appliedObservation{orderID: orderID, obs: obs})
	return &models.Order{ID: orderID, Status: obs.Status}, nil
}

func (f *fakeSweepApplier) ForceExpire(ctx context.Context, order *models.Order) error {
	f.forced = append(f.forced, order.ID)
	return nil
}

type sweepStubProvider struct {
	id        enums.ProviderID
	status    *providers.StatusResult
	statusErr error
}

func (p *sweepStubProvider) ID() enums.ProviderID           { return p.id }
func (p *sweepStubProvider) Enabled() bool                  { return true }
func (p *sweepStubProvider) MapSelector(code string) string { return code }

func (p *sweepStubProvider) Balance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (p *sweepStubProvider) Catalog(ctx context.Context) ([]providers.CatalogItem, error) {
	return nil, nil
}

func (p *sweepStubProvider) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	return nil, nil
}

func (p *sweepStubProvider) CheckStatus(ctx context.Context, vendorOrderID string) (*providers.StatusResult, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return p.status, nil
}

func (p *sweepStubProvider) Terminate(ctx context.Context, vendorOrderID string, action enums.TerminalAction) error {
	return nil
}

func candidateOrder() models.Order {
	return models.Order{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Category:        enums.OrderCategoryPhone,
		Provider:        enums.ProviderFiveSim,
		ProviderOrderID: "187001",
		Status:          enums.OrderStatusProcessing,
		VendorStatus:    "RECEIVED",
		ChargedCents:    500,
	}
}

func newSweepJob(t *testing.T, reader *fakeCandidateReader, applier *fakeSweepApplier, provider *sweepStubProvider) Job {
	t.Helper()
	registry, err := providers.NewRegistry(provider)
	require.NoError(t, err)
	job, err := NewExpirySweepJob(ExpirySweepJobParams{
		Logger:   sweepTestLogger(),
		Reader:   reader,
		Applier:  applier,
		Registry: registry,
		Config:   config.ReconcileConfig{OrderSafetyCeiling: 24 * time.Hour},
	})
	require.NoError(t, err)
	return job
}

func TestExpirySweepAppliesResolvableStatus(t *testing.T) {
	order := candidateOrder()
	reader := &fakeCandidateReader{candidates: []models.Order{order}}
	applier := &fakeSweepApplier{}
	provider := &sweepStubProvider{
		id: enums.ProviderFiveSim,
		status: &providers.StatusResult{
			VendorStatus: "FINISHED",
			Status:       enums.OrderStatusCompleted,
			Payload:      []byte(`{"codes":["1234"]}`),
		},
	}

	require.NoError(t, newSweepJob(t, reader, applier, provider).Run(context.Background()))

	require.Len(t, applier.applied, 1)
	assert.Equal(t, order.ID, applier.applied[0].orderID)
	assert.Equal(t, enums.OrderStatusCompleted, applier.applied[0].obs.Status)
	assert.Empty(t, applier.forced)
}

func TestExpirySweepForcesExpiryWhenVendorStillUnresolved(t *testing.T) {
	order := candidateOrder()
	reader := &fakeCandidateReader{candidates: []models.Order{order}}
	applier := &fakeSweepApplier{}
	provider := &sweepStubProvider{
		id:     enums.ProviderFiveSim,
		status: &providers.StatusResult{VendorStatus: "WAITING", Status: enums.OrderStatusProcessing},
	}

	require.NoError(t, newSweepJob(t, reader, applier, provider).Run(context.Background()))

	assert.Empty(t, applier.applied)
	assert.Equal(t, []uuid.UUID{order.ID}, applier.forced)
}

func TestExpirySweepForcesExpiryWhenVendorUnreachable(t *testing.T) {
	order := candidateOrder()
	reader := &fakeCandidateReader{candidates: []models.Order{order}}
	applier := &fakeSweepApplier{}
	provider := &sweepStubProvider{
		id:        enums.ProviderFiveSim,
		statusErr: pkgerrors.New(pkgerrors.CodeVendorUnreachable, "timeout"),
	}

	require.NoError(t, newSweepJob(t, reader, applier, provider).Run(context.Background()))
	assert.Equal(t, []uuid.UUID{order.ID}, applier.forced)
}

func TestExpirySweepContinuesPastFailures(t *testing.T) {
	bad := candidateOrder()
	good := candidateOrder()
	reader := &fakeCandidateReader{candidates: []models.Order{bad, good}}
	applier := &fakeSweepApplier{}
	provider := &sweepStubProvider{
		id:     enums.ProviderFiveSim,
		status: &providers.StatusResult{VendorStatus: "FINISHED", Status: enums.OrderStatusCompleted, Payload: []byte(`{}`)},
	}

	job := newSweepJob(t, reader, applier, provider)
	applier.applyErr = pkgerrors.New(pkgerrors.CodeInternal, "tx failed")

	err := job.Run(context.Background())
	require.Error(t, err)
	// a failing candidate does not stop the sweep
	assert.Equal(t, 2, applier.applyCalls)
}
