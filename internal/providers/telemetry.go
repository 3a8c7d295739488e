package providers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/metrics"
)

type initiatorKey struct{}

// WithInitiator tags the context with the user on whose behalf vendor calls
// are made, for telemetry attribution.
func WithInitiator(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, initiatorKey{}, userID)
}

func initiatorFrom(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(initiatorKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return &id
	}
	return nil
}

// CallLogRepository persists one audit row per vendor call.
type CallLogRepository interface {
	Create(ctx context.Context, entry *models.ProviderCallLog) error
}

// Telemetry records vendor call audit rows and prometheus observations.
// Recording failures are logged and swallowed; they never reach the caller.
type Telemetry struct {
	logg    *logger.Logger
	repo    CallLogRepository
	metrics *metrics.ProviderCallMetrics
}

// NewTelemetry wires a telemetry recorder. Any argument may be nil; recording
// degrades to whatever sinks are present.
func NewTelemetry(logg *logger.Logger, repo CallLogRepository, m *metrics.ProviderCallMetrics) *Telemetry {
	return &Telemetry{logg: logg, repo: repo, metrics: m}
}

// Record captures one vendor call observation.
func (t *Telemetry) Record(ctx context.Context, provider enums.ProviderID, operation string, err error, duration time.Duration) {
	if t == nil {
		return
	}
	outcome := classifyOutcome(err)
	if t.metrics != nil {
		t.metrics.Observe(provider.String(), operation, outcome.String(), duration)
	}
	if t.repo != nil {
		entry := &models.ProviderCallLog{
			Provider:   provider,
			Operation:  operation,
			Outcome:    outcome,
			DurationMS: duration.Milliseconds(),
			UserID:     initiatorFrom(ctx),
		}
		if err != nil {
			detail := err.Error()
			entry.Detail = &detail
		}
		if createErr := t.repo.Create(ctx, entry); createErr != nil && t.logg != nil {
			t.logg.Warn(t.logg.WithProvider(ctx, provider.String()), "provider call log write failed")
		}
	}
}

func classifyOutcome(err error) enums.CallOutcome {
	if err == nil {
		return enums.CallOutcomeOK
	}
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeVendorUnreachable:
			return enums.CallOutcomeUnreachable
		case pkgerrors.CodeVendorRejected:
			return enums.CallOutcomeRejected
		}
	}
	return enums.CallOutcomeAmbiguous
}
