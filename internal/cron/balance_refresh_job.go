package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

// BalanceRefreshJobParams configure the vendor balance snapshot job.
type BalanceRefreshJobParams struct {
	Logger   *logger.Logger
	Registry *providers.Registry
}

// NewBalanceRefreshJob builds the job that records every enabled vendor's
// account balance. The readings feed pricing and low-balance alerting; a
// vendor that cannot be read is logged and skipped.
func NewBalanceRefreshJob(params BalanceRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	return &balanceRefreshJob{
		logg:     params.Logger,
		registry: params.Registry,
	}, nil
}

type balanceRefreshJob struct {
	logg     *logger.Logger
	registry *providers.Registry
}

func (j *balanceRefreshJob) Name() string { return "balance-refresh" }

func (j *balanceRefreshJob) Run(ctx context.Context) error {
	var errs []error
	for _, provider := range j.registry.Enabled() {
		logCtx := j.logg.WithProvider(ctx, provider.ID().String())
		balance, err := provider.Balance(ctx)
		if err != nil {
			j.logg.Error(logCtx, "vendor balance read failed", err)
			errs = append(errs, fmt.Errorf("balance %s: %w", provider.ID(), err))
			continue
		}
		j.logg.Info(j.logg.WithField(logCtx, "balance", balance.String()), "vendor balance recorded")
	}
	return multierr.Combine(errs...)
}
