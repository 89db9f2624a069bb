package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

const defaultIdempotencyRetention = 168 * time.Hour

type idempotencyPurger interface {
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// IdempotencyPurgeJobParams configure the retention job.
type IdempotencyPurgeJobParams struct {
	Logger    *logger.Logger
	Store     idempotencyPurger
	Retention time.Duration
}

// NewIdempotencyPurgeJob builds the job that drops finished idempotency
// records past their retention window, along with in-flight markers
// whose expiry lapsed because the owning request crashed.
func NewIdempotencyPurgeJob(params IdempotencyPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}
	return &idempotencyPurgeJob{
		logg:      params.Logger,
		store:     params.Store,
		retention: retention,
		now:       time.Now,
	}, nil
}

type idempotencyPurgeJob struct {
	logg      *logger.Logger
	store     idempotencyPurger
	retention time.Duration
	now       func() time.Time
}

func (j *idempotencyPurgeJob) Name() string { return "idempotency-purge" }

func (j *idempotencyPurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("idempotency purge: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "idempotency purge complete")
	return nil
}
