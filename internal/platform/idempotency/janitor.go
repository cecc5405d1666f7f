package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically deletes expired records in bounded batches.
type Janitor struct {
	store     Store
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	clock     func() time.Time
}

// NewJanitor builds a Janitor; non-positive settings fall back to hourly batches of 200.
func NewJanitor(store Store, interval time.Duration, batchSize int, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: store, interval: interval, batchSize: batchSize, logger: logger, clock: time.Now}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep removes expired records until a batch comes back short.
func (j *Janitor) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		removed, err := j.store.CleanupExpired(ctx, j.clock().UTC(), j.batchSize)
		total += removed
		if err != nil {
			j.logger.Warn("idempotency cleanup failed", zap.Error(err), zap.Int("removed", total))
			break
		}
		if removed < j.batchSize {
			break
		}
	}
	if total > 0 {
		j.logger.Info("idempotency cleanup", zap.Int("removed", total))
	}
	return total
}
