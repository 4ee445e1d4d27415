package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/idot-digital/eventsource/internal/metrics"
)

// Janitor runs Ledger.Cleanup on a fixed interval. Ticks run serially on the
// Run goroutine, so at most one cleanup is in flight; a run that outlasts its
// interval simply delays the next one. Cleanup is housekeeping: a failed run
// is logged and retried on the next tick without affecting ingestion.
type Janitor struct {
	ledger   *Ledger
	interval time.Duration
	retain   int64
	logger   *slog.Logger
}

func NewJanitor(l *Ledger, interval time.Duration, retain int64, logger *slog.Logger) *Janitor {
	return &Janitor{
		ledger:   l,
		interval: interval,
		retain:   retain,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, cleaning up the ledger every interval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) tick(ctx context.Context) {
	deleted, err := j.ledger.Cleanup(ctx, j.retain)
	if err != nil {
		j.logger.Error("Ledger cleanup failed", "error", err)
		return
	}
	metrics.LedgerCleanups.Inc()
	metrics.LedgerKeysDeleted.Add(float64(deleted))
	j.logger.Info("Ledger cleanup finished", "deleted", deleted, "retain", j.retain)
}
