package fx

import (
	"context"
	"log/slog"
	"time"
)

// Refresher keeps the fallback table warm: it refreshes on a fixed interval
// driven by staleness, backing off after failed cycles.
type Refresher struct {
	table    *Table
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher builds a refresher ticking at interval.
func NewRefresher(table *Table, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultStaleAfter
	}
	return &Refresher{table: table, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. It refreshes immediately (the baseline
// seed is stale by construction) and then whenever the table reports
// staleness at a tick. Failed cycles retry with doubling backoff capped at
// the tick interval.
func (r *Refresher) Run(ctx context.Context) {
	backoff := time.Minute
	next := time.Duration(0)

	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if r.table.Stale() {
			if err := r.table.Refresh(ctx); err != nil {
				r.logger.Warn("rate refresh cycle failed", "error", err, "retry_in", backoff.String())
				next = backoff
				if backoff *= 2; backoff > r.interval {
					backoff = r.interval
				}
				timer.Reset(next)
				continue
			}
			backoff = time.Minute
		}
		timer.Reset(r.interval)
	}
}
