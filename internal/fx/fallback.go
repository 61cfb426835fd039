package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoLiveSource indicates every configured rate provider failed or
// returned invalid data during a refresh cycle. The table keeps its previous
// contents: stale data is preferable to corrupt data.
var ErrNoLiveSource = errors.New("no rate source available")

// DefaultStaleAfter is the age past which a table entry counts as stale.
const DefaultStaleAfter = time.Hour

// DefaultDriftThreshold is the relative rate change that triggers an
// observability warning when no threshold is configured. Large moves are
// flagged but always applied.
var DefaultDriftThreshold = decimal.RequireFromString("0.05")

type pair struct {
	from string
	to   string
}

// Table is the process-wide fallback rate matrix. It is seeded with the
// hardcoded baselines at construction, refreshed in place from providers in
// priority order, and read by resolvers when callers explicitly opt into
// degraded-accuracy pricing. Single writer (the refresh cycle), many readers.
type Table struct {
	providers  []Provider
	staleAfter time.Duration
	drift      decimal.Decimal
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	points map[pair]RatePoint
}

// NewTable seeds a fallback table from the baseline constants. The seed
// carries a zero timestamp so the first staleness check triggers a refresh.
// A non-positive drift falls back to DefaultDriftThreshold.
func NewTable(providers []Provider, staleAfter time.Duration, drift decimal.Decimal, logger *slog.Logger) *Table {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if !drift.IsPositive() {
		drift = DefaultDriftThreshold
	}
	t := &Table{
		providers:  providers,
		staleAfter: staleAfter,
		drift:      drift,
		logger:     logger,
		now:        time.Now,
		points:     make(map[pair]RatePoint),
	}
	t.write(matrixFromBase("USD", baselineUSD, "baseline", time.Time{}))
	return t
}

// Rate returns the stored point for a currency pair. Identical currencies
// resolve to 1. Every supported pair has an entry at all times, so a miss
// means the pair is outside the catalog.
func (t *Table) Rate(from, to string) (RatePoint, error) {
	if from == to {
		return RatePoint{From: from, To: to, Rate: decimal.NewFromInt(1), UpdatedAt: t.now().UTC(), Source: "identity"}, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.points[pair{from: from, to: to}]
	if !ok {
		return RatePoint{}, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, from, to)
	}
	return p, nil
}

// Stale reports whether any entry is older than the configured threshold.
func (t *Table) Stale() bool {
	cutoff := t.now().Add(-t.staleAfter)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.points {
		if p.UpdatedAt.Before(cutoff) {
			return true
		}
	}
	return false
}

// Refresh walks providers in priority order and applies the first valid,
// non-empty rate list together with exact inverses. It stops at the first
// success and never merges results across providers. When every provider
// fails the table is left untouched and the failure is surfaced to the
// scheduler.
func (t *Table) Refresh(ctx context.Context) error {
	for _, provider := range t.providers {
		if !provider.IsAvailable(ctx) {
			t.logger.Warn("rate source unavailable, skipping", "source", provider.Name())
			continue
		}
		points, err := provider.GetRates(ctx)
		if err != nil {
			t.logger.Warn("rate source fetch failed", "source", provider.Name(), "error", err)
			continue
		}
		if len(points) == 0 || !allValid(points) {
			t.logger.Warn("rate source returned invalid data", "source", provider.Name())
			continue
		}
		t.write(points)
		t.logger.Info("fallback rate table refreshed", "source", provider.Name(), "pairs", len(points))
		return nil
	}
	return ErrNoLiveSource
}

func allValid(points []RatePoint) bool {
	for _, p := range points {
		if !validPoint(p) {
			return false
		}
	}
	return true
}

// write stores each point and its exact mathematical inverse so both
// directions of a pair stay consistent.
func (t *Table) write(points []RatePoint) {
	one := decimal.NewFromInt(1)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range points {
		t.observeDrift(p)
		t.points[pair{from: p.From, to: p.To}] = p
		t.points[pair{from: p.To, to: p.From}] = RatePoint{
			From:      p.To,
			To:        p.From,
			Rate:      one.Div(p.Rate),
			UpdatedAt: p.UpdatedAt,
			Source:    p.Source,
		}
	}
}

// observeDrift flags updates moving a rate by more than the threshold. The
// new rate is still applied; this is observability, not rejection.
func (t *Table) observeDrift(p RatePoint) {
	old, ok := t.points[pair{from: p.From, to: p.To}]
	if !ok || !old.Rate.IsPositive() {
		return
	}
	change := p.Rate.Sub(old.Rate).Abs().Div(old.Rate)
	if change.GreaterThan(t.drift) {
		t.logger.Warn("rate moved beyond drift threshold",
			"pair", p.From+"/"+p.To,
			"old", old.Rate.String(),
			"new", p.Rate.String(),
			"change", change.StringFixed(4),
			"source", p.Source,
		)
	}
}
