package fx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/logging"
)

type stubProvider struct {
	name      string
	available bool
	points    []RatePoint
	err       error
	calls     int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) IsAvailable(context.Context) bool { return p.available }

func (p *stubProvider) GetRates(context.Context) ([]RatePoint, error) {
	p.calls++
	return p.points, p.err
}

func point(from, to, rate string) RatePoint {
	return RatePoint{
		From:      from,
		To:        to,
		Rate:      decimal.RequireFromString(rate),
		UpdatedAt: time.Now().UTC(),
		Source:    "stub",
	}
}

func TestTableServesBaselineBeforeFirstRefresh(t *testing.T) {
	table := NewTable(nil, time.Hour, decimal.Zero, logging.Discard())

	p, err := table.Rate("USD", "EUR")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if p.Source != "baseline" || !p.Rate.IsPositive() {
		t.Fatalf("expected positive baseline rate, got %+v", p)
	}
	if !table.Stale() {
		t.Fatal("baseline seed should be stale until the first refresh")
	}
}

func TestTableRefreshWritesExactReciprocals(t *testing.T) {
	provider := &stubProvider{name: "live", available: true, points: []RatePoint{point("USD", "EUR", "0.85")}}
	table := NewTable([]Provider{provider}, time.Hour, decimal.Zero, logging.Discard())

	if err := table.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	forward, err := table.Rate("USD", "EUR")
	if err != nil {
		t.Fatalf("forward rate: %v", err)
	}
	if !forward.Rate.Equal(decimal.RequireFromString("0.85")) {
		t.Fatalf("forward rate = %s", forward.Rate)
	}

	inverse, err := table.Rate("EUR", "USD")
	if err != nil {
		t.Fatalf("inverse rate: %v", err)
	}
	want := decimal.NewFromInt(1).Div(decimal.RequireFromString("0.85"))
	if !inverse.Rate.Equal(want) {
		t.Fatalf("inverse rate = %s, want exactly %s", inverse.Rate, want)
	}
	if inverse.Source != "stub" {
		t.Fatalf("inverse provenance = %q", inverse.Source)
	}
}

func TestTableRefreshSkipsUnavailableProviders(t *testing.T) {
	down := &stubProvider{name: "primary", available: false}
	up := &stubProvider{name: "secondary", available: true, points: []RatePoint{point("USD", "NGN", "1600")}}
	table := NewTable([]Provider{down, up}, time.Hour, decimal.Zero, logging.Discard())

	if err := table.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if down.calls != 0 {
		t.Fatal("unavailable provider must not be queried")
	}
	got, _ := table.Rate("USD", "NGN")
	if got.Source != "stub" {
		t.Fatalf("expected secondary provider to win, got %+v", got)
	}
}

func TestTableRefreshStopsAtFirstValidProvider(t *testing.T) {
	first := &stubProvider{name: "first", available: true, points: []RatePoint{point("USD", "EUR", "0.90")}}
	second := &stubProvider{name: "second", available: true, points: []RatePoint{point("USD", "EUR", "0.50")}}
	table := NewTable([]Provider{first, second}, time.Hour, decimal.Zero, logging.Discard())

	if err := table.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.calls != 0 {
		t.Fatal("refresh must not merge across providers")
	}
	got, _ := table.Rate("USD", "EUR")
	if !got.Rate.Equal(decimal.RequireFromString("0.90")) {
		t.Fatalf("rate = %s", got.Rate)
	}
}

func TestTableRefreshFailureLeavesTableUntouched(t *testing.T) {
	failing := &stubProvider{name: "broken", available: true, err: errors.New("upstream 500")}
	invalid := &stubProvider{name: "garbage", available: true, points: []RatePoint{point("USD", "EUR", "-1")}}
	table := NewTable([]Provider{failing, invalid}, time.Hour, decimal.Zero, logging.Discard())

	before, _ := table.Rate("USD", "EUR")
	if err := table.Refresh(context.Background()); !errors.Is(err, ErrNoLiveSource) {
		t.Fatalf("expected ErrNoLiveSource, got %v", err)
	}
	after, _ := table.Rate("USD", "EUR")
	if !after.Rate.Equal(before.Rate) || after.Source != "baseline" {
		t.Fatalf("failed cycle mutated the table: %+v", after)
	}
}

func TestTableStalenessClearsAfterRefresh(t *testing.T) {
	provider := &stubProvider{name: "live", available: true, points: []RatePoint{
		point("USD", "EUR", "0.85"), point("USD", "GBP", "0.80"), point("USD", "NGN", "1600"),
		point("EUR", "GBP", "0.94"), point("EUR", "NGN", "1880"), point("GBP", "NGN", "2000"),
	}}
	table := NewTable([]Provider{provider}, time.Hour, decimal.Zero, logging.Discard())

	if !table.Stale() {
		t.Fatal("expected stale table before refresh")
	}
	if err := table.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if table.Stale() {
		t.Fatal("freshly refreshed table reported stale")
	}
}

func TestTableDriftThresholdIsConfigurable(t *testing.T) {
	// Baseline USD/EUR is 0.92; refreshing to 0.90 is roughly a 2% move.
	refresh := func(t *testing.T, drift decimal.Decimal) string {
		t.Helper()
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		provider := &stubProvider{name: "live", available: true, points: []RatePoint{point("USD", "EUR", "0.90")}}
		table := NewTable([]Provider{provider}, time.Hour, drift, logger)
		if err := table.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		return buf.String()
	}

	if logs := refresh(t, decimal.RequireFromString("0.10")); strings.Contains(logs, "drift") {
		t.Fatalf("2%% move flagged under a 10%% threshold: %s", logs)
	}
	if logs := refresh(t, decimal.RequireFromString("0.01")); !strings.Contains(logs, "drift") {
		t.Fatalf("2%% move not flagged under a 1%% threshold: %s", logs)
	}
}

func TestTableIdentityPair(t *testing.T) {
	table := NewTable(nil, time.Hour, decimal.Zero, logging.Discard())
	p, err := table.Rate("USD", "USD")
	if err != nil {
		t.Fatalf("identity rate: %v", err)
	}
	if !p.Rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("identity rate = %s", p.Rate)
	}
}
