package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/retry"
)

// Quote sources reported to callers.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

const rateCachePrefix = "fxrates:v1:"

// sanityFactor bounds the live-vs-fallback deviation that triggers a
// mispricing warning. Deviation beyond it is logged, never blocked.
var sanityFactor = decimal.NewFromInt(5)

// DefaultPolicy is the production retry budget for live rate fetches.
var DefaultPolicy = retry.Policy{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	Factor:       2,
	MaxDelay:     5 * time.Second,
}

// LiveSource fetches the full rate map for one base currency from the
// primary external provider.
type LiveSource interface {
	Name() string
	Latest(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// Quote is the outcome of resolving a conversion.
type Quote struct {
	From      string
	To        string
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Converted decimal.Decimal
	Source    string
	At        time.Time
}

// Resolver produces conversion rates. The primary path is a short-lived
// Redis cache of the last full live fetch per base currency; on a miss it
// fetches live under a bounded retry. It never substitutes the fallback
// table implicitly; FallbackQuote is the explicit degraded-accuracy path.
type Resolver struct {
	source   LiveSource
	cache    *redis.Client
	cacheTTL time.Duration
	fallback *Table
	logger   *slog.Logger

	// Policy bounds the live fetch retries. Tests shrink it.
	Policy retry.Policy
}

// NewResolver wires a resolver. cache may be nil, in which case every
// resolution fetches live.
func NewResolver(source LiveSource, cache *redis.Client, cacheTTL time.Duration, fallback *Table, logger *slog.Logger) *Resolver {
	return &Resolver{
		source:   source,
		cache:    cache,
		cacheTTL: cacheTTL,
		fallback: fallback,
		logger:   logger,
		Policy:   DefaultPolicy,
	}
}

// Resolve produces the live rate point for converting from -> to.
func (r *Resolver) Resolve(ctx context.Context, from, to string) (RatePoint, error) {
	if from == to {
		return RatePoint{From: from, To: to, Rate: decimal.NewFromInt(1), UpdatedAt: time.Now().UTC(), Source: SourceLive}, nil
	}

	rates, cached := r.cachedRates(ctx, from)
	if !cached {
		fetched, err := retry.Do(ctx, r.Policy, func(ctx context.Context) (map[string]decimal.Decimal, error) {
			return r.source.Latest(ctx, from)
		})
		if err != nil {
			return RatePoint{}, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
		}
		rates = fetched
		r.storeRates(ctx, from, rates)
	}

	rate, ok := rates[to]
	if !ok || !rate.IsPositive() {
		return RatePoint{}, fmt.Errorf("%w: %s missing from %s rate set", ErrRateUnavailable, to, from)
	}

	r.observeMispricing(from, to, rate)
	return RatePoint{From: from, To: to, Rate: rate, UpdatedAt: time.Now().UTC(), Source: r.source.Name()}, nil
}

// Quote converts amount of from into to at the live rate.
func (r *Resolver) Quote(ctx context.Context, from, to string, amount decimal.Decimal) (Quote, error) {
	point, err := r.Resolve(ctx, from, to)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		From:      from,
		To:        to,
		Amount:    amount,
		Rate:      point.Rate,
		Converted: amount.Mul(point.Rate),
		Source:    SourceLive,
		At:        point.UpdatedAt,
	}, nil
}

// FallbackQuote converts using the fallback table. Callers opt into this
// degraded-accuracy path explicitly; the quote path never falls back on its own.
func (r *Resolver) FallbackQuote(from, to string, amount decimal.Decimal) (Quote, error) {
	point, err := r.fallback.Rate(from, to)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		From:      from,
		To:        to,
		Amount:    amount,
		Rate:      point.Rate,
		Converted: amount.Mul(point.Rate),
		Source:    SourceFallback,
		At:        point.UpdatedAt,
	}, nil
}

func (r *Resolver) cachedRates(ctx context.Context, base string) (map[string]decimal.Decimal, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, rateCachePrefix+base).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("rate cache lookup failed", "base", base, "error", err)
		}
		return nil, false
	}

	var encoded map[string]string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		r.logger.Warn("rate cache entry corrupt", "base", base, "error", err)
		return nil, false
	}
	rates := make(map[string]decimal.Decimal, len(encoded))
	for code, v := range encoded {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			r.logger.Warn("rate cache entry corrupt", "base", base, "error", err)
			return nil, false
		}
		rates[code] = rate
	}
	return rates, true
}

// storeRates caches a live fetch best-effort; a cache failure never fails
// the resolution.
func (r *Resolver) storeRates(ctx context.Context, base string, rates map[string]decimal.Decimal) {
	if r.cache == nil {
		return
	}
	encoded := make(map[string]string, len(rates))
	for code, rate := range rates {
		encoded[code] = rate.String()
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, rateCachePrefix+base, payload, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("rate cache store failed", "base", base, "error", err)
	}
}

// observeMispricing compares a live rate against the fallback table and logs
// gross deviations. Whether such a deviation should block a trade is a policy
// decision; current behavior is observe-only.
func (r *Resolver) observeMispricing(from, to string, live decimal.Decimal) {
	if r.fallback == nil {
		return
	}
	ref, err := r.fallback.Rate(from, to)
	if err != nil || !ref.Rate.IsPositive() {
		return
	}
	if live.GreaterThan(ref.Rate.Mul(sanityFactor)) || live.LessThan(ref.Rate.Div(sanityFactor)) {
		r.logger.Warn("live rate deviates grossly from fallback table",
			"pair", from+"/"+to,
			"live", live.String(),
			"fallback", ref.Rate.String(),
		)
	}
}
