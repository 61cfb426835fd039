package fx

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/currency"
)

// ErrRateUnavailable indicates no trustworthy rate could be produced for the
// requested pair. Callers are expected to retry the whole operation.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RatePoint is a single directional exchange rate with provenance.
type RatePoint struct {
	From      string
	To        string
	Rate      decimal.Decimal
	UpdatedAt time.Time
	Source    string
}

// Provider supplies market rates. Implementations are independently
// queryable and independently health-checkable; the fallback table walks
// them in priority order.
type Provider interface {
	Name() string

	// IsAvailable is a cheap liveness probe checked before GetRates.
	IsAvailable(ctx context.Context) bool

	// GetRates bulk-fetches rate points covering the supported pairs.
	GetRates(ctx context.Context) ([]RatePoint, error)
}

// maxReasonableRate bounds validation: anything at or above it is treated as
// corrupt provider data.
var maxReasonableRate = decimal.New(1, 7) // 10^7

func validPoint(p RatePoint) bool {
	if p.From == "" || p.To == "" || p.From == p.To {
		return false
	}
	return p.Rate.IsPositive() && p.Rate.LessThan(maxReasonableRate)
}

// matrixFromBase expands base-quoted rates into points for every supported
// pair (one direction per pair; consumers synthesize the inverse). The base
// itself is quoted at 1.
func matrixFromBase(base string, quotes map[string]decimal.Decimal, source string, at time.Time) []RatePoint {
	full := make(map[string]decimal.Decimal, len(quotes)+1)
	for code, rate := range quotes {
		full[code] = rate
	}
	full[base] = decimal.NewFromInt(1)

	var points []RatePoint
	for i, from := range currency.Supported {
		fromQuote, ok := full[from]
		if !ok || !fromQuote.IsPositive() {
			continue
		}
		for _, to := range currency.Supported[i+1:] {
			toQuote, ok := full[to]
			if !ok {
				continue
			}
			points = append(points, RatePoint{
				From:      from,
				To:        to,
				Rate:      toQuote.Div(fromQuote),
				UpdatedAt: at,
				Source:    source,
			})
		}
	}
	return points
}
