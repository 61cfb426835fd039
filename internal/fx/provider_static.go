package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// baselineUSD holds hardcoded USD-quoted rates for every supported currency.
// They seed the fallback table at process start and back the static provider
// of last resort.
var baselineUSD = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("0.92"),
	"GBP": decimal.RequireFromString("0.79"),
	"NGN": decimal.RequireFromString("1550"),
}

// StaticProvider serves the hardcoded baseline matrix. It is always
// available and sits last in the provider priority order.
type StaticProvider struct {
	name string
}

// NewStaticProvider builds the baseline provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{name: "baseline"}
}

func (p *StaticProvider) Name() string { return p.name }

func (p *StaticProvider) IsAvailable(context.Context) bool { return true }

func (p *StaticProvider) GetRates(context.Context) ([]RatePoint, error) {
	return matrixFromBase("USD", baselineUSD, p.name, time.Now().UTC()), nil
}
