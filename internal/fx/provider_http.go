package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/currency"
)

// HTTPProvider fetches live market rates from an external JSON API exposing
// a `GET /latest?base=XXX&symbols=...` endpoint. It is the primary rate
// source for both the resolver's quote path and the fallback table refresh.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds a provider against the given API base URL. The API
// key is optional; when set it is passed as a query parameter.
func NewHTTPProvider(name, baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the provider in rate provenance and logs.
func (p *HTTPProvider) Name() string { return p.name }

// IsAvailable probes the latest-rates endpoint without decoding the body.
func (p *HTTPProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, p.latestURL("USD"), nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

type latestResponse struct {
	Base  string                 `json:"base"`
	Rates map[string]json.Number `json:"rates"`
}

// Latest fetches the full rate map quoted against base for all supported
// currencies. Rates are decoded as decimals, never floats.
func (p *HTTPProvider) Latest(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.latestURL(base), nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates from %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates from %s: unexpected status %d", p.name, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates from %s: %w", p.name, err)
	}

	rates := make(map[string]decimal.Decimal, len(body.Rates))
	for code, raw := range body.Rates {
		code = strings.ToUpper(code)
		// APIs ignore unknown symbols and answer with their full set; keep
		// only the catalog.
		if !currency.IsSupported(code) {
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("decode rate %s from %s: %w", code, p.name, err)
		}
		rates[code] = rate
	}
	return rates, nil
}

// GetRates fetches a USD snapshot and expands it into the supported pair matrix.
func (p *HTTPProvider) GetRates(ctx context.Context) ([]RatePoint, error) {
	quotes, err := p.Latest(ctx, "USD")
	if err != nil {
		return nil, err
	}
	return matrixFromBase("USD", quotes, p.name, time.Now().UTC()), nil
}

func (p *HTTPProvider) latestURL(base string) string {
	query := url.Values{}
	query.Set("base", base)
	query.Set("symbols", strings.Join(currency.Supported, ","))
	if p.apiKey != "" {
		query.Set("access_key", p.apiKey)
	}
	return p.baseURL + "/latest?" + query.Encode()
}
