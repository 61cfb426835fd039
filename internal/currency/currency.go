package currency

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported indicates a currency code outside the supported catalog.
var ErrUnsupported = errors.New("unsupported currency")

// Supported is the closed set of currency codes the ledger accepts, in
// priority order. Any code outside this set is rejected at the boundary
// before reaching the ledger engine.
var Supported = []string{"USD", "EUR", "GBP", "NGN"}

var supportedSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Supported))
	for _, code := range Supported {
		set[code] = struct{}{}
	}
	return set
}()

// Normalize upper-cases and validates a currency code against the catalog.
func Normalize(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := supportedSet[normalized]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, code)
	}
	return normalized, nil
}

// IsSupported reports whether the code belongs to the catalog.
func IsSupported(code string) bool {
	_, ok := supportedSet[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
