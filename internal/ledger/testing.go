package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets the available funds of a balance
// when using the in-memory store.
func SeedBalance(s Store, owner, currencyCode string, available decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		key := Key{Owner: owner, Currency: currencyCode}
		b := zeroBalance(key, time.Now().UTC())
		b.Total = available
		b.Available = available
		mem.balances[key] = b
	}
}
