package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestInMemoryStore_GetOrCreateIsIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !first.Total.IsZero() || !first.Available.IsZero() || !first.Locked.IsZero() {
		t.Fatalf("expected zeroed balance, got %+v", first)
	}

	SeedBalance(s, "u1", "USD", dec("100"))
	again, err := s.GetOrCreate(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if !again.Available.Equal(dec("100")) {
		t.Fatalf("expected existing balance preserved, got %s", again.Available)
	}
}

func TestInMemoryStore_WithHoldCommitsMutations(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := Key{Owner: "u1", Currency: "USD"}

	err := s.WithHold(ctx, []Key{key}, func(h *Hold) error {
		h.Balance(key).Credit(dec("1000"))
		h.Record(Entry{ID: "e1", Owner: "u1", Kind: KindFunding, Status: StatusCompleted,
			FromCurrency: "USD", ToCurrency: "USD", Amount: dec("1000"), Rate: dec("1"),
			Converted: dec("1000"), CreatedAt: time.Now().UTC()})
		return nil
	})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	b, _ := s.GetOrCreate(ctx, "u1", "USD")
	if !b.Total.Equal(dec("1000")) || !b.Available.Equal(dec("1000")) {
		t.Fatalf("mutation not persisted: %+v", b)
	}

	entries, err := s.EntriesFor(ctx, "u1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != StatusCompleted {
		t.Fatalf("expected one completed entry, got %+v", entries)
	}
}

func TestInMemoryStore_WithHoldDiscardsOnError(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	eur := Key{Owner: "u1", Currency: "EUR"}
	usd := Key{Owner: "u1", Currency: "USD"}
	SeedBalance(s, "u1", "USD", dec("500"))

	boom := errors.New("boom")
	err := s.WithHold(ctx, []Key{usd, eur}, func(h *Hold) error {
		// First mutation applies in memory, then the callback fails. Neither
		// may be visible afterwards.
		if err := h.Balance(usd).Debit(dec("100")); err != nil {
			return err
		}
		h.Balance(eur).Credit(dec("85"))
		h.Record(Entry{ID: "e1", Owner: "u1", Kind: KindTrade, Status: StatusCompleted})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	b, _ := s.GetOrCreate(ctx, "u1", "USD")
	if !b.Available.Equal(dec("500")) {
		t.Fatalf("debit leaked through rollback: %s", b.Available)
	}
	b, _ = s.GetOrCreate(ctx, "u1", "EUR")
	if !b.Available.IsZero() {
		t.Fatalf("credit leaked through rollback: %s", b.Available)
	}
	entries, _ := s.EntriesFor(ctx, "u1")
	if len(entries) != 0 {
		t.Fatalf("entry persisted despite rollback: %+v", entries)
	}
}

func TestInMemoryStore_WithHoldRejectsInvariantViolation(t *testing.T) {
	s := NewInMemory()
	key := Key{Owner: "u1", Currency: "USD"}

	err := s.WithHold(context.Background(), []Key{key}, func(h *Hold) error {
		b := h.Balance(key)
		b.Total = dec("10") // total != locked + available
		return nil
	})
	if !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestInMemoryStore_ConcurrentDebitsNoDoubleSpend(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	key := Key{Owner: "u1", Currency: "USD"}
	SeedBalance(s, "u1", "USD", dec("100"))

	// Funds cover exactly one of N full-balance debits.
	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, insufficient := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithHold(ctx, []Key{key}, func(h *Hold) error {
				return h.Balance(key).Debit(dec("100"))
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || insufficient != workers-1 {
		t.Fatalf("expected 1 success and %d failures, got %d/%d", workers-1, successes, insufficient)
	}
	b, _ := s.GetOrCreate(ctx, "u1", "USD")
	if !b.Available.IsZero() {
		t.Fatalf("expected drained balance, got %s", b.Available)
	}
}

func TestInMemoryStore_OpposingMultiKeyHoldsDoNotDeadlock(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := Key{Owner: "a", Currency: "USD"}
	b := Key{Owner: "b", Currency: "USD"}
	SeedBalance(s, "a", "USD", dec("1000"))
	SeedBalance(s, "b", "USD", dec("1000"))

	// Transfer a->b and b->a repeatedly with keys supplied in opposite
	// orders. Canonical acquisition must keep this deadlock free.
	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	run := func(keys []Key, from, to Key) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			err := s.WithHold(ctx, keys, func(h *Hold) error {
				if err := h.Balance(from).Debit(dec("1")); err != nil {
					return err
				}
				h.Balance(to).Credit(dec("1"))
				return nil
			})
			if err != nil {
				t.Errorf("transfer failed: %v", err)
				return
			}
		}
	}
	go run([]Key{a, b}, a, b)
	go run([]Key{b, a}, b, a)
	wg.Wait()

	balA, _ := s.GetOrCreate(ctx, "a", "USD")
	balB, _ := s.GetOrCreate(ctx, "b", "USD")
	if !balA.Total.Add(balB.Total).Equal(dec("2000")) {
		t.Fatalf("funds not conserved: %s + %s", balA.Total, balB.Total)
	}
}

func TestInMemoryStore_HoldWaitIsBounded(t *testing.T) {
	s := &inMemoryStore{
		balances: make(map[Key]Balance),
		locks:    make(map[Key]chan struct{}),
		holdWait: 30 * time.Millisecond,
	}
	key := Key{Owner: "u1", Currency: "USD"}

	started := make(chan struct{})
	releaseHold := make(chan struct{})
	go func() {
		_ = s.WithHold(context.Background(), []Key{key}, func(h *Hold) error {
			close(started)
			<-releaseHold
			return nil
		})
	}()
	<-started
	defer close(releaseHold)

	// No deadline on the context: the store's own wait bound must abort the
	// acquisition.
	err := s.WithHold(context.Background(), []Key{key}, func(h *Hold) error { return nil })
	if !errors.Is(err, ErrHoldTimeout) {
		t.Fatalf("expected ErrHoldTimeout, got %v", err)
	}
}

func TestInMemoryStore_HoldRespectsContextCancellation(t *testing.T) {
	s := NewInMemory()
	key := Key{Owner: "u1", Currency: "USD"}

	started := make(chan struct{})
	releaseHold := make(chan struct{})
	go func() {
		_ = s.WithHold(context.Background(), []Key{key}, func(h *Hold) error {
			close(started)
			<-releaseHold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.WithHold(ctx, []Key{key}, func(h *Hold) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	close(releaseHold)
}

func TestInMemoryStore_ConcurrentTransfersConserveTotal(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "a", "USD", dec("100000"))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := Key{Owner: "a", Currency: "USD"}
			to := Key{Owner: fmt.Sprintf("r%d", i%3), Currency: "USD"}
			err := s.WithHold(ctx, []Key{from, to}, func(h *Hold) error {
				if err := h.Balance(from).Debit(dec("500")); err != nil {
					return err
				}
				h.Balance(to).Credit(dec("500"))
				return nil
			})
			if err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for _, owner := range []string{"a", "r0", "r1", "r2"} {
		balances, _ := s.BalancesFor(ctx, owner)
		for _, b := range balances {
			total = total.Add(b.Total)
		}
	}
	if !total.Equal(dec("100000")) {
		t.Fatalf("total not conserved: %s", total)
	}
}
