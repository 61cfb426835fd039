package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultHoldWait = 5 * time.Second

type inMemoryStore struct {
	mu       sync.Mutex
	balances map[Key]Balance
	entries  []Entry
	locks    map[Key]chan struct{}
	holdWait time.Duration
}

// NewInMemory creates a concurrency-safe in-memory balance store. It backs
// unit tests and dev mode when no database is configured.
func NewInMemory() Store {
	return &inMemoryStore{
		balances: make(map[Key]Balance),
		locks:    make(map[Key]chan struct{}),
		holdWait: defaultHoldWait,
	}
}

func (s *inMemoryStore) GetOrCreate(_ context.Context, owner, currencyCode string) (Balance, error) {
	key := Key{Owner: owner, Currency: currencyCode}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[key]; ok {
		return b, nil
	}
	b := zeroBalance(key, time.Now().UTC())
	s.balances[key] = b
	return b, nil
}

func (s *inMemoryStore) BalancesFor(_ context.Context, owner string) ([]Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Balance
	for _, b := range s.balances {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *inMemoryStore) EntriesFor(_ context.Context, owner string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Owner == owner {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *inMemoryStore) RecordEntry(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// WithHold locks every key in canonical order, hands mutable copies to fn,
// and writes the copies back only when fn succeeds. A failed fn leaves the
// store exactly as it was.
func (s *inMemoryStore) WithHold(ctx context.Context, keys []Key, fn func(*Hold) error) error {
	ordered := canonicalKeys(keys)

	acquired := make([]chan struct{}, 0, len(ordered))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}

	wait := time.NewTimer(s.holdWait)
	defer wait.Stop()

	for _, key := range ordered {
		lock := s.lockFor(key)
		select {
		case lock <- struct{}{}:
			acquired = append(acquired, lock)
		case <-ctx.Done():
			release()
			return ctx.Err()
		case <-wait.C:
			release()
			return ErrHoldTimeout
		}
	}
	defer release()

	now := time.Now().UTC()
	held := make(map[Key]*Balance, len(ordered))
	s.mu.Lock()
	for _, key := range ordered {
		b, ok := s.balances[key]
		if !ok {
			b = zeroBalance(key, now)
		}
		copied := b
		held[key] = &copied
	}
	s.mu.Unlock()

	hold := newHold(held)
	if err := fn(hold); err != nil {
		return err
	}
	if err := hold.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range held {
		b.UpdatedAt = now
		s.balances[key] = *b
	}
	s.entries = append(s.entries, hold.entries...)
	return nil
}

func (s *inMemoryStore) lockFor(key Key) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	return lock
}
