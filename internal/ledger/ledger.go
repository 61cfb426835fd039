package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when a balance lacks available funds to
	// cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrHoldTimeout indicates an exclusive hold could not be acquired
	// within the bounded wait. The operation was aborted with no effect.
	ErrHoldTimeout = errors.New("balance hold timed out")

	// ErrInvariantViolated rejects a mutation that would leave a held
	// balance with total != locked + available or any negative field.
	ErrInvariantViolated = errors.New("balance invariant violated")
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindFunding  Kind = "FUNDING"
	KindTransfer Kind = "TRANSFER"
	KindTrade    Kind = "TRADE"
)

// Status is the state of a ledger entry. COMPLETED and FAILED entries are
// immutable.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Key identifies one balance record: the holdings of one owner in one currency.
type Key struct {
	Owner    string
	Currency string
}

// Less orders keys canonically (owner, then currency). Every multi-key hold
// acquires in this order so concurrent operations touching overlapping keys
// cannot deadlock.
func (k Key) Less(other Key) bool {
	if k.Owner != other.Owner {
		return k.Owner < other.Owner
	}
	return k.Currency < other.Currency
}

// Balance is the holdings of one owner in one currency. Total equals
// Locked + Available at all times.
type Balance struct {
	Owner     string
	Currency  string
	Total     decimal.Decimal
	Locked    decimal.Decimal
	Available decimal.Decimal
	UpdatedAt time.Time
}

// Key returns the balance's store key.
func (b Balance) Key() Key {
	return Key{Owner: b.Owner, Currency: b.Currency}
}

// Credit increases total and available by amount.
func (b *Balance) Credit(amount decimal.Decimal) {
	b.Total = b.Total.Add(amount)
	b.Available = b.Available.Add(amount)
}

// Debit decreases total and available by amount, failing if available funds
// do not cover it.
func (b *Balance) Debit(amount decimal.Decimal) error {
	if b.Available.LessThan(amount) {
		return ErrInsufficientFunds
	}
	b.Total = b.Total.Sub(amount)
	b.Available = b.Available.Sub(amount)
	return nil
}

func zeroBalance(key Key, now time.Time) Balance {
	return Balance{
		Owner:     key.Owner,
		Currency:  key.Currency,
		Total:     decimal.Zero,
		Locked:    decimal.Zero,
		Available: decimal.Zero,
		UpdatedAt: now,
	}
}

// Entry is an immutable audit record of one completed or failed money movement.
type Entry struct {
	ID           string
	Owner        string
	Kind         Kind
	Status       Status
	FromCurrency string
	ToCurrency   string
	Amount       decimal.Decimal
	Rate         decimal.Decimal
	Converted    decimal.Decimal
	Reference    string
	Description  string
	CreatedAt    time.Time
}

// Hold is the view of balances handed to a WithHold callback. Mutations made
// through it and entries recorded on it are applied atomically when the
// callback returns nil, and discarded entirely when it returns an error.
type Hold struct {
	balances map[Key]*Balance
	entries  []Entry
}

func newHold(balances map[Key]*Balance) *Hold {
	return &Hold{balances: balances}
}

// Balance returns the mutable balance held under key. Only valid for keys
// the hold was acquired with.
func (h *Hold) Balance(key Key) *Balance {
	return h.balances[key]
}

// Record queues an entry to be persisted atomically with the balance
// mutations on commit.
func (h *Hold) Record(entry Entry) {
	h.entries = append(h.entries, entry)
}

func (h *Hold) validate() error {
	for _, b := range h.balances {
		if b.Total.IsNegative() || b.Locked.IsNegative() || b.Available.IsNegative() {
			return ErrInvariantViolated
		}
		if !b.Total.Equal(b.Locked.Add(b.Available)) {
			return ErrInvariantViolated
		}
	}
	return nil
}

// Store is the balance store contract implemented by the Postgres and
// in-memory backends.
type Store interface {
	// GetOrCreate returns the balance for (owner, currency), lazily creating
	// a zeroed record on first reference. Idempotent under concurrent calls.
	GetOrCreate(ctx context.Context, owner, currencyCode string) (Balance, error)

	// BalancesFor lists every balance belonging to owner.
	BalancesFor(ctx context.Context, owner string) ([]Balance, error)

	// EntriesFor lists the owner's ledger entries, newest first.
	EntriesFor(ctx context.Context, owner string) ([]Entry, error)

	// WithHold acquires exclusive access to all keys in canonical order,
	// runs fn against the held balances, and either persists all mutations
	// and recorded entries atomically (fn returned nil) or discards them
	// (fn returned an error, which is propagated).
	WithHold(ctx context.Context, keys []Key, fn func(*Hold) error) error

	// RecordEntry appends a standalone entry outside any hold. Used for
	// FAILED audit records after an operation rolled back.
	RecordEntry(ctx context.Context, entry Entry) error
}

// canonicalKeys sorts and dedupes hold keys into acquisition order.
func canonicalKeys(keys []Key) []Key {
	sorted := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return sorted
}
