package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/currency"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/eligibility"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/fx"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/ledger"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/notification"
)

var (
	// ErrInvalidAmount rejects non-positive operation amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameOwner rejects transfers from an owner to themselves.
	ErrSameOwner = errors.New("sender and receiver must differ")

	// ErrSameCurrency rejects trades within a single currency.
	ErrSameCurrency = errors.New("trade currencies must differ")

	// ErrOwnerNotEligible indicates the owner failed the external
	// eligibility check. Raised before any hold is acquired.
	ErrOwnerNotEligible = errors.New("owner not eligible")
)

// RateQuoter produces conversion quotes for trades.
type RateQuoter interface {
	Quote(ctx context.Context, from, to string, amount decimal.Decimal) (fx.Quote, error)
}

// Service is the ledger engine: it orchestrates funding, transfer and trade
// operations as atomic units against the balance store. Every operation
// follows the same shape: validate, check eligibility, acquire exclusive
// holds in canonical key order, mutate, record the entry, commit. Any error
// discards all in-progress mutations.
type Service struct {
	store       ledger.Store
	rates       RateQuoter
	eligibility eligibility.Checker
	notifier    notification.Notifier
}

// NewService wires the ledger engine.
func NewService(store ledger.Store, rates RateQuoter, checker eligibility.Checker, notifier notification.Notifier) *Service {
	return &Service{store: store, rates: rates, eligibility: checker, notifier: notifier}
}

// FundInput captures an external credit into an owner's balance.
type FundInput struct {
	Owner     string
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

// TransferInput moves funds between two owners in one currency.
type TransferInput struct {
	FromOwner   string
	ToOwner     string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// TradeInput converts funds between two of an owner's currencies.
type TradeInput struct {
	Owner        string
	FromCurrency string
	ToCurrency   string
	Amount       decimal.Decimal
}

// Fund credits an owner's balance and records a COMPLETED FUNDING entry.
func (s *Service) Fund(ctx context.Context, input FundInput) (ledger.Entry, error) {
	code, err := currency.Normalize(input.Currency)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !input.Amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if err := s.checkEligible(ctx, input.Owner); err != nil {
		return ledger.Entry{}, err
	}

	entry := s.newEntry(input.Owner, ledger.KindFunding, code, code, input.Amount, decimal.NewFromInt(1), input.Amount)
	entry.Reference = input.Reference
	entry.Description = "wallet funding"

	key := ledger.Key{Owner: input.Owner, Currency: code}
	err = s.store.WithHold(ctx, []ledger.Key{key}, func(h *ledger.Hold) error {
		h.Balance(key).Credit(input.Amount)
		h.Record(entry)
		return nil
	})
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("fund: %w", err)
	}

	s.notify(ctx, entry)
	return entry, nil
}

// Transfer moves amount between two owners' balances in one currency,
// holding both balances for the duration. No rate applies.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (ledger.Entry, error) {
	code, err := currency.Normalize(input.Currency)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !input.Amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if input.FromOwner == input.ToOwner {
		return ledger.Entry{}, ErrSameOwner
	}
	// Both parties must pass the external check before any hold.
	if err := s.checkEligible(ctx, input.FromOwner); err != nil {
		return ledger.Entry{}, err
	}
	if err := s.checkEligible(ctx, input.ToOwner); err != nil {
		return ledger.Entry{}, err
	}

	entry := s.newEntry(input.FromOwner, ledger.KindTransfer, code, code, input.Amount, decimal.NewFromInt(1), input.Amount)
	entry.Description = input.Description

	fromKey := ledger.Key{Owner: input.FromOwner, Currency: code}
	toKey := ledger.Key{Owner: input.ToOwner, Currency: code}
	err = s.store.WithHold(ctx, []ledger.Key{fromKey, toKey}, func(h *ledger.Hold) error {
		if err := h.Balance(fromKey).Debit(input.Amount); err != nil {
			return err
		}
		h.Balance(toKey).Credit(input.Amount)
		h.Record(entry)
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, entry, err)
		return ledger.Entry{}, fmt.Errorf("transfer: %w", err)
	}

	s.notify(ctx, entry)
	return entry, nil
}

// Trade converts amount of the owner's FromCurrency into ToCurrency at the
// resolved live rate, holding both currency balances for the duration.
func (s *Service) Trade(ctx context.Context, input TradeInput) (ledger.Entry, error) {
	from, err := currency.Normalize(input.FromCurrency)
	if err != nil {
		return ledger.Entry{}, err
	}
	to, err := currency.Normalize(input.ToCurrency)
	if err != nil {
		return ledger.Entry{}, err
	}
	if from == to {
		return ledger.Entry{}, ErrSameCurrency
	}
	if !input.Amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if err := s.checkEligible(ctx, input.Owner); err != nil {
		return ledger.Entry{}, err
	}

	entry := s.newEntry(input.Owner, ledger.KindTrade, from, to, input.Amount, decimal.Zero, decimal.Zero)
	entry.Description = fmt.Sprintf("trade %s -> %s", from, to)

	fromKey := ledger.Key{Owner: input.Owner, Currency: from}
	toKey := ledger.Key{Owner: input.Owner, Currency: to}
	err = s.store.WithHold(ctx, []ledger.Key{fromKey, toKey}, func(h *ledger.Hold) error {
		quote, err := s.rates.Quote(ctx, from, to, input.Amount)
		if err != nil {
			return err
		}
		if err := h.Balance(fromKey).Debit(input.Amount); err != nil {
			return err
		}
		h.Balance(toKey).Credit(quote.Converted)

		entry.Rate = quote.Rate
		entry.Converted = quote.Converted
		h.Record(entry)
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, entry, err)
		return ledger.Entry{}, fmt.Errorf("trade: %w", err)
	}

	s.notify(ctx, entry)
	return entry, nil
}

// Balances lists the owner's balances across currencies.
func (s *Service) Balances(ctx context.Context, owner string) ([]ledger.Balance, error) {
	return s.store.BalancesFor(ctx, owner)
}

// Entries lists the owner's ledger history, newest first.
func (s *Service) Entries(ctx context.Context, owner string) ([]ledger.Entry, error) {
	return s.store.EntriesFor(ctx, owner)
}

func (s *Service) checkEligible(ctx context.Context, owner string) error {
	ok, err := s.eligibility.IsEligible(ctx, owner)
	if err != nil {
		return fmt.Errorf("eligibility check: %w", err)
	}
	if !ok {
		return ErrOwnerNotEligible
	}
	return nil
}

func (s *Service) newEntry(owner string, kind ledger.Kind, from, to string, amount, rate, converted decimal.Decimal) ledger.Entry {
	return ledger.Entry{
		ID:           uuid.NewString(),
		Owner:        owner,
		Kind:         kind,
		Status:       ledger.StatusCompleted,
		FromCurrency: from,
		ToCurrency:   to,
		Amount:       amount,
		Rate:         rate,
		Converted:    converted,
		CreatedAt:    time.Now().UTC(),
	}
}

// recordFailure appends a FAILED audit entry for operations aborted by state
// or dependency errors after the movement was attempted. Best effort: the
// rollback already happened and stands either way.
func (s *Service) recordFailure(ctx context.Context, entry ledger.Entry, cause error) {
	if !errors.Is(cause, ledger.ErrInsufficientFunds) && !errors.Is(cause, fx.ErrRateUnavailable) {
		return
	}
	entry.Status = ledger.StatusFailed
	entry.Description = cause.Error()
	_ = s.store.RecordEntry(ctx, entry)
	s.notify(ctx, entry)
}

// notify emits the audit event fire-and-forget.
func (s *Service) notify(ctx context.Context, entry ledger.Entry) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Event{
		OwnerID:  entry.Owner,
		Kind:     string(entry.Kind),
		Amount:   entry.Amount,
		Currency: entry.FromCurrency,
		Status:   string(entry.Status),
	})
}
