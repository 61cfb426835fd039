package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists balances and ledger entries in PostgreSQL. Exclusive
// holds map to row locks (SELECT ... FOR UPDATE) taken in canonical key order
// inside a single transaction, so a multi-balance mutation commits all or
// nothing.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed balance store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertBalanceQuery = `INSERT INTO balances (owner_id, currency, total, locked, available, updated_at)
        VALUES ($1, $2, 0, 0, 0, $3)
        ON CONFLICT (owner_id, currency) DO NOTHING`

func (s *PostgresStore) GetOrCreate(ctx context.Context, owner, currencyCode string) (Balance, error) {
	if _, err := s.db.Exec(ctx, insertBalanceQuery, owner, currencyCode, time.Now().UTC()); err != nil {
		return Balance{}, fmt.Errorf("create balance: %w", err)
	}
	row := s.db.QueryRow(ctx, `SELECT owner_id, currency, total::text, locked::text, available::text, updated_at
        FROM balances WHERE owner_id = $1 AND currency = $2`, owner, currencyCode)
	return scanBalance(row)
}

func (s *PostgresStore) BalancesFor(ctx context.Context, owner string) ([]Balance, error) {
	rows, err := s.db.Query(ctx, `SELECT owner_id, currency, total::text, locked::text, available::text, updated_at
        FROM balances WHERE owner_id = $1 ORDER BY currency`, owner)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EntriesFor(ctx context.Context, owner string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, owner_id, kind, status, from_currency, to_currency,
            amount::text, rate::text, converted::text, reference, description, created_at
        FROM entries WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		var amount, rate, converted string
		if err := rows.Scan(&id, &e.Owner, &e.Kind, &e.Status, &e.FromCurrency, &e.ToCurrency,
			&amount, &rate, &converted, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.ID = id.String()
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode entry amount: %w", err)
		}
		if e.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("decode entry rate: %w", err)
		}
		if e.Converted, err = decimal.NewFromString(converted); err != nil {
			return nil, fmt.Errorf("decode entry converted: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordEntry(ctx context.Context, entry Entry) error {
	return insertEntry(ctx, s.db, entry)
}

// WithHold opens one transaction, row-locks every key in canonical order
// (creating missing balance rows first), runs fn against the locked rows and
// persists mutations plus recorded entries before commit. Any fn error rolls
// the whole transaction back.
func (s *PostgresStore) WithHold(ctx context.Context, keys []Key, fn func(*Hold) error) error {
	ordered := canonicalKeys(keys)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin hold: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Row lock waits are bounded for the whole transaction so a wedged
	// concurrent holder aborts this operation instead of stalling it.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", defaultHoldWait.Milliseconds())); err != nil {
		return fmt.Errorf("bound hold wait: %w", err)
	}

	now := time.Now().UTC()
	held := make(map[Key]*Balance, len(ordered))
	for _, key := range ordered {
		if _, err := tx.Exec(ctx, insertBalanceQuery, key.Owner, key.Currency, now); err != nil {
			return holdLockErr(key, err)
		}
		row := tx.QueryRow(ctx, `SELECT owner_id, currency, total::text, locked::text, available::text, updated_at
            FROM balances WHERE owner_id = $1 AND currency = $2 FOR UPDATE`, key.Owner, key.Currency)
		b, err := scanBalance(row)
		if err != nil {
			return holdLockErr(key, err)
		}
		held[key] = &b
	}

	hold := newHold(held)
	if err := fn(hold); err != nil {
		return err
	}
	if err := hold.validate(); err != nil {
		return err
	}

	for key, b := range held {
		if _, err := tx.Exec(ctx, `UPDATE balances SET total = $3, locked = $4, available = $5, updated_at = $6
            WHERE owner_id = $1 AND currency = $2`,
			key.Owner, key.Currency, b.Total.String(), b.Locked.String(), b.Available.String(), now); err != nil {
			return fmt.Errorf("persist balance %s/%s: %w", key.Owner, key.Currency, err)
		}
	}
	for _, entry := range hold.entries {
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit hold: %w", err)
	}
	return nil
}

// holdLockErr wraps a lock acquisition failure, translating the server
// cancelling a bounded lock wait (SQLSTATE 55P03, lock_not_available) into
// ErrHoldTimeout.
func holdLockErr(key Key, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return fmt.Errorf("hold balance %s/%s: %w", key.Owner, key.Currency, ErrHoldTimeout)
	}
	return fmt.Errorf("hold balance %s/%s: %w", key.Owner, key.Currency, err)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertEntry(ctx context.Context, db execer, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		id = uuid.New()
	}
	_, err = db.Exec(ctx, `INSERT INTO entries (id, owner_id, kind, status, from_currency, to_currency,
            amount, rate, converted, reference, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, entry.Owner, string(entry.Kind), string(entry.Status), entry.FromCurrency, entry.ToCurrency,
		entry.Amount.String(), entry.Rate.String(), entry.Converted.String(),
		entry.Reference, entry.Description, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (Balance, error) {
	var b Balance
	var total, locked, available string
	if err := row.Scan(&b.Owner, &b.Currency, &total, &locked, &available, &b.UpdatedAt); err != nil {
		return Balance{}, fmt.Errorf("scan balance: %w", err)
	}
	var err error
	if b.Total, err = decimal.NewFromString(total); err != nil {
		return Balance{}, fmt.Errorf("decode total: %w", err)
	}
	if b.Locked, err = decimal.NewFromString(locked); err != nil {
		return Balance{}, fmt.Errorf("decode locked: %w", err)
	}
	if b.Available, err = decimal.NewFromString(available); err != nil {
		return Balance{}, fmt.Errorf("decode available: %w", err)
	}
	return b, nil
}
