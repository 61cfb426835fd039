package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestHoldLockErrMapsLockWaitCancellation(t *testing.T) {
	key := Key{Owner: "u1", Currency: "USD"}

	cause := fmt.Errorf("scan balance: %w", &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	err := holdLockErr(key, cause)
	if !errors.Is(err, ErrHoldTimeout) {
		t.Fatalf("expected ErrHoldTimeout for cancelled lock wait, got %v", err)
	}
}

func TestHoldLockErrPreservesOtherFailures(t *testing.T) {
	key := Key{Owner: "u1", Currency: "USD"}

	cause := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := holdLockErr(key, cause)
	if errors.Is(err, ErrHoldTimeout) {
		t.Fatalf("unrelated failure mapped to ErrHoldTimeout: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost in wrapping: %v", err)
	}
}
