package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wardops/wardops/internal/platform/apperr"
)

type stubBeginner struct {
	tx  pgx.Tx
	err error
}

func (b stubBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return b.tx, b.err
}

// stubTx fails Commit. Other pgx.Tx methods are not called by WithinTx.
type stubTx struct {
	pgx.Tx
	commitErr  error
	rolledBack bool
}

func (t *stubTx) Commit(context.Context) error { return t.commitErr }

func (t *stubTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestExecutor_NoPool(t *testing.T) {
	if q := Executor(context.Background(), nil); q != nil {
		t.Errorf("expected nil querier without pool or tx, got %T", q)
	}
}

func TestPoolTransactor_NoPool(t *testing.T) {
	tr := NewTransactor(nil)
	called := false
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error when no pool is configured, got %v", err)
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestPoolTransactor_BeginFailure(t *testing.T) {
	cause := errors.New("connection refused")
	tr := &PoolTransactor{pool: stubBeginner{err: cause}}
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		t.Error("fn must not run when begin fails")
		return nil
	})
	if !errors.Is(err, apperr.ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("expected persistence error wrapping cause, got %v", err)
	}
	if status := apperr.Status(err); status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
}

func TestPoolTransactor_CommitFailure(t *testing.T) {
	cause := errors.New("serialization failure")
	tx := &stubTx{commitErr: cause}
	tr := &PoolTransactor{pool: stubBeginner{tx: tx}}
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		if TxFromContext(ctx) != tx {
			t.Error("expected fn to see the open transaction")
		}
		return nil
	})
	if !errors.Is(err, apperr.ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("expected persistence error wrapping cause, got %v", err)
	}
	if !tx.rolledBack {
		t.Error("expected deferred rollback")
	}
}

func TestNoopTransactor_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := NoopTransactor{}.WithinTx(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "beds_bed_number_key"}
	wrapped := fmt.Errorf("insert bed: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Error("expected wrapped unique violation to match any constraint")
	}
	if !IsUniqueViolation(wrapped, "beds_bed_number_key") {
		t.Error("expected match on constraint name")
	}
	if IsUniqueViolation(wrapped, "other_key") {
		t.Error("expected no match for a different constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("plain error is not a unique violation")
	}
}
