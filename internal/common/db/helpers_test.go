package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("exec failed: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'alice' for key 'users.uk_users_username'",
	})
	key, ok := UniqueViolation(err)
	if !ok || key != "users.uk_users_username" {
		t.Fatalf("key = %q, ok = %v", key, ok)
	}

	if _, ok := UniqueViolation(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}); !ok {
		t.Fatalf("duplicate without key name should still match")
	}
	if _, ok := UniqueViolation(&mysql.MySQLError{Number: 1045}); ok {
		t.Fatalf("access denied should not be a unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(fmt.Errorf("boom")) {
		t.Fatalf("unexpected match")
	}
}

type affectedResult int64

func (r affectedResult) LastInsertId() (int64, error) { return 0, nil }
func (r affectedResult) RowsAffected() (int64, error) { return int64(r), nil }

type execOnly struct {
	Querier
	affected int64
	err      error
}

func (q execOnly) Exec(context.Context, string, ...interface{}) (Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	return affectedResult(q.affected), nil
}

func TestExecAffecting(t *testing.T) {
	errMissing := errors.New("missing")
	ctx := context.Background()

	if err := ExecAffecting(ctx, execOnly{affected: 1}, errMissing, "UPDATE t"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := ExecAffecting(ctx, execOnly{affected: 0}, errMissing, "UPDATE t"); !errors.Is(err, errMissing) {
		t.Fatalf("err = %v", err)
	}
	boom := errors.New("boom")
	if err := ExecAffecting(ctx, execOnly{err: boom}, errMissing, "UPDATE t"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
