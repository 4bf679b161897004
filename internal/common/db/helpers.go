package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// Querier is the statement surface shared by Database and Transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier returns tx when set, database otherwise.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// ExecAffecting runs a write and returns notFound when it touched no row.
// Guarded updates and deletes use it to tell "missing" apart from "failed".
func ExecAffecting(ctx context.Context, q Querier, notFound error, query string, args ...interface{}) error {
	result, err := q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports a duplicate-entry error and the violated key,
// e.g. "users.uk_users_username".
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return "", false
	}
	_, key, found := strings.Cut(myErr.Message, "for key ")
	if !found {
		return "", true
	}
	return strings.Trim(strings.TrimSpace(key), " `\"'"), true
}
