// Package dbtest provides an in-memory db.Database double for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"codejudge/internal/common/db"
)

// Call records one statement sent to the fake.
type Call struct {
	Query string
	Args  []interface{}
}

// Handler answers statements whose text contains Match.
type Handler struct {
	Match string

	// Rows are returned for Query/QueryRow; a nil slice makes QueryRow report sql.ErrNoRows.
	Rows [][]interface{}

	// Affected and InsertID are returned for Exec.
	Affected int64
	InsertID int64

	Err error
}

// DB is a scripted db.Database. Handlers are matched in order; unmatched statements fail.
type DB struct {
	mu       sync.Mutex
	handlers []Handler
	calls    []Call
}

var _ db.Database = (*DB)(nil)

func New(handlers ...Handler) *DB {
	return &DB{handlers: handlers}
}

// On appends a handler.
func (d *DB) On(h Handler) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
	return d
}

// Calls returns every statement seen so far.
func (d *DB) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CountMatching counts statements containing fragment.
func (d *DB) CountMatching(fragment string) int {
	n := 0
	for _, c := range d.Calls() {
		if strings.Contains(c.Query, fragment) {
			n++
		}
	}
	return n
}

func (d *DB) match(query string, args []interface{}) (Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Query: query, Args: args})
	for _, h := range d.handlers {
		if strings.Contains(query, h.Match) {
			return h, nil
		}
	}
	return Handler{}, fmt.Errorf("dbtest: unexpected statement: %s", strings.TrimSpace(query))
}

func (d *DB) Query(_ context.Context, query string, args ...interface{}) (db.Rows, error) {
	h, err := d.match(query, args)
	if err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}
	return &rows{data: h.Rows, pos: -1}, nil
}

func (d *DB) QueryRow(_ context.Context, query string, args ...interface{}) db.Row {
	h, err := d.match(query, args)
	if err != nil {
		return errRow{err: err}
	}
	if h.Err != nil {
		return errRow{err: h.Err}
	}
	if len(h.Rows) == 0 {
		return errRow{err: sql.ErrNoRows}
	}
	return valueRow{values: h.Rows[0]}
}

func (d *DB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	h, err := d.match(query, args)
	if err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}
	return result{affected: h.Affected, insertID: h.InsertID}, nil
}

func (d *DB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(tx{d})
}

func (d *DB) Ping(context.Context) error { return nil }

func (d *DB) Close() error { return nil }

type tx struct{ *DB }

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }

type result struct {
	affected int64
	insertID int64
}

func (r result) LastInsertId() (int64, error) { return r.insertID, nil }
func (r result) RowsAffected() (int64, error) { return r.affected, nil }

type errRow struct{ err error }

func (r errRow) Scan(...interface{}) error { return r.err }

type valueRow struct{ values []interface{} }

func (r valueRow) Scan(dest ...interface{}) error { return assign(r.values, dest) }

type rows struct {
	data [][]interface{}
	pos  int
}

func (r *rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *rows) Scan(dest ...interface{}) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return fmt.Errorf("dbtest: scan outside result set")
	}
	return assign(r.data[r.pos], dest)
}

func (r *rows) Close() error { return nil }
func (r *rows) Err() error   { return nil }

// assign copies values into dest pointers. Scanner destinations (sql.NullString etc.) get Scan.
func assign(values []interface{}, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("dbtest: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		if s, ok := dest[i].(sql.Scanner); ok {
			if err := s.Scan(v); err != nil {
				return fmt.Errorf("dbtest: column %d: %w", i, err)
			}
			continue
		}
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("dbtest: destination %d is not a pointer", i)
		}
		if v == nil {
			target.Elem().Set(reflect.Zero(target.Elem().Type()))
			continue
		}
		val := reflect.ValueOf(v)
		if !val.Type().AssignableTo(target.Elem().Type()) {
			if !val.Type().ConvertibleTo(target.Elem().Type()) {
				return fmt.Errorf("dbtest: column %d: cannot assign %T to %s", i, v, target.Elem().Type())
			}
			val = val.Convert(target.Elem().Type())
		}
		target.Elem().Set(val)
	}
	return nil
}
