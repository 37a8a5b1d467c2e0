// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
package fakedb // import "github.com/go-lpc/urukul/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Tables associates table names with the rows returned by queries
// selecting from them.
type Tables map[string]Rows

var db struct {
	mu     sync.Mutex
	tables Tables
	seen   []string
}

// Run runs f with the provided in-memory tables installed.
// Runs are serialized.
func Run(ctx context.Context, tables Tables, f func(ctx context.Context) error) error {
	db.mu.Lock()
	db.tables = tables
	db.seen = nil
	db.mu.Unlock()

	return f(ctx)
}

// Queries returns the queries executed since the last call to Run.
func Queries() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.seen...)
}

func lookup(query string) (*Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seen = append(db.seen, query)

	q := strings.ToLower(query)
	i := strings.Index(q, " from ")
	if i < 0 {
		return nil, fmt.Errorf("fakedb: invalid query %q", query)
	}
	name := strings.Fields(q[i+len(" from "):])[0]

	rows, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("fakedb: unknown table %q", name)
	}
	return &Rows{
		Names:  rows.Names,
		Values: append([][]driver.Value(nil), rows.Values...),
	}, nil
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

// Close invalidates and potentially stops any current
// prepared statements and transactions, marking this
// connection as no longer in use.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("fakedb: transactions not supported")
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(ctx context.Context) error {
	return ctx.Err()
}

type Stmt struct {
	query string
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters.
// The fake driver does not check argument counts.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows, such
// as an INSERT or UPDATE.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, fmt.Errorf("fakedb: read-only database")
}

// Query executes a query that may return rows, such as a
// SELECT.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return lookup(stmt.query)
}

// QueryContext executes a query that may return rows, such as a
// SELECT.
func (stmt *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return lookup(stmt.query)
}

type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next is called to populate the next row of data into
// the provided slice.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver           = (*Driver)(nil)
	_ driver.Conn             = (*Conn)(nil)
	_ driver.Pinger           = (*Conn)(nil)
	_ driver.Stmt             = (*Stmt)(nil)
	_ driver.StmtQueryContext = (*Stmt)(nil)
	_ driver.Rows             = (*Rows)(nil)
)
