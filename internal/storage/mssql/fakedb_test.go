package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// recorder is an in-process driver that logs every statement. Queries
// answer from results, matched by substring; failOn makes matching
// statements fail.
type recorder struct {
	mu      sync.Mutex
	stmts   []string
	results map[string][]driver.Value
	failOn  string
	failErr error
}

func (r *recorder) Connect(context.Context) (driver.Conn, error) { return &recConn{r: r}, nil }
func (r *recorder) Driver() driver.Driver                       { return recDriver{r} }

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

func (r *recorder) record(q string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, q)
	if r.failOn != "" && strings.Contains(q, r.failOn) {
		return r.failErr
	}
	return nil
}

type recDriver struct{ r *recorder }

func (d recDriver) Open(string) (driver.Conn, error) { return &recConn{r: d.r}, nil }

type recConn struct{ r *recorder }

func (c *recConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (c *recConn) Close() error                        { return nil }
func (c *recConn) Begin() (driver.Tx, error)           { return nil, errors.New("tx not supported") }

func (c *recConn) ExecContext(_ context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.r.record(q); err != nil {
		return nil, err
	}
	return driver.RowsAffected(int64(len(args))), nil
}

func (c *recConn) QueryContext(_ context.Context, q string, _ []driver.NamedValue) (driver.Rows, error) {
	if err := c.r.record(q); err != nil {
		return nil, err
	}
	for frag, vals := range c.r.results {
		if strings.Contains(q, frag) {
			return &recRows{vals: vals}, nil
		}
	}
	return &recRows{}, nil
}

// recRows yields one single-column row per value.
type recRows struct {
	vals []driver.Value
	i    int
}

func (r *recRows) Columns() []string { return []string{"v"} }
func (r *recRows) Close() error      { return nil }
func (r *recRows) Next(dest []driver.Value) error {
	if r.i >= len(r.vals) {
		return io.EOF
	}
	dest[0] = r.vals[r.i]
	r.i++
	return nil
}

func newRecorded(rec *recorder) *Repository {
	return newRepo(sql.OpenDB(rec))
}
