// Package testutil fakes the narrow database/sql surface the postgres store
// touches: one snapshot table keyed by bucket, reached through Ping, BeginTx,
// ExecContext and QueryContext. Store tests run against it without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

var snapshotSeq uint64

// SnapshotConn holds the fake state table and records every statement the
// store issues, normalized to single-space form for assertions.
type SnapshotConn struct {
	Statements []string
	Buckets    map[string][]byte

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
}

// NewSnapshotDB registers a sql.DB backed by an in-memory snapshot connection.
func NewSnapshotDB() (*sql.DB, *SnapshotConn) {
	conn := &SnapshotConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("evocorestub%d", atomic.AddUint64(&snapshotSeq, 1))
	sql.Register(name, &snapshotDriver{conn: conn})
	db, err := sql.Open(name, "snapshot")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Payload returns the stored payload for a bucket.
func (c *SnapshotConn) Payload(bucket string) ([]byte, bool) {
	data, ok := c.Buckets[bucket]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

type snapshotDriver struct {
	conn *SnapshotConn
}

func (d *snapshotDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *SnapshotConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("not implemented")
}

// Close implements driver.Conn.
func (c *SnapshotConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *SnapshotConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *SnapshotConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *SnapshotConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &snapshotTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. Only the statement shapes the
// store issues are recognized: the state-table DDL and the bucket upsert.
func (c *SnapshotConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	stmt := normalize(query)
	c.Statements = append(c.Statements, stmt)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	lower := strings.ToLower(stmt)
	switch {
	case strings.HasPrefix(lower, "create table"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(lower, "insert into state"):
		bucket, payload, err := upsertArgs(args)
		if err != nil {
			return nil, err
		}
		if c.Buckets == nil {
			c.Buckets = make(map[string][]byte)
		}
		c.Buckets[bucket] = payload
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", stmt)
	}
}

// QueryContext implements driver.QueryerContext, serving the snapshot rows
// ordered by bucket for deterministic scans.
func (c *SnapshotConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	stmt := strings.ToLower(normalize(query))
	if !strings.HasPrefix(stmt, "select bucket, payload from state") {
		return nil, fmt.Errorf("unsupported query: %s", stmt)
	}
	buckets := make([]string, 0, len(c.Buckets))
	for bucket := range c.Buckets {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	values := make([][]driver.Value, 0, len(buckets))
	for _, bucket := range buckets {
		values = append(values, []driver.Value{bucket, append([]byte(nil), c.Buckets[bucket]...)})
	}
	return &snapshotRows{rows: values, err: c.RowsErr}, nil
}

func upsertArgs(args []driver.NamedValue) (string, []byte, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("bucket upsert expects 2 args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return "", nil, fmt.Errorf("bucket arg is %T, want string", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return "", nil, fmt.Errorf("payload arg is %T, want []byte", args[1].Value)
	}
	return bucket, append([]byte(nil), payload...), nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

type snapshotTx struct {
	conn *SnapshotConn
}

func (t *snapshotTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *snapshotTx) Rollback() error { return nil }

type snapshotRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *snapshotRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *snapshotRows) Close() error      { return nil }

func (r *snapshotRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
