package testutil_test

import (
	"context"
	"strings"
	"testing"

	"evocore/internal/infra/persistence/postgres/testutil"
)

func TestSnapshotDBUpsertAndScan(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewSnapshotDB()
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		t.Fatalf("ddl: %v", err)
	}
	upsert := `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`
	if _, err := db.ExecContext(ctx, upsert, "variants", []byte(`{"wt":{}}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, upsert, "rounds", []byte(`{}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// Writing a bucket again replaces its payload.
	if _, err := db.ExecContext(ctx, upsert, "variants", []byte(`{"wt":{},"v1":{}}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if payload, ok := conn.Payload("variants"); !ok || string(payload) != `{"wt":{},"v1":{}}` {
		t.Fatalf("variants payload = %s ok=%v", payload, ok)
	}

	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var buckets []string
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if strings.Join(buckets, ",") != "rounds,variants" {
		t.Fatalf("buckets = %v, want sorted order", buckets)
	}

	if len(conn.Statements) != 4 || !strings.HasPrefix(conn.Statements[0], "CREATE TABLE") {
		t.Fatalf("recorded statements = %v", conn.Statements)
	}
}

func TestSnapshotDBRejectsUnknownStatements(t *testing.T) {
	ctx := context.Background()
	db, _ := testutil.NewSnapshotDB()
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, `DELETE FROM state WHERE bucket = $1`, "variants"); err == nil {
		t.Fatalf("unrecognized statement must fail loudly")
	}
	if _, err := db.QueryContext(ctx, `SELECT payload FROM archive`); err == nil {
		t.Fatalf("unrecognized query must fail loudly")
	}
}

func TestSnapshotDBFailureModes(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewSnapshotDB()
	defer func() { _ = db.Close() }()

	conn.FailPing = true
	if err := db.PingContext(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailPing = false

	conn.FailExec = true
	if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2)`, "labels", []byte(`{}`)); err == nil {
		t.Fatalf("expected exec failure")
	}
	conn.FailExec = false

	conn.FailBegin = true
	if _, err := db.BeginTx(ctx, nil); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false

	conn.FailCommit = true
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
}
