package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tagforge/metastore/internal/storage/dialect"
)

// storeTx is one in-flight transaction: a dedicated connection plus the
// scratch-table stage counter. All reader and writer primitives hang off
// this type so that everything in one public operation shares the
// connection and the mapping table.
type storeTx struct {
	conn        *sql.Conn
	d           dialect.Dialect
	searchLimit int
	stage       int
}

// nextStage returns a fresh mapping_stage value, discriminating multiple
// uses of the scratch table within one transaction.
func (tx *storeTx) nextStage() int {
	tx.stage++
	return tx.stage
}

func (tx *storeTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.conn.ExecContext(ctx, tx.d.Rebind(query), args...)
}

func (tx *storeTx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.conn.QueryContext(ctx, tx.d.Rebind(query), args...)
}

func (tx *storeTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.conn.QueryRowContext(ctx, tx.d.Rebind(query), args...)
}

// begin opens the transaction. SQLite takes the write lock up front
// (BEGIN IMMEDIATE) and retries on SQLITE_BUSY with exponential backoff;
// other dialects use a plain BEGIN.
func (s *Store) begin(ctx context.Context, conn *sql.Conn) error {
	if s.d.Code() != dialect.SQLite {
		_, err := conn.ExecContext(ctx, "BEGIN")
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(10*time.Millisecond),
			backoff.WithMaxInterval(250*time.Millisecond),
		), 5), ctx)

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") ||
			strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, policy)
}

// sqliteConnString builds a SQLite connection string with the standard
// pragmas: foreign keys on, busy timeout, and WAL-friendly settings.
// Paths that are already file: URIs keep their own parameters.
func sqliteConnString(path string) string {
	path = strings.TrimSpace(path)

	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)"

	if path == "" || path == ":memory:" {
		// Shared named in-memory database: every pooled connection sees
		// the same data. WAL does not apply to in-memory databases.
		return "file:metastore?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	}

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + pragmas
		}
		return conn
	}

	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o750)
	}
	return fmt.Sprintf("file:%s?%s", path, pragmas)
}

func isInMemorySQLite(dsn string) bool {
	return dsn == ":memory:" || dsn == "" ||
		(strings.HasPrefix(dsn, "file:") && strings.Contains(dsn, "mode=memory"))
}
