package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Import the wasm-backed SQLite driver and its embedded build.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// sqliteDialect adapts the embedded SQLite database. SQLite fills the
// dev/test role: zero setup, one file (or memory), full SQL surface.
type sqliteDialect struct{}

func (sqliteDialect) Code() Code                 { return SQLite }
func (sqliteDialect) DriverName() string         { return "sqlite3" }
func (sqliteDialect) SupportsGeneratedKeys() bool { return true }
func (sqliteDialect) BooleanType() string        { return "BOOLEAN" }
func (sqliteDialect) BinaryType() string         { return "BLOB" }
func (sqliteDialect) AutoincrementPK() string    { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) MappingTableName() string { return "key_mapping" }

func (d sqliteDialect) PrepareMappingTable(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS temp.key_mapping"); err != nil {
		return fmt.Errorf("sqlite: drop mapping table: %w", err)
	}
	ddl := "CREATE TEMP TABLE key_mapping " + mappingTableDDL
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create mapping table: %w", err)
	}
	return nil
}

// MapError classifies SQLite failures. The driver reports constraint
// violations in the error text; matching on the constraint phrase is the
// stable way to detect them across driver versions.
func (sqliteDialect) MapError(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code := mapSynthetic(err); code != CodeUnknown {
		return code
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return CodeInsertDuplicate
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return CodeInsertMissingFK
	}
	return CodeUnknown
}
