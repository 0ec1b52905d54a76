package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Import the embedded Dolt driver (registers as "dolt").
	_ "github.com/dolthub/driver"
)

// doltDialect adapts embedded Dolt. Dolt speaks the MySQL dialect but its
// embedded engine reports errors as plain text rather than MySQL error
// numbers, so classification matches on the message the way the MySQL
// wire errors would read.
type doltDialect struct{}

func (doltDialect) Code() Code                 { return Dolt }
func (doltDialect) DriverName() string         { return "dolt" }
func (doltDialect) SupportsGeneratedKeys() bool { return true }
func (doltDialect) BooleanType() string        { return "BOOLEAN" }
func (doltDialect) BinaryType() string         { return "LONGBLOB" }
func (doltDialect) AutoincrementPK() string    { return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY" }
func (doltDialect) Rebind(query string) string { return query }

func (doltDialect) MappingTableName() string { return "key_mapping" }

func (doltDialect) PrepareMappingTable(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS key_mapping"); err != nil {
		return fmt.Errorf("dolt: drop mapping table: %w", err)
	}
	ddl := "CREATE TEMPORARY TABLE key_mapping " + mappingTableDDL
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("dolt: create mapping table: %w", err)
	}
	return nil
}

func (doltDialect) MapError(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code := mapSynthetic(err); code != CodeUnknown {
		return code
	}
	if code := mapMySQLError(err); code != CodeUnknown {
		return code
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate primary key") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "unique key constraint violation"):
		return CodeInsertDuplicate
	case strings.Contains(msg, "foreign key violation") ||
		strings.Contains(msg, "Cannot add or update a child row"):
		return CodeInsertMissingFK
	}
	return CodeUnknown
}
