package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE classes the store cares about.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// postgresDialect adapts PostgreSQL. lib/pq does not implement
// LastInsertId, so generated keys are unavailable through the driver and
// the batch writer re-looks up inserted primary keys via the mapping
// table instead.
type postgresDialect struct{}

func (postgresDialect) Code() Code                 { return PostgreSQL }
func (postgresDialect) DriverName() string         { return "postgres" }
func (postgresDialect) SupportsGeneratedKeys() bool { return false }
func (postgresDialect) BooleanType() string        { return "BOOLEAN" }
func (postgresDialect) BinaryType() string         { return "BYTEA" }
func (postgresDialect) AutoincrementPK() string    { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) Rebind(query string) string { return rebindDollar(query) }

func (postgresDialect) MappingTableName() string { return "key_mapping" }

func (postgresDialect) PrepareMappingTable(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS key_mapping"); err != nil {
		return fmt.Errorf("postgres: drop mapping table: %w", err)
	}
	ddl := "CREATE TEMP TABLE key_mapping " + mappingTableDDL
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create mapping table: %w", err)
	}
	return nil
}

func (postgresDialect) MapError(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code := mapSynthetic(err); code != CodeUnknown {
		return code
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch string(pe.Code) {
		case pgUniqueViolation:
			return CodeInsertDuplicate
		case pgForeignKeyViolation:
			return CodeInsertMissingFK
		}
	}
	return CodeUnknown
}
