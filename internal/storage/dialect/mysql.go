package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the store cares about. Anything else is
// unknown and surfaces as an internal error with the native number.
const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrNoReferencedRow  = 1452
)

// mysqlDialect adapts MySQL and MariaDB. The two share a driver and
// error-number space; only the reported code differs.
type mysqlDialect struct {
	code Code
}

func (d mysqlDialect) Code() Code                 { return d.code }
func (mysqlDialect) DriverName() string           { return "mysql" }
func (mysqlDialect) SupportsGeneratedKeys() bool  { return true }
func (mysqlDialect) BooleanType() string          { return "BOOLEAN" }
func (mysqlDialect) BinaryType() string           { return "LONGBLOB" }
func (mysqlDialect) AutoincrementPK() string      { return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY" }
func (mysqlDialect) Rebind(query string) string   { return query }

func (mysqlDialect) MappingTableName() string { return "key_mapping" }

func (mysqlDialect) PrepareMappingTable(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS key_mapping"); err != nil {
		return fmt.Errorf("mysql: drop mapping table: %w", err)
	}
	ddl := "CREATE TEMPORARY TABLE key_mapping " + mappingTableDDL
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mysql: create mapping table: %w", err)
	}
	return nil
}

func (mysqlDialect) MapError(err error) ErrorCode {
	return mapMySQLError(err)
}

func mapMySQLError(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code := mapSynthetic(err); code != CodeUnknown {
		return code
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDuplicateEntry:
			return CodeInsertDuplicate
		case mysqlErrNoReferencedRow:
			return CodeInsertMissingFK
		}
	}
	return CodeUnknown
}
