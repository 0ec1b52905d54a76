// Package dialect abstracts per-database differences behind a narrow
// capability set: identity retrieval, temp-table lifecycle, boolean and
// binary column types, placeholder style, and the mapping from
// driver-native error codes to the store's closed error-code enum.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Code identifies a supported SQL dialect.
type Code string

const (
	SQLite     Code = "sqlite"
	MySQL      Code = "mysql"
	MariaDB    Code = "mariadb"
	PostgreSQL Code = "postgresql"
	Dolt       Code = "dolt"
)

// ErrorCode is the closed enum of driver-error classifications the store
// understands. Anything a dialect cannot classify is CodeUnknown and
// surfaces as an internal error.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeInsertDuplicate
	CodeInsertMissingFK
	CodeNoData
	CodeTooManyRows
	CodeWrongObjectType
	CodeInvalidObjectDefinition
	CodeInvalidConfigEntry
)

// Synthetic sentinels raised by internal store assertions. Dialects
// recognize these ahead of driver-native inspection, so that assertion
// failures travel the same classification path as driver errors.
var (
	ErrNoData                  = errors.New("synthetic: no data")
	ErrTooManyRows             = errors.New("synthetic: too many rows")
	ErrWrongObjectType         = errors.New("synthetic: wrong object type")
	ErrInvalidObjectDefinition = errors.New("synthetic: invalid object definition")
	ErrInvalidConfigEntry      = errors.New("synthetic: invalid config entry")
)

// Dialect is the per-database capability set.
type Dialect interface {
	// Code returns the dialect identifier.
	Code() Code

	// DriverName is the database/sql driver registration name.
	DriverName() string

	// SupportsGeneratedKeys reports whether inserts can return generated
	// primary keys through the driver. When false, the batch writer
	// re-looks up inserted keys through the mapping table.
	SupportsGeneratedKeys() bool

	// MappingTableName is the exact identifier for the per-transaction
	// key-mapping scratch relation.
	MappingTableName() string

	// PrepareMappingTable drops any prior mapping relation on the
	// session and creates a fresh one. Called once per transaction
	// before the scratch is first used.
	PrepareMappingTable(ctx context.Context, conn *sql.Conn) error

	// MapError classifies a driver (or synthetic) error.
	MapError(err error) ErrorCode

	// BooleanType is the SQL column type used for boolean flags.
	BooleanType() string

	// BinaryType is the SQL column type used for opaque payloads.
	BinaryType() string

	// AutoincrementPK is the column DDL for a generated bigint primary key.
	AutoincrementPK() string

	// Rebind translates ? placeholders into the dialect's native style.
	Rebind(query string) string
}

// For returns the adapter for a dialect code.
func For(code Code) (Dialect, error) {
	switch code {
	case SQLite:
		return sqliteDialect{}, nil
	case MySQL:
		return mysqlDialect{code: MySQL}, nil
	case MariaDB:
		return mysqlDialect{code: MariaDB}, nil
	case Dolt:
		return doltDialect{}, nil
	case PostgreSQL:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (supported: sqlite, mysql, mariadb, postgresql, dolt)", code)
	}
}

// mapSynthetic classifies the synthetic sentinels shared by all dialects.
// Returns CodeUnknown when err is not synthetic.
func mapSynthetic(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNoData):
		return CodeNoData
	case errors.Is(err, ErrTooManyRows):
		return CodeTooManyRows
	case errors.Is(err, ErrWrongObjectType):
		return CodeWrongObjectType
	case errors.Is(err, ErrInvalidObjectDefinition):
		return CodeInvalidObjectDefinition
	case errors.Is(err, ErrInvalidConfigEntry):
		return CodeInvalidConfigEntry
	}
	return CodeUnknown
}

// rebindDollar rewrites ? placeholders as $1..$n, skipping quoted strings.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// mappingTableDDL is the scratch-relation shape shared by every dialect.
// Unused columns stay null; (mapping_stage, ordering) orders each batch.
const mappingTableDDL = `(
    mapping_stage INTEGER NOT NULL,
    ordering INTEGER NOT NULL,
    id_hi BIGINT,
    id_lo BIGINT,
    fk BIGINT,
    ver INTEGER,
    pk BIGINT,
    PRIMARY KEY (mapping_stage, ordering)
)`
