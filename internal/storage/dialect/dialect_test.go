package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestForKnownCodes(t *testing.T) {
	for _, code := range []Code{SQLite, MySQL, MariaDB, PostgreSQL, Dolt} {
		d, err := For(code)
		if err != nil {
			t.Fatalf("For(%s): %v", code, err)
		}
		if d.Code() != code {
			t.Fatalf("For(%s).Code() = %s", code, d.Code())
		}
		if d.MappingTableName() == "" {
			t.Fatalf("%s: empty mapping table name", code)
		}
	}
	if _, err := For("oracle"); err == nil {
		t.Fatalf("unknown dialect accepted")
	}
}

func TestRebindDollar(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"INSERT INTO t VALUES (?, ?, ?)", "INSERT INTO t VALUES ($1, $2, $3)"},
		{"SELECT '?' , a FROM t WHERE b = ?", "SELECT '?' , a FROM t WHERE b = $1"},
	}
	for _, c := range cases {
		if got := rebindDollar(c.in); got != c.want {
			t.Errorf("rebindDollar(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPostgresRebind(t *testing.T) {
	d, _ := For(PostgreSQL)
	got := d.Rebind("UPDATE t SET a = ? WHERE b = ?")
	if got != "UPDATE t SET a = $1 WHERE b = $2" {
		t.Fatalf("Rebind = %q", got)
	}
	// MySQL-family dialects keep ? placeholders as-is.
	for _, code := range []Code{SQLite, MySQL, MariaDB, Dolt} {
		d, _ := For(code)
		if got := d.Rebind("a = ?"); got != "a = ?" {
			t.Fatalf("%s: Rebind = %q", code, got)
		}
	}
}

func TestMapSyntheticErrors(t *testing.T) {
	d, _ := For(SQLite)
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{ErrNoData, CodeNoData},
		{ErrTooManyRows, CodeTooManyRows},
		{ErrWrongObjectType, CodeWrongObjectType},
		{ErrInvalidObjectDefinition, CodeInvalidObjectDefinition},
		{ErrInvalidConfigEntry, CodeInvalidConfigEntry},
		{fmt.Errorf("context: %w", ErrTooManyRows), CodeTooManyRows},
	}
	for _, c := range cases {
		if got := d.MapError(c.err); got != c.want {
			t.Errorf("MapError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestSQLiteMapError(t *testing.T) {
	d, _ := For(SQLite)
	if got := d.MapError(errors.New("sqlite3: constraint failed: UNIQUE constraint failed: object_id.id_hi")); got != CodeInsertDuplicate {
		t.Fatalf("unique violation = %v", got)
	}
	if got := d.MapError(errors.New("sqlite3: constraint failed: FOREIGN KEY constraint failed")); got != CodeInsertMissingFK {
		t.Fatalf("fk violation = %v", got)
	}
	if got := d.MapError(errors.New("disk I/O error")); got != CodeUnknown {
		t.Fatalf("io error = %v", got)
	}
	if got := d.MapError(nil); got != CodeUnknown {
		t.Fatalf("nil = %v", got)
	}
}

func TestMySQLMapError(t *testing.T) {
	d, _ := For(MySQL)
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if got := d.MapError(dup); got != CodeInsertDuplicate {
		t.Fatalf("1062 = %v", got)
	}
	if got := d.MapError(fmt.Errorf("exec: %w", dup)); got != CodeInsertDuplicate {
		t.Fatalf("wrapped 1062 = %v", got)
	}
	fk := &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}
	if got := d.MapError(fk); got != CodeInsertMissingFK {
		t.Fatalf("1452 = %v", got)
	}
	other := &mysql.MySQLError{Number: 1064, Message: "syntax error"}
	if got := d.MapError(other); got != CodeUnknown {
		t.Fatalf("1064 = %v", got)
	}

	// MariaDB shares the adapter and the number space.
	md, _ := For(MariaDB)
	if got := md.MapError(dup); got != CodeInsertDuplicate {
		t.Fatalf("mariadb 1062 = %v", got)
	}
}

func TestPostgresMapError(t *testing.T) {
	d, _ := For(PostgreSQL)
	if got := d.MapError(&pq.Error{Code: "23505"}); got != CodeInsertDuplicate {
		t.Fatalf("23505 = %v", got)
	}
	if got := d.MapError(&pq.Error{Code: "23503"}); got != CodeInsertMissingFK {
		t.Fatalf("23503 = %v", got)
	}
	if got := d.MapError(&pq.Error{Code: "42601"}); got != CodeUnknown {
		t.Fatalf("42601 = %v", got)
	}
}

func TestDoltMapError(t *testing.T) {
	d, _ := For(Dolt)
	textCases := []struct {
		msg  string
		want ErrorCode
	}{
		{"duplicate primary key given: [1,2]", CodeInsertDuplicate},
		{"Duplicate entry 'x' for key 'object_id_uq'", CodeInsertDuplicate},
		{"unique key constraint violation: object_id_uq", CodeInsertDuplicate},
		{"foreign key violation on tag_fk", CodeInsertMissingFK},
		{"Cannot add or update a child row: a foreign key constraint fails", CodeInsertMissingFK},
		{"table not found: nope", CodeUnknown},
	}
	for _, c := range textCases {
		if got := d.MapError(errors.New(c.msg)); got != c.want {
			t.Errorf("MapError(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
	// Wire-level MySQL errors classify too.
	if got := d.MapError(&mysql.MySQLError{Number: 1062}); got != CodeInsertDuplicate {
		t.Fatalf("dolt 1062 = %v", got)
	}
}

func TestGeneratedKeySupport(t *testing.T) {
	expect := map[Code]bool{
		SQLite:     true,
		MySQL:      true,
		MariaDB:    true,
		Dolt:       true,
		PostgreSQL: false,
	}
	for code, want := range expect {
		d, _ := For(code)
		if got := d.SupportsGeneratedKeys(); got != want {
			t.Errorf("%s: SupportsGeneratedKeys = %t, want %t", code, got, want)
		}
	}
}
