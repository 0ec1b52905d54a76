package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tagforge/metastore/internal/storage/dialect"
)

// Timestamps are stored as UTC microseconds in BIGINT columns so that
// as-of comparisons behave identically on every dialect.

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func timeFromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// schemaDDL renders the full schema for a dialect. Table shapes are
// shared; the dialect supplies the generated-key, boolean and binary
// column types.
func schemaDDL(d dialect.Dialect) []string {
	pk := d.AutoincrementPK()
	boolT := d.BooleanType()
	binT := d.BinaryType()

	return []string{
		`CREATE TABLE IF NOT EXISTS tenant (
    tenant_id INTEGER NOT NULL,
    tenant_code VARCHAR(64) NOT NULL,
    description VARCHAR(512),
    PRIMARY KEY (tenant_id),
    CONSTRAINT tenant_code_uq UNIQUE (tenant_code)
)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS object_id (
    pk %s,
    tenant_id INTEGER NOT NULL,
    object_type VARCHAR(32) NOT NULL,
    id_hi BIGINT NOT NULL,
    id_lo BIGINT NOT NULL,
    CONSTRAINT object_id_uq UNIQUE (tenant_id, id_hi, id_lo)
)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS object_definition (
    pk %s,
    tenant_id INTEGER NOT NULL,
    object_fk BIGINT NOT NULL,
    object_version INTEGER NOT NULL,
    object_timestamp BIGINT NOT NULL,
    superseded_at BIGINT,
    is_latest %s NOT NULL,
    meta_format INTEGER NOT NULL,
    meta_version INTEGER NOT NULL,
    definition %s NOT NULL,
    CONSTRAINT object_definition_uq UNIQUE (tenant_id, object_fk, object_version),
    CONSTRAINT object_definition_fk FOREIGN KEY (object_fk) REFERENCES object_id (pk)
)`, pk, boolT, binT),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tag (
    pk %s,
    tenant_id INTEGER NOT NULL,
    definition_fk BIGINT NOT NULL,
    tag_version INTEGER NOT NULL,
    tag_timestamp BIGINT NOT NULL,
    superseded_at BIGINT,
    is_latest %s NOT NULL,
    object_type VARCHAR(32) NOT NULL,
    CONSTRAINT tag_uq UNIQUE (tenant_id, definition_fk, tag_version),
    CONSTRAINT tag_fk FOREIGN KEY (definition_fk) REFERENCES object_definition (pk)
)`, pk, boolT),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tag_attr (
    tenant_id INTEGER NOT NULL,
    tag_fk BIGINT NOT NULL,
    attr_name VARCHAR(256) NOT NULL,
    attr_type VARCHAR(16) NOT NULL,
    attr_index INTEGER NOT NULL,
    attr_value_boolean %s,
    attr_value_integer BIGINT,
    attr_value_float DOUBLE PRECISION,
    attr_value_string TEXT,
    attr_value_decimal VARCHAR(64),
    attr_value_date VARCHAR(10),
    attr_value_datetime BIGINT,
    PRIMARY KEY (tenant_id, tag_fk, attr_name, attr_index),
    CONSTRAINT tag_attr_fk FOREIGN KEY (tag_fk) REFERENCES tag (pk)
)`, boolT),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS config_entry (
    pk %s,
    tenant_id INTEGER NOT NULL,
    config_class VARCHAR(256) NOT NULL,
    config_key VARCHAR(256) NOT NULL,
    config_version INTEGER NOT NULL,
    config_timestamp BIGINT NOT NULL,
    superseded_at BIGINT,
    is_latest %s NOT NULL,
    is_deleted %s NOT NULL,
    meta_format INTEGER NOT NULL,
    meta_version INTEGER NOT NULL,
    details %s,
    CONSTRAINT config_entry_uq UNIQUE (tenant_id, config_class, config_key, config_version)
)`, pk, boolT, boolT, binT),

		`CREATE INDEX idx_object_definition_latest ON object_definition (tenant_id, object_fk, is_latest)`,
		`CREATE INDEX idx_object_definition_asof ON object_definition (tenant_id, object_fk, object_timestamp, superseded_at)`,
		`CREATE INDEX idx_tag_latest ON tag (tenant_id, definition_fk, is_latest)`,
		`CREATE INDEX idx_tag_asof ON tag (tenant_id, definition_fk, tag_timestamp, superseded_at)`,
		`CREATE INDEX idx_config_entry_latest ON config_entry (tenant_id, config_class, config_key, is_latest)`,
		`CREATE INDEX idx_config_entry_class ON config_entry (tenant_id, config_class, is_latest)`,
	}
}

// InitSchema creates all tables and indexes if the schema is not already
// present. Detection is by the tenant table: if it exists the schema is
// assumed complete (MySQL has no CREATE INDEX IF NOT EXISTS, so index
// creation cannot be retried blindly).
func (s *Store) InitSchema(ctx context.Context) error {
	exists, err := s.schemaExists(ctx)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	if exists {
		return nil
	}
	for _, ddl := range schemaDDL(s.d) {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) schemaExists(ctx context.Context) (bool, error) {
	// Probing the table directly is portable; the error on a missing
	// table differs per dialect but always fails the query.
	var n int
	err := s.db.QueryRowContext(ctx, s.d.Rebind(`SELECT COUNT(*) FROM tenant`)).Scan(&n)
	if err != nil {
		return false, nil //nolint:nilerr // missing table reads as "no schema"
	}
	return true, nil
}
