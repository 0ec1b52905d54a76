package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/types"
)

// The key-mapping scratch table is the batch-resolution workhorse: a
// per-transaction relation used as an ordered parameter vector. Keys go
// in with an ordering index, one set-based update resolves them to
// backing primary keys, and the pks come back in input order. A batch of
// N keys costs two round trips regardless of N.

// mappingChunk bounds rows per multi-row insert. Seven columns per row
// keeps the bind-parameter count under every dialect's limit.
const mappingChunk = 100

type mappingRow struct {
	ordering int
	idHi     sql.NullInt64
	idLo     sql.NullInt64
	fk       sql.NullInt64
	ver      sql.NullInt64
	pk       sql.NullInt64
}

func (tx *storeTx) insertMappingRows(ctx context.Context, stage int, rows []mappingRow) error {
	table := tx.d.MappingTableName()
	for start := 0; start < len(rows); start += mappingChunk {
		end := min(start+mappingChunk, len(rows))
		chunk := rows[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (mapping_stage, ordering, id_hi, id_lo, fk, ver, pk) VALUES ", table)
		args := make([]any, 0, len(chunk)*7)
		for i, r := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, stage, r.ordering, r.idHi, r.idLo, r.fk, r.ver, r.pk)
		}
		if _, err := tx.exec(ctx, b.String(), args...); err != nil {
			return storage.Internalf("insert mapping rows: %v", err)
		}
	}
	return nil
}

// insertIDs loads one row per UUID, split into hi/lo halves.
func (tx *storeTx) insertIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	stage := tx.nextStage()
	rows := make([]mappingRow, len(ids))
	for i, id := range ids {
		hi, lo := types.UUIDHiLo(id)
		rows[i] = mappingRow{
			ordering: i,
			idHi:     sql.NullInt64{Int64: hi, Valid: true},
			idLo:     sql.NullInt64{Int64: lo, Valid: true},
		}
	}
	return stage, tx.insertMappingRows(ctx, stage, rows)
}

// insertFKs loads one row per foreign key (latest-row resolution).
func (tx *storeTx) insertFKs(ctx context.Context, fks []int64) (int, error) {
	stage := tx.nextStage()
	rows := make([]mappingRow, len(fks))
	for i, fk := range fks {
		rows[i] = mappingRow{ordering: i, fk: sql.NullInt64{Int64: fk, Valid: true}}
	}
	return stage, tx.insertMappingRows(ctx, stage, rows)
}

// insertPKs loads resolved primary keys directly (fetch joins).
func (tx *storeTx) insertPKs(ctx context.Context, pks []int64) (int, error) {
	stage := tx.nextStage()
	rows := make([]mappingRow, len(pks))
	for i, pk := range pks {
		rows[i] = mappingRow{ordering: i, pk: sql.NullInt64{Int64: pk, Valid: true}}
	}
	return stage, tx.insertMappingRows(ctx, stage, rows)
}

// insertFKVersions loads paired (fk, version) rows for explicit-version
// resolution.
func (tx *storeTx) insertFKVersions(ctx context.Context, fks []int64, versions []int) (int, error) {
	stage := tx.nextStage()
	rows := make([]mappingRow, len(fks))
	for i, fk := range fks {
		rows[i] = mappingRow{
			ordering: i,
			fk:       sql.NullInt64{Int64: fk, Valid: true},
			ver:      sql.NullInt64{Int64: int64(versions[i]), Valid: true},
		}
	}
	return stage, tx.insertMappingRows(ctx, stage, rows)
}

// insertFKAsOf loads paired (fk, as-of) rows. The as-of instant rides in
// the otherwise unused id_hi column: `ver` is 32-bit, microsecond
// timestamps need 64.
func (tx *storeTx) insertFKAsOf(ctx context.Context, fks []int64, asOfMicros []int64) (int, error) {
	stage := tx.nextStage()
	rows := make([]mappingRow, len(fks))
	for i, fk := range fks {
		rows[i] = mappingRow{
			ordering: i,
			fk:       sql.NullInt64{Int64: fk, Valid: true},
			idHi:     sql.NullInt64{Int64: asOfMicros[i], Valid: true},
		}
	}
	return stage, tx.insertMappingRows(ctx, stage, rows)
}

// resolveObjectIDs fills pk for rows holding UUID halves.
func (tx *storeTx) resolveObjectIDs(ctx context.Context, tenantID, stage int) error {
	table := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		UPDATE %[1]s SET pk = (
		    SELECT oid.pk FROM object_id oid
		    WHERE oid.tenant_id = ?
		      AND oid.id_hi = %[1]s.id_hi
		      AND oid.id_lo = %[1]s.id_lo)
		WHERE mapping_stage = ?`, table)
	if _, err := tx.exec(ctx, q, tenantID, stage); err != nil {
		return storage.Internalf("resolve object ids: %v", err)
	}
	return nil
}

// versionedTarget names a versioned table for the shared resolution
// patterns: definitions and tags differ only in identifiers.
type versionedTarget struct {
	table        string // object_definition | tag
	parentFK     string // object_fk | definition_fk
	versionCol   string // object_version | tag_version
	timestampCol string // object_timestamp | tag_timestamp
}

var (
	definitionTarget = versionedTarget{
		table: "object_definition", parentFK: "object_fk",
		versionCol: "object_version", timestampCol: "object_timestamp",
	}
	tagTarget = versionedTarget{
		table: "tag", parentFK: "definition_fk",
		versionCol: "tag_version", timestampCol: "tag_timestamp",
	}
)

// resolveByVersion fills pk from (tenant, parent fk, version) pairs.
func (tx *storeTx) resolveByVersion(ctx context.Context, tenantID, stage int, t versionedTarget) error {
	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		UPDATE %[1]s SET pk = (
		    SELECT v.pk FROM %[2]s v
		    WHERE v.tenant_id = ?
		      AND v.%[3]s = %[1]s.fk
		      AND v.%[4]s = %[1]s.ver)
		WHERE mapping_stage = ?`, km, t.table, t.parentFK, t.versionCol)
	if _, err := tx.exec(ctx, q, tenantID, stage); err != nil {
		return storage.Internalf("resolve %s by version: %v", t.table, err)
	}
	return nil
}

// resolveByLatest fills pk from the latest row per parent fk.
func (tx *storeTx) resolveByLatest(ctx context.Context, tenantID, stage int, t versionedTarget) error {
	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		UPDATE %[1]s SET pk = (
		    SELECT v.pk FROM %[2]s v
		    WHERE v.tenant_id = ?
		      AND v.%[3]s = %[1]s.fk
		      AND v.is_latest = ?)
		WHERE mapping_stage = ?`, km, t.table, t.parentFK)
	if _, err := tx.exec(ctx, q, tenantID, true, stage); err != nil {
		return storage.Internalf("resolve %s by latest: %v", t.table, err)
	}
	return nil
}

// resolveByAsOf fills pk from the row whose validity interval contains
// the as-of instant carried in id_hi.
func (tx *storeTx) resolveByAsOf(ctx context.Context, tenantID, stage int, t versionedTarget) error {
	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		UPDATE %[1]s SET pk = (
		    SELECT v.pk FROM %[2]s v
		    WHERE v.tenant_id = ?
		      AND v.%[3]s = %[1]s.fk
		      AND v.%[4]s <= %[1]s.id_hi
		      AND (v.superseded_at IS NULL OR v.superseded_at > %[1]s.id_hi))
		WHERE mapping_stage = ?`, km, t.table, t.parentFK, t.timestampCol)
	if _, err := tx.exec(ctx, q, tenantID, stage); err != nil {
		return storage.Internalf("resolve %s as-of: %v", t.table, err)
	}
	return nil
}

// readMappedPKs returns the pk column for a stage in input order.
// Unresolved rows come back as zero; notFound reports them to the caller
// as the appropriate entity-level error.
func (tx *storeTx) readMappedPKs(ctx context.Context, stage, count int, notFound error) ([]int64, error) {
	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`SELECT pk FROM %s WHERE mapping_stage = ? ORDER BY ordering`, km)
	rows, err := tx.query(ctx, q, stage)
	if err != nil {
		return nil, storage.Internalf("read mapped pks: %v", err)
	}
	defer func() { _ = rows.Close() }()

	pks := make([]int64, 0, count)
	for rows.Next() {
		var pk sql.NullInt64
		if err := rows.Scan(&pk); err != nil {
			return nil, storage.Internalf("scan mapped pk: %v", err)
		}
		if !pk.Valid {
			if notFound != nil {
				return nil, fmt.Errorf("key %d of %d did not resolve: %w", len(pks), count, notFound)
			}
			pks = append(pks, 0)
			continue
		}
		pks = append(pks, pk.Int64)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("read mapped pks: %v", err)
	}
	if len(pks) != count {
		return nil, storage.Internalf("mapping stage %d returned %d rows, expected %d", stage, len(pks), count)
	}
	return pks, nil
}
