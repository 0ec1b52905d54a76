package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// The single-item path serves one selector with direct parameterized
// queries and no scratch table: four round trips, minimal latency.

// readSingleObject loads one tag: object id, definition, tag record,
// attrs.
func (tx *storeTx) readSingleObject(ctx context.Context, tenantID int, sel types.TagSelector) (*types.Tag, error) {
	hi, lo := types.UUIDHiLo(sel.ObjectID)

	var objPK int64
	var objType string
	err := tx.queryRow(ctx, `
		SELECT pk, object_type FROM object_id
		WHERE tenant_id = ? AND id_hi = ? AND id_lo = ?`,
		tenantID, hi, lo).Scan(&objPK, &objType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("object %s: %w", sel.ObjectID, storage.ErrObjectNotFound)
	}
	if err != nil {
		return nil, storage.Internalf("read object id: %v", err)
	}
	if types.ObjectType(objType) != sel.ObjectType {
		return nil, fmt.Errorf("object %s is %s, requested %s: %w",
			sel.ObjectID, objType, sel.ObjectType, storage.ErrWrongObjectType)
	}

	def, err := tx.readSingleDefinition(ctx, tenantID, objPK, sel.Object)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", sel.ObjectID, err)
	}
	if def.metaFormat != types.FormatProto {
		return nil, fmt.Errorf("object %s: unknown meta format %d: %w",
			sel.ObjectID, def.metaFormat, storage.ErrInvalidObjectDefinition)
	}

	tagRow, err := tx.readSingleTag(ctx, tenantID, def.pk, sel.Tag)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", sel.ObjectID, err)
	}

	attrs, err := tx.readSingleTagAttrs(ctx, tenantID, tagRow.pk)
	if err != nil {
		return nil, err
	}

	return &types.Tag{
		Header: types.TagHeader{
			ObjectType:      sel.ObjectType,
			ObjectID:        sel.ObjectID,
			ObjectVersion:   def.version,
			ObjectTimestamp: timeFromMicros(def.timestamp),
			TagVersion:      tagRow.version,
			TagTimestamp:    timeFromMicros(tagRow.timestamp),
			IsLatestObject:  def.isLatest,
			IsLatestTag:     tagRow.isLatest,
		},
		Attrs:         attrs,
		Format:        def.metaFormat,
		FormatVersion: def.metaVersion,
		Payload:       def.payload,
	}, nil
}

type definitionRow struct {
	pk          int64
	version     int
	timestamp   int64
	isLatest    bool
	metaFormat  int
	metaVersion int
	payload     []byte
}

type tagRow struct {
	pk        int64
	version   int
	timestamp int64
	isLatest  bool
}

// versionPredicate renders a criterion as SQL against a versioned table
// alias. Exactly one row must satisfy it per group key.
func versionPredicate(c types.Criterion, t versionedTarget) (string, []any) {
	switch c.Kind() {
	case types.CriterionVersion:
		return fmt.Sprintf("%s = ?", t.versionCol), []any{c.Version}
	case types.CriterionAsOf:
		us := micros(c.AsOf)
		return fmt.Sprintf("%s <= ? AND (superseded_at IS NULL OR superseded_at > ?)", t.timestampCol),
			[]any{us, us}
	default:
		return "is_latest = ?", []any{true}
	}
}

func (tx *storeTx) readSingleDefinition(ctx context.Context, tenantID int, objPK int64, c types.Criterion) (definitionRow, error) {
	pred, predArgs := versionPredicate(c, definitionTarget)
	q := fmt.Sprintf(`
		SELECT pk, object_version, object_timestamp, is_latest,
		       meta_format, meta_version, definition
		FROM object_definition
		WHERE tenant_id = ? AND object_fk = ? AND %s`, pred)
	args := append([]any{tenantID, objPK}, predArgs...)

	rows, err := tx.query(ctx, q, args...)
	if err != nil {
		return definitionRow{}, storage.Internalf("read definition: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var def definitionRow
	count := 0
	for rows.Next() {
		if count > 0 {
			return definitionRow{}, storage.Internalf("definition lookup: %v", dialect.ErrTooManyRows)
		}
		if err := rows.Scan(&def.pk, &def.version, &def.timestamp, &def.isLatest,
			&def.metaFormat, &def.metaVersion, &def.payload); err != nil {
			return definitionRow{}, storage.Internalf("scan definition: %v", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return definitionRow{}, storage.Internalf("read definition: %v", err)
	}
	if count == 0 {
		return definitionRow{}, storage.ErrObjectNotFound
	}
	return def, nil
}

func (tx *storeTx) readSingleTag(ctx context.Context, tenantID int, defPK int64, c types.Criterion) (tagRow, error) {
	pred, predArgs := versionPredicate(c, tagTarget)
	q := fmt.Sprintf(`
		SELECT pk, tag_version, tag_timestamp, is_latest
		FROM tag
		WHERE tenant_id = ? AND definition_fk = ? AND %s`, pred)
	args := append([]any{tenantID, defPK}, predArgs...)

	rows, err := tx.query(ctx, q, args...)
	if err != nil {
		return tagRow{}, storage.Internalf("read tag: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var t tagRow
	count := 0
	for rows.Next() {
		if count > 0 {
			return tagRow{}, storage.Internalf("tag lookup: %v", dialect.ErrTooManyRows)
		}
		if err := rows.Scan(&t.pk, &t.version, &t.timestamp, &t.isLatest); err != nil {
			return tagRow{}, storage.Internalf("scan tag: %v", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return tagRow{}, storage.Internalf("read tag: %v", err)
	}
	if count == 0 {
		return tagRow{}, storage.ErrObjectNotFound
	}
	return t, nil
}

// readSingleTagAttrs loads the attribute map for one tag.
func (tx *storeTx) readSingleTagAttrs(ctx context.Context, tenantID int, tagPK int64) (map[string]types.AttrValue, error) {
	rows, err := tx.query(ctx, `
		SELECT attr_name, attr_type, attr_index,
		       attr_value_boolean, attr_value_integer, attr_value_float,
		       attr_value_string, attr_value_decimal, attr_value_date,
		       attr_value_datetime
		FROM tag_attr
		WHERE tenant_id = ? AND tag_fk = ?
		ORDER BY attr_name, attr_index`, tenantID, tagPK)
	if err != nil {
		return nil, storage.Internalf("read attrs: %v", err)
	}
	defer func() { _ = rows.Close() }()

	attrs := map[string]types.AttrValue{}
	for rows.Next() {
		var (
			name      string
			attrType  string
			attrIndex int
			boolVal   sql.NullBool
			intVal    sql.NullInt64
			floatVal  sql.NullFloat64
			strVal    sql.NullString
			decVal    sql.NullString
			dateVal   sql.NullString
			dtVal     sql.NullInt64
		)
		if err := rows.Scan(&name, &attrType, &attrIndex,
			&boolVal, &intVal, &floatVal, &strVal, &decVal, &dateVal, &dtVal); err != nil {
			return nil, storage.Internalf("scan attr: %v", err)
		}
		val, err := attrValueFromColumns(types.AttrType(attrType),
			boolVal, intVal, floatVal, strVal, decVal, dateVal, dtVal)
		if err != nil {
			return nil, storage.Internalf("attr %q: %v", name, err)
		}
		if attrIndex < 0 {
			attrs[name] = val
			continue
		}
		arr, ok := attrs[name]
		if !ok {
			arr = types.AttrValue{Type: val.Type, Items: []types.AttrValue{}}
		}
		arr.Items = append(arr.Items, val)
		attrs[name] = arr
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("read attrs: %v", err)
	}
	return attrs, nil
}
