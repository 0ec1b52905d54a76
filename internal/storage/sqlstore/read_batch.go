package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// Batch reads resolve list-valued requests through the key-mapping
// scratch. Every entry point takes arrays and returns arrays of the same
// length, positionally aligned with the input.

// readObjects is the composed batch load: object ids -> definitions ->
// tags -> attrs, with object-type verification along the way.
func (tx *storeTx) readObjects(ctx context.Context, tenantID int, sels []types.TagSelector) ([]*types.Tag, error) {
	ids := make([]uuid.UUID, len(sels))
	for i, sel := range sels {
		ids[i] = sel.ObjectID
	}

	objPKs, objTypes, err := tx.readObjectTypeByID(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for i, sel := range sels {
		if objTypes[i] != sel.ObjectType {
			return nil, fmt.Errorf("object %s is %s, requested %s: %w",
				sel.ObjectID, objTypes[i], sel.ObjectType, storage.ErrWrongObjectType)
		}
	}

	objCriteria := make([]types.Criterion, len(sels))
	tagCriteria := make([]types.Criterion, len(sels))
	for i, sel := range sels {
		objCriteria[i] = sel.Object
		tagCriteria[i] = sel.Tag
	}

	defPKs, err := tx.resolveVersioned(ctx, tenantID, objPKs, objCriteria, definitionTarget)
	if err != nil {
		return nil, err
	}
	tagPKs, err := tx.resolveVersioned(ctx, tenantID, defPKs, tagCriteria, tagTarget)
	if err != nil {
		return nil, err
	}

	return tx.readTagsByPK(ctx, tenantID, tagPKs)
}

// readObjectTypeByID resolves object UUIDs to primary keys and recorded
// object types. A UUID with no row is an entity-level miss.
func (tx *storeTx) readObjectTypeByID(ctx context.Context, tenantID int, ids []uuid.UUID) ([]int64, []types.ObjectType, error) {
	stage, err := tx.insertIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.resolveObjectIDs(ctx, tenantID, stage); err != nil {
		return nil, nil, err
	}

	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		SELECT km.ordering, oid.pk, oid.object_type
		FROM %s km
		JOIN object_id oid ON oid.pk = km.pk
		WHERE km.mapping_stage = ?
		ORDER BY km.ordering`, km)

	rows, err := tx.query(ctx, q, stage)
	if err != nil {
		return nil, nil, storage.Internalf("read object types: %v", err)
	}
	defer func() { _ = rows.Close() }()

	pks := make([]int64, len(ids))
	objTypes := make([]types.ObjectType, len(ids))
	seen := 0
	for rows.Next() {
		var ordering int
		var pk int64
		var objType string
		if err := rows.Scan(&ordering, &pk, &objType); err != nil {
			return nil, nil, storage.Internalf("scan object type row: %v", err)
		}
		if ordering < 0 || ordering >= len(ids) {
			return nil, nil, storage.Internalf("object type row out of range: ordering %d", ordering)
		}
		pks[ordering] = pk
		objTypes[ordering] = types.ObjectType(objType)
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storage.Internalf("read object types: %v", err)
	}
	if seen > len(ids) {
		return nil, nil, storage.Internalf("object id lookup: %v", dialect.ErrTooManyRows)
	}
	if seen < len(ids) {
		// A short join here means a client-supplied id has no row.
		for i, pk := range pks {
			if pk == 0 {
				return nil, nil, fmt.Errorf("object %s: %w", ids[i], storage.ErrObjectNotFound)
			}
		}
	}
	return pks, objTypes, nil
}

// resolveVersioned maps parent keys plus per-entry criteria to row pks in
// the target table. Criteria are partitioned by kind so each resolution
// pattern runs as one set-based update; results merge back positionally.
func (tx *storeTx) resolveVersioned(ctx context.Context, tenantID int, parentPKs []int64, criteria []types.Criterion, target versionedTarget) ([]int64, error) {
	var (
		verIdx, latestIdx, asOfIdx []int
		verFKs, latestFKs, asOfFKs []int64
		versions                   []int
		asOfs                      []int64
	)
	for i, c := range criteria {
		switch c.Kind() {
		case types.CriterionVersion:
			verIdx = append(verIdx, i)
			verFKs = append(verFKs, parentPKs[i])
			versions = append(versions, c.Version)
		case types.CriterionLatest:
			latestIdx = append(latestIdx, i)
			latestFKs = append(latestFKs, parentPKs[i])
		case types.CriterionAsOf:
			asOfIdx = append(asOfIdx, i)
			asOfFKs = append(asOfFKs, parentPKs[i])
			asOfs = append(asOfs, micros(c.AsOf))
		default:
			return nil, fmt.Errorf("entry %d: invalid criterion: %w", i, storage.ErrObjectNotFound)
		}
	}

	out := make([]int64, len(criteria))

	merge := func(idx []int, pks []int64) {
		for i, pos := range idx {
			out[pos] = pks[i]
		}
	}

	if len(verIdx) > 0 {
		stage, err := tx.insertFKVersions(ctx, verFKs, versions)
		if err != nil {
			return nil, err
		}
		if err := tx.resolveByVersion(ctx, tenantID, stage, target); err != nil {
			return nil, err
		}
		pks, err := tx.readMappedPKs(ctx, stage, len(verIdx), nil)
		if err != nil {
			return nil, err
		}
		merge(verIdx, pks)
	}
	if len(latestIdx) > 0 {
		stage, err := tx.insertFKs(ctx, latestFKs)
		if err != nil {
			return nil, err
		}
		if err := tx.resolveByLatest(ctx, tenantID, stage, target); err != nil {
			return nil, err
		}
		pks, err := tx.readMappedPKs(ctx, stage, len(latestIdx), nil)
		if err != nil {
			return nil, err
		}
		merge(latestIdx, pks)
	}
	if len(asOfIdx) > 0 {
		stage, err := tx.insertFKAsOf(ctx, asOfFKs, asOfs)
		if err != nil {
			return nil, err
		}
		if err := tx.resolveByAsOf(ctx, tenantID, stage, target); err != nil {
			return nil, err
		}
		pks, err := tx.readMappedPKs(ctx, stage, len(asOfIdx), nil)
		if err != nil {
			return nil, err
		}
		merge(asOfIdx, pks)
	}

	for i, pk := range out {
		if pk == 0 {
			return nil, fmt.Errorf("%s: entry %d did not resolve: %w",
				target.table, i, storage.ErrObjectNotFound)
		}
	}
	return out, nil
}

// readTagsByPK materializes full tags (header, payload, attrs) for a
// list of tag primary keys, preserving input order. The pks come from
// the store itself, so any mismatch here is an invariant violation.
func (tx *storeTx) readTagsByPK(ctx context.Context, tenantID int, tagPKs []int64) ([]*types.Tag, error) {
	stage, err := tx.insertPKs(ctx, tagPKs)
	if err != nil {
		return nil, err
	}

	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		SELECT km.ordering,
		       oid.id_hi, oid.id_lo, oid.object_type,
		       d.object_version, d.object_timestamp, d.is_latest,
		       d.meta_format, d.meta_version, d.definition,
		       t.tag_version, t.tag_timestamp, t.is_latest
		FROM %s km
		JOIN tag t ON t.pk = km.pk
		JOIN object_definition d ON d.pk = t.definition_fk
		JOIN object_id oid ON oid.pk = d.object_fk
		WHERE km.mapping_stage = ? AND t.tenant_id = ?
		ORDER BY km.ordering`, km)

	rows, err := tx.query(ctx, q, stage, tenantID)
	if err != nil {
		return nil, storage.Internalf("read tags: %v", err)
	}
	defer func() { _ = rows.Close() }()

	tags := make([]*types.Tag, len(tagPKs))
	seen := 0
	for rows.Next() {
		var (
			ordering                 int
			idHi, idLo               int64
			objType                  string
			objVersion               int
			objTimestamp             int64
			objLatest                bool
			metaFormat, metaVersion  int
			payload                  []byte
			tagVersion               int
			tagTimestamp             int64
			tagLatest                bool
		)
		if err := rows.Scan(&ordering, &idHi, &idLo, &objType,
			&objVersion, &objTimestamp, &objLatest,
			&metaFormat, &metaVersion, &payload,
			&tagVersion, &tagTimestamp, &tagLatest); err != nil {
			return nil, storage.Internalf("scan tag row: %v", err)
		}
		if ordering < 0 || ordering >= len(tags) || tags[ordering] != nil {
			return nil, storage.Internalf("read tags: %v", dialect.ErrTooManyRows)
		}
		if metaFormat != types.FormatProto {
			return nil, fmt.Errorf("tag pk %d: unknown meta format %d: %w",
				tagPKs[ordering], metaFormat, storage.ErrInvalidObjectDefinition)
		}
		tags[ordering] = &types.Tag{
			Header: types.TagHeader{
				ObjectType:      types.ObjectType(objType),
				ObjectID:        types.UUIDFromHiLo(idHi, idLo),
				ObjectVersion:   objVersion,
				ObjectTimestamp: timeFromMicros(objTimestamp),
				TagVersion:      tagVersion,
				TagTimestamp:    timeFromMicros(tagTimestamp),
				IsLatestObject:  objLatest,
				IsLatestTag:     tagLatest,
			},
			Format:        metaFormat,
			FormatVersion: metaVersion,
			Payload:       payload,
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("read tags: %v", err)
	}
	if seen != len(tagPKs) {
		return nil, storage.Internalf("read tags: got %d rows for %d pks: %v",
			seen, len(tagPKs), dialect.ErrNoData)
	}

	attrs, err := tx.readTagAttrs(ctx, tenantID, tagPKs)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		tags[i].Attrs = attrs[i]
	}
	return tags, nil
}

// readTagAttrs returns the attribute map for each tag pk, in input
// order. One query covers all tags; multi-valued attributes collapse
// into arrays in element order.
func (tx *storeTx) readTagAttrs(ctx context.Context, tenantID int, tagPKs []int64) ([]map[string]types.AttrValue, error) {
	stage, err := tx.insertPKs(ctx, tagPKs)
	if err != nil {
		return nil, err
	}

	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		SELECT km.ordering, a.attr_name, a.attr_type, a.attr_index,
		       a.attr_value_boolean, a.attr_value_integer, a.attr_value_float,
		       a.attr_value_string, a.attr_value_decimal, a.attr_value_date,
		       a.attr_value_datetime
		FROM %s km
		JOIN tag_attr a ON a.tag_fk = km.pk AND a.tenant_id = ?
		WHERE km.mapping_stage = ?
		ORDER BY km.ordering, a.attr_name, a.attr_index`, km)

	rows, err := tx.query(ctx, q, tenantID, stage)
	if err != nil {
		return nil, storage.Internalf("read tag attrs: %v", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]map[string]types.AttrValue, len(tagPKs))
	for i := range out {
		out[i] = map[string]types.AttrValue{}
	}

	for rows.Next() {
		var (
			ordering  int
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
		if err := rows.Scan(&ordering, &name, &attrType, &attrIndex,
			&boolVal, &intVal, &floatVal, &strVal, &decVal, &dateVal, &dtVal); err != nil {
			return nil, storage.Internalf("scan attr row: %v", err)
		}
		if ordering < 0 || ordering >= len(out) {
			return nil, storage.Internalf("attr row out of range: ordering %d", ordering)
		}

		val, err := attrValueFromColumns(types.AttrType(attrType),
			boolVal, intVal, floatVal, strVal, decVal, dateVal, dtVal)
		if err != nil {
			return nil, storage.Internalf("attr %q: %v", name, err)
		}

		if attrIndex < 0 {
			out[ordering][name] = val
			continue
		}
		// Array element: rows arrive in index order, append as we go.
		arr, ok := out[ordering][name]
		if !ok {
			arr = types.AttrValue{Type: val.Type, Items: []types.AttrValue{}}
		}
		arr.Items = append(arr.Items, val)
		out[ordering][name] = arr
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("read tag attrs: %v", err)
	}
	return out, nil
}

// attrValueFromColumns decodes one tag_attr row into a scalar value.
// Exactly one value column should be set for the declared type.
func attrValueFromColumns(attrType types.AttrType,
	boolVal sql.NullBool, intVal sql.NullInt64, floatVal sql.NullFloat64,
	strVal, decVal, dateVal sql.NullString, dtVal sql.NullInt64,
) (types.AttrValue, error) {
	switch attrType {
	case types.AttrBoolean:
		if !boolVal.Valid {
			return types.AttrValue{}, fmt.Errorf("boolean attr with null value")
		}
		return types.BoolAttr(boolVal.Bool), nil
	case types.AttrInteger:
		if !intVal.Valid {
			return types.AttrValue{}, fmt.Errorf("integer attr with null value")
		}
		return types.IntAttr(intVal.Int64), nil
	case types.AttrFloat:
		if !floatVal.Valid {
			return types.AttrValue{}, fmt.Errorf("float attr with null value")
		}
		return types.FloatAttr(floatVal.Float64), nil
	case types.AttrString:
		if !strVal.Valid {
			return types.AttrValue{}, fmt.Errorf("string attr with null value")
		}
		return types.StringAttr(strVal.String), nil
	case types.AttrDecimal:
		if !decVal.Valid {
			return types.AttrValue{}, fmt.Errorf("decimal attr with null value")
		}
		return types.DecimalAttr(decVal.String), nil
	case types.AttrDate:
		if !dateVal.Valid {
			return types.AttrValue{}, fmt.Errorf("date attr with null value")
		}
		return types.AttrValue{Type: types.AttrDate, Str: dateVal.String}, nil
	case types.AttrDatetime:
		if !dtVal.Valid {
			return types.AttrValue{}, fmt.Errorf("datetime attr with null value")
		}
		return types.DatetimeAttr(timeFromMicros(dtVal.Int64)), nil
	default:
		return types.AttrValue{}, fmt.Errorf("unknown attr type %q", attrType)
	}
}
