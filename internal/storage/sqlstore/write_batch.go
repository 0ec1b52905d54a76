package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// Write primitives. Each runs inside the transaction owned by the
// facade; timestamps are assigned once per primitive so every row
// written by one call shares the same instant.

// writeNewObjects persists brand-new objects: object id, definition v1,
// tag record, attrs.
func (tx *storeTx) writeNewObjects(ctx context.Context, tenantID int, tags []*types.Tag) error {
	now := time.Now()

	refs := make([]types.ObjectRef, len(tags))
	for i, t := range tags {
		refs[i] = t.Ref()
	}

	objPKs, err := tx.insertObjectIDs(ctx, tenantID, refs, storage.ErrDuplicateObjectID)
	if err != nil {
		return err
	}
	defPKs, err := tx.insertDefinitions(ctx, tenantID, objPKs, tags, now, nil)
	if err != nil {
		return err
	}
	tagPKs, err := tx.insertTags(ctx, tenantID, defPKs, tags, now, nil)
	if err != nil {
		return err
	}
	return tx.insertAttrs(ctx, tenantID, tagPKs, tags)
}

// writePreallocatedIDs reserves object ids without definitions.
func (tx *storeTx) writePreallocatedIDs(ctx context.Context, tenantID int, refs []types.ObjectRef) error {
	_, err := tx.insertObjectIDs(ctx, tenantID, refs, storage.ErrDuplicateObjectID)
	return err
}

// writePreallocatedObjects writes first versions for ids reserved
// earlier. The id must exist with the matching type and must not have a
// definition yet.
func (tx *storeTx) writePreallocatedObjects(ctx context.Context, tenantID int, tags []*types.Tag) error {
	now := time.Now()

	ids := make([]uuid.UUID, len(tags))
	for i, t := range tags {
		ids[i] = t.Header.ObjectID
	}

	objPKs, objTypes, err := tx.readObjectTypeByID(ctx, tenantID, ids)
	if storage.IsNotFound(err) {
		return fmt.Errorf("%v: %w", err, storage.ErrIDNotPreallocated)
	}
	if err != nil {
		return err
	}
	for i, t := range tags {
		if objTypes[i] != t.Header.ObjectType {
			return fmt.Errorf("object %s is %s, saving %s: %w",
				t.Header.ObjectID, objTypes[i], t.Header.ObjectType, storage.ErrWrongObjectType)
		}
	}

	// The unique (tenant, object_fk, version) constraint turns a re-save
	// of an already-used id into a duplicate insert.
	defPKs, err := tx.insertDefinitions(ctx, tenantID, objPKs, tags, now, storage.ErrIDAlreadyInUse)
	if err != nil {
		return err
	}
	tagPKs, err := tx.insertTags(ctx, tenantID, defPKs, tags, now, nil)
	if err != nil {
		return err
	}
	return tx.insertAttrs(ctx, tenantID, tagPKs, tags)
}

// writeNewVersions appends definition versions: verify type, close the
// prior latest definition, insert the new definition + tag + attrs.
func (tx *storeTx) writeNewVersions(ctx context.Context, tenantID int, tags []*types.Tag) error {
	now := time.Now()

	ids := make([]uuid.UUID, len(tags))
	for i, t := range tags {
		ids[i] = t.Header.ObjectID
	}
	objPKs, objTypes, err := tx.readObjectTypeByID(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	for i, t := range tags {
		if objTypes[i] != t.Header.ObjectType {
			return fmt.Errorf("object %s is %s, saving %s: %w",
				t.Header.ObjectID, objTypes[i], t.Header.ObjectType, storage.ErrWrongObjectType)
		}
		if t.Header.ObjectVersion < 2 {
			return fmt.Errorf("object %s: new version must be > 1: %w",
				t.Header.ObjectID, storage.ErrPriorVersionMissing)
		}
	}

	for i, t := range tags {
		err := tx.closeLatest(ctx, tenantID, definitionTarget, objPKs[i],
			t.Header.ObjectVersion, micros(now),
			storage.ErrPriorVersionMissing, storage.ErrVersionSuperseded)
		if err != nil {
			return fmt.Errorf("object %s: %w", t.Header.ObjectID, err)
		}
	}

	defPKs, err := tx.insertDefinitions(ctx, tenantID, objPKs, tags, now, storage.ErrVersionSuperseded)
	if err != nil {
		return err
	}
	tagPKs, err := tx.insertTags(ctx, tenantID, defPKs, tags, now, nil)
	if err != nil {
		return err
	}
	return tx.insertAttrs(ctx, tenantID, tagPKs, tags)
}

// writeNewTags appends tag versions to existing definitions: verify
// type, resolve the definition by explicit version, close the prior
// latest tag, insert the new tag + attrs.
func (tx *storeTx) writeNewTags(ctx context.Context, tenantID int, tags []*types.Tag) error {
	now := time.Now()

	ids := make([]uuid.UUID, len(tags))
	for i, t := range tags {
		ids[i] = t.Header.ObjectID
	}
	objPKs, objTypes, err := tx.readObjectTypeByID(ctx, tenantID, ids)
	if err != nil {
		return err
	}

	objVersions := make([]int, len(tags))
	for i, t := range tags {
		if objTypes[i] != t.Header.ObjectType {
			return fmt.Errorf("object %s is %s, saving %s: %w",
				t.Header.ObjectID, objTypes[i], t.Header.ObjectType, storage.ErrWrongObjectType)
		}
		if t.Header.TagVersion < 2 {
			return fmt.Errorf("object %s: new tag version must be > 1: %w",
				t.Header.ObjectID, storage.ErrPriorTagMissing)
		}
		objVersions[i] = t.Header.ObjectVersion
	}

	stage, err := tx.insertFKVersions(ctx, objPKs, objVersions)
	if err != nil {
		return err
	}
	if err := tx.resolveByVersion(ctx, tenantID, stage, definitionTarget); err != nil {
		return err
	}
	defPKs, err := tx.readMappedPKs(ctx, stage, len(tags), storage.ErrObjectNotFound)
	if err != nil {
		return err
	}

	for i, t := range tags {
		err := tx.closeLatest(ctx, tenantID, tagTarget, defPKs[i],
			t.Header.TagVersion, micros(now),
			storage.ErrPriorTagMissing, storage.ErrTagSuperseded)
		if err != nil {
			return fmt.Errorf("object %s: %w", t.Header.ObjectID, err)
		}
	}

	tagPKs, err := tx.insertTags(ctx, tenantID, defPKs, tags, now, storage.ErrTagSuperseded)
	if err != nil {
		return err
	}
	return tx.insertAttrs(ctx, tenantID, tagPKs, tags)
}

// classifyInsert maps a driver insert error: a duplicate becomes dupErr
// when the call site supplied one, everything else is internal.
func (tx *storeTx) classifyInsert(err error, op string, dupErr error) error {
	switch tx.d.MapError(err) {
	case dialect.CodeInsertDuplicate:
		if dupErr != nil {
			return fmt.Errorf("%s: %w", op, dupErr)
		}
		return storage.Internalf("%s: unexpected duplicate: %v", op, err)
	case dialect.CodeInsertMissingFK:
		return storage.Internalf("%s: missing foreign key: %v", op, err)
	default:
		return storage.Internalf("%s: %v", op, err)
	}
}

// insertObjectIDs writes object_id rows and returns their pks in input
// order. Dialects without generated-key support re-look the keys up
// through the mapping table.
func (tx *storeTx) insertObjectIDs(ctx context.Context, tenantID int, refs []types.ObjectRef, dupErr error) ([]int64, error) {
	const q = `INSERT INTO object_id (tenant_id, object_type, id_hi, id_lo) VALUES (?, ?, ?, ?)`

	if tx.d.SupportsGeneratedKeys() {
		pks := make([]int64, len(refs))
		for i, r := range refs {
			hi, lo := types.UUIDHiLo(r.ObjectID)
			res, err := tx.exec(ctx, q, tenantID, string(r.ObjectType), hi, lo)
			if err != nil {
				return nil, tx.classifyInsert(err, fmt.Sprintf("insert object id %s", r.ObjectID), dupErr)
			}
			pk, err := res.LastInsertId()
			if err != nil {
				return nil, storage.Internalf("object id generated key: %v", err)
			}
			pks[i] = pk
		}
		return pks, nil
	}

	for _, r := range refs {
		hi, lo := types.UUIDHiLo(r.ObjectID)
		if _, err := tx.exec(ctx, q, tenantID, string(r.ObjectType), hi, lo); err != nil {
			return nil, tx.classifyInsert(err, fmt.Sprintf("insert object id %s", r.ObjectID), dupErr)
		}
	}

	ids := make([]uuid.UUID, len(refs))
	for i, r := range refs {
		ids[i] = r.ObjectID
	}
	stage, err := tx.insertIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := tx.resolveObjectIDs(ctx, tenantID, stage); err != nil {
		return nil, err
	}
	return tx.readMappedPKs(ctx, stage, len(refs), storage.ErrInternal)
}

// insertDefinitions writes object_definition rows (is_latest, open
// interval) and returns their pks in input order.
func (tx *storeTx) insertDefinitions(ctx context.Context, tenantID int, objPKs []int64, tags []*types.Tag, now time.Time, dupErr error) ([]int64, error) {
	const q = `
		INSERT INTO object_definition
		    (tenant_id, object_fk, object_version, object_timestamp,
		     superseded_at, is_latest, meta_format, meta_version, definition)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?)`

	ts := micros(now)

	format := func(t *types.Tag) (int, int) {
		f, v := t.Format, t.FormatVersion
		if f == 0 {
			f = types.FormatProto
		}
		if v == 0 {
			v = types.FormatCurrent
		}
		return f, v
	}

	if tx.d.SupportsGeneratedKeys() {
		pks := make([]int64, len(tags))
		for i, t := range tags {
			f, fv := format(t)
			res, err := tx.exec(ctx, q, tenantID, objPKs[i], t.Header.ObjectVersion,
				ts, true, f, fv, t.Payload)
			if err != nil {
				return nil, tx.classifyInsert(err,
					fmt.Sprintf("insert definition %s v%d", t.Header.ObjectID, t.Header.ObjectVersion), dupErr)
			}
			pk, err := res.LastInsertId()
			if err != nil {
				return nil, storage.Internalf("definition generated key: %v", err)
			}
			pks[i] = pk
		}
		return pks, nil
	}

	versions := make([]int, len(tags))
	for i, t := range tags {
		f, fv := format(t)
		versions[i] = t.Header.ObjectVersion
		if _, err := tx.exec(ctx, q, tenantID, objPKs[i], t.Header.ObjectVersion,
			ts, true, f, fv, t.Payload); err != nil {
			return nil, tx.classifyInsert(err,
				fmt.Sprintf("insert definition %s v%d", t.Header.ObjectID, t.Header.ObjectVersion), dupErr)
		}
	}

	stage, err := tx.insertFKVersions(ctx, objPKs, versions)
	if err != nil {
		return nil, err
	}
	if err := tx.resolveByVersion(ctx, tenantID, stage, definitionTarget); err != nil {
		return nil, err
	}
	return tx.readMappedPKs(ctx, stage, len(tags), storage.ErrInternal)
}

// insertTags writes tag rows and returns their pks in input order.
func (tx *storeTx) insertTags(ctx context.Context, tenantID int, defPKs []int64, tags []*types.Tag, now time.Time, dupErr error) ([]int64, error) {
	const q = `
		INSERT INTO tag
		    (tenant_id, definition_fk, tag_version, tag_timestamp,
		     superseded_at, is_latest, object_type)
		VALUES (?, ?, ?, ?, NULL, ?, ?)`

	ts := micros(now)

	if tx.d.SupportsGeneratedKeys() {
		pks := make([]int64, len(tags))
		for i, t := range tags {
			res, err := tx.exec(ctx, q, tenantID, defPKs[i], t.Header.TagVersion,
				ts, true, string(t.Header.ObjectType))
			if err != nil {
				return nil, tx.classifyInsert(err,
					fmt.Sprintf("insert tag %s t%d", t.Header.ObjectID, t.Header.TagVersion), dupErr)
			}
			pk, err := res.LastInsertId()
			if err != nil {
				return nil, storage.Internalf("tag generated key: %v", err)
			}
			pks[i] = pk
		}
		return pks, nil
	}

	versions := make([]int, len(tags))
	for i, t := range tags {
		versions[i] = t.Header.TagVersion
		if _, err := tx.exec(ctx, q, tenantID, defPKs[i], t.Header.TagVersion,
			ts, true, string(t.Header.ObjectType)); err != nil {
			return nil, tx.classifyInsert(err,
				fmt.Sprintf("insert tag %s t%d", t.Header.ObjectID, t.Header.TagVersion), dupErr)
		}
	}

	stage, err := tx.insertFKVersions(ctx, defPKs, versions)
	if err != nil {
		return nil, err
	}
	if err := tx.resolveByVersion(ctx, tenantID, stage, tagTarget); err != nil {
		return nil, err
	}
	return tx.readMappedPKs(ctx, stage, len(tags), storage.ErrInternal)
}

// insertAttrs writes all attribute rows for a batch of tags. Scalars use
// attr_index -1; arrays write one row per element with attr_index 0..n-1.
func (tx *storeTx) insertAttrs(ctx context.Context, tenantID int, tagPKs []int64, tags []*types.Tag) error {
	const q = `
		INSERT INTO tag_attr
		    (tenant_id, tag_fk, attr_name, attr_type, attr_index,
		     attr_value_boolean, attr_value_integer, attr_value_float,
		     attr_value_string, attr_value_decimal, attr_value_date,
		     attr_value_datetime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i, t := range tags {
		for name, val := range t.Attrs {
			if !val.IsArray() {
				args, err := attrColumnValues(val)
				if err != nil {
					return storage.Internalf("attr %q: %v", name, err)
				}
				row := append([]any{tenantID, tagPKs[i], name, string(val.Type), -1}, args...)
				if _, err := tx.exec(ctx, q, row...); err != nil {
					return tx.classifyInsert(err, fmt.Sprintf("insert attr %q", name), nil)
				}
				continue
			}
			for j, item := range val.Items {
				if item.IsArray() || item.Type != val.Type {
					return storage.Internalf("attr %q: non-uniform array element %d", name, j)
				}
				args, err := attrColumnValues(item)
				if err != nil {
					return storage.Internalf("attr %q[%d]: %v", name, j, err)
				}
				row := append([]any{tenantID, tagPKs[i], name, string(val.Type), j}, args...)
				if _, err := tx.exec(ctx, q, row...); err != nil {
					return tx.classifyInsert(err, fmt.Sprintf("insert attr %q[%d]", name, j), nil)
				}
			}
		}
	}
	return nil
}

// attrColumnValues renders a scalar attr value as the seven typed value
// columns, exactly one non-null.
func attrColumnValues(v types.AttrValue) ([]any, error) {
	cols := []any{
		sql.NullBool{}, sql.NullInt64{}, sql.NullFloat64{},
		sql.NullString{}, sql.NullString{}, sql.NullString{}, sql.NullInt64{},
	}
	switch v.Type {
	case types.AttrBoolean:
		cols[0] = sql.NullBool{Bool: v.Bool, Valid: true}
	case types.AttrInteger:
		cols[1] = sql.NullInt64{Int64: v.Int, Valid: true}
	case types.AttrFloat:
		cols[2] = sql.NullFloat64{Float64: v.Float, Valid: true}
	case types.AttrString:
		cols[3] = sql.NullString{String: v.Str, Valid: true}
	case types.AttrDecimal:
		cols[4] = sql.NullString{String: v.Str, Valid: true}
	case types.AttrDate:
		cols[5] = sql.NullString{String: v.Str, Valid: true}
	case types.AttrDatetime:
		cols[6] = sql.NullInt64{Int64: micros(v.Datetime), Valid: true}
	default:
		return nil, fmt.Errorf("unknown attr type %q", v.Type)
	}
	return cols, nil
}

// closeLatest closes the prior latest row for one group: flips is_latest
// and stamps superseded_at with the new version's timestamp. The update
// must hit exactly one row; a miss is diagnosed as either a missing
// prior version or a lost supersession race.
func (tx *storeTx) closeLatest(ctx context.Context, tenantID int, target versionedTarget, parentPK int64, newVersion int, nowMicros int64, missingErr, supersededErr error) error {
	q := fmt.Sprintf(`
		UPDATE %s SET is_latest = ?, superseded_at = ?
		WHERE tenant_id = ? AND %s = ? AND is_latest = ? AND %s = ?`,
		target.table, target.parentFK, target.versionCol)

	res, err := tx.exec(ctx, q, false, nowMicros, tenantID, parentPK, true, newVersion-1)
	if err != nil {
		return storage.Internalf("close latest %s: %v", target.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Internalf("close latest %s: rows affected: %v", target.table, err)
	}
	if n == 1 {
		return nil
	}
	if n > 1 {
		return storage.Internalf("close latest %s hit %d rows", target.table, n)
	}

	// Zero rows: either version n-1 never existed, or another writer got
	// there first. The current max version tells them apart.
	var maxVersion int
	probe := fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) FROM %s WHERE tenant_id = ? AND %s = ?`,
		target.versionCol, target.table, target.parentFK)
	if err := tx.queryRow(ctx, probe, tenantID, parentPK).Scan(&maxVersion); err != nil {
		return storage.Internalf("close latest %s: probe: %v", target.table, err)
	}
	if maxVersion <= newVersion-2 {
		return missingErr
	}
	return supersededErr
}
