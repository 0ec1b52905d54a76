package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// Config entries follow the same append-plus-close discipline as object
// versions, with soft delete as a new version carrying is_deleted.

// --- Facade operations ---

// LoadConfigEntry reads one config entry by key. Every criterion the key
// carries must agree on the same row.
func (s *Store) LoadConfigEntry(ctx context.Context, tenant string, key types.ConfigKey, includeDeleted bool) (*types.ConfigEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, storage.ErrConfigNotFound)
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	var entry *types.ConfigEntry
	err = s.withTx(ctx, false, func(tx *storeTx) error {
		var err error
		entry, err = tx.readConfigEntry(ctx, tenantID, key, includeDeleted)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// LoadConfigEntries reads a batch of config keys, positionally aligned.
func (s *Store) LoadConfigEntries(ctx context.Context, tenant string, keys []types.ConfigKey, includeDeleted bool) ([]*types.ConfigEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	for _, k := range keys {
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, storage.ErrConfigNotFound)
		}
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	entries := make([]*types.ConfigEntry, len(keys))
	err = s.withTx(ctx, false, func(tx *storeTx) error {
		for i, key := range keys {
			e, err := tx.readConfigEntry(ctx, tenantID, key, includeDeleted)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", key.ConfigClass, key.ConfigKey, err)
			}
			entries[i] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListConfigEntries returns the latest version of every key in a class,
// alphabetical by key. Soft-deleted keys are omitted unless
// includeDeleted is set. A class with no entries at all reports
// ErrConfigClassNotFound; a class whose keys are all deleted lists as
// empty when deletions are excluded.
func (s *Store) ListConfigEntries(ctx context.Context, tenant string, configClass string, includeDeleted bool) ([]*types.ConfigEntry, error) {
	if configClass == "" {
		return nil, fmt.Errorf("missing config class: %w", storage.ErrConfigClassNotFound)
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	var entries []*types.ConfigEntry
	err = s.withTx(ctx, true, func(tx *storeTx) error {
		pks, err := tx.searchConfigKeys(ctx, tenantID, configClass, includeDeleted)
		if err != nil {
			return err
		}
		if len(pks) == 0 {
			known, err := tx.configClassExists(ctx, tenantID, configClass)
			if err != nil {
				return err
			}
			if !known {
				return fmt.Errorf("class %q: %w", configClass, storage.ErrConfigClassNotFound)
			}
			entries = []*types.ConfigEntry{}
			return nil
		}
		entries, err = tx.readConfigEntriesByPK(ctx, tenantID, pks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// --- Transaction primitives ---

// writeConfigEntries persists a batch of config versions: resolve prior
// pks in one lookup, close each prior latest row, insert the new rows.
func (tx *storeTx) writeConfigEntries(ctx context.Context, tenantID int, entries []*types.ConfigEntry) error {
	now := time.Now()
	ts := micros(now)

	// Resolve prior-version pks for every entry beyond version 1,
	// including soft-deleted priors (resurrection is a normal append).
	type priorKey struct {
		class, key string
		version    int
	}
	var priors []priorKey
	for _, e := range entries {
		if e.ConfigVersion > 1 {
			priors = append(priors, priorKey{e.ConfigClass, e.ConfigKey, e.ConfigVersion - 1})
		}
	}

	priorPKs := map[priorKey]int64{}
	if len(priors) > 0 {
		var b strings.Builder
		b.WriteString(`SELECT config_class, config_key, config_version, pk FROM config_entry WHERE tenant_id = ? AND (`)
		args := []any{tenantID}
		for i, p := range priors {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(config_class = ? AND config_key = ? AND config_version = ?)")
			args = append(args, p.class, p.key, p.version)
		}
		b.WriteString(")")

		rows, err := tx.query(ctx, b.String(), args...)
		if err != nil {
			return storage.Internalf("resolve prior config versions: %v", err)
		}
		for rows.Next() {
			var p priorKey
			var pk int64
			if err := rows.Scan(&p.class, &p.key, &p.version, &pk); err != nil {
				_ = rows.Close()
				return storage.Internalf("scan prior config version: %v", err)
			}
			priorPKs[p] = pk
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return storage.Internalf("resolve prior config versions: %v", err)
		}
		_ = rows.Close()
	}

	// Close prior latest rows. Each close must hit exactly one row.
	for _, e := range entries {
		if e.ConfigVersion <= 1 {
			continue
		}
		p := priorKey{e.ConfigClass, e.ConfigKey, e.ConfigVersion - 1}
		pk, ok := priorPKs[p]
		if !ok {
			return fmt.Errorf("%s/%s v%d: %w",
				e.ConfigClass, e.ConfigKey, e.ConfigVersion, storage.ErrPriorConfigMissing)
		}
		res, err := tx.exec(ctx, `
			UPDATE config_entry SET is_latest = ?, superseded_at = ?
			WHERE tenant_id = ? AND pk = ? AND is_latest = ?`,
			false, ts, tenantID, pk, true)
		if err != nil {
			return storage.Internalf("close prior config version: %v", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storage.Internalf("close prior config version: rows affected: %v", err)
		}
		if n != 1 {
			return fmt.Errorf("%s/%s v%d: close prior hit %d rows: %w",
				e.ConfigClass, e.ConfigKey, e.ConfigVersion, n, storage.ErrPriorConfigMissing)
		}
	}

	const q = `
		INSERT INTO config_entry
		    (tenant_id, config_class, config_key, config_version,
		     config_timestamp, superseded_at, is_latest, is_deleted,
		     meta_format, meta_version, details)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`

	for _, e := range entries {
		format, formatVersion := e.Format, e.FormatVersion
		if format == 0 {
			format = types.FormatProto
		}
		if formatVersion == 0 {
			formatVersion = types.FormatCurrent
		}
		_, err := tx.exec(ctx, q, tenantID, e.ConfigClass, e.ConfigKey, e.ConfigVersion,
			ts, true, e.Deleted, format, formatVersion, e.Payload)
		if err != nil {
			if tx.d.MapError(err) == dialect.CodeInsertDuplicate {
				return fmt.Errorf("%s/%s v%d: %w",
					e.ConfigClass, e.ConfigKey, e.ConfigVersion, storage.ErrDuplicateConfig)
			}
			return storage.Internalf("insert config entry %s/%s: %v", e.ConfigClass, e.ConfigKey, err)
		}
	}
	return nil
}

const configColumns = `config_class, config_key, config_version, config_timestamp,
		       is_latest, is_deleted, meta_format, meta_version, details`

// readConfigEntry serves one key with a single query composing every
// supplied criterion. Criteria that disagree select nothing.
func (tx *storeTx) readConfigEntry(ctx context.Context, tenantID int, key types.ConfigKey, includeDeleted bool) (*types.ConfigEntry, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM config_entry WHERE tenant_id = ? AND config_class = ? AND config_key = ?`, configColumns)
	args := []any{tenantID, key.ConfigClass, key.ConfigKey}

	if key.Version > 0 {
		b.WriteString(" AND config_version = ?")
		args = append(args, key.Version)
	}
	if !key.AsOf.IsZero() {
		us := micros(key.AsOf)
		b.WriteString(" AND config_timestamp <= ? AND (superseded_at IS NULL OR superseded_at > ?)")
		args = append(args, us, us)
	}
	if key.Latest {
		b.WriteString(" AND is_latest = ?")
		args = append(args, true)
	}
	if !includeDeleted {
		b.WriteString(" AND is_deleted = ?")
		args = append(args, false)
	}

	rows, err := tx.query(ctx, b.String(), args...)
	if err != nil {
		return nil, storage.Internalf("read config entry: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var entry *types.ConfigEntry
	for rows.Next() {
		if entry != nil {
			return nil, storage.Internalf("config lookup: %v", dialect.ErrTooManyRows)
		}
		entry, err = scanConfigEntry(rows)
		if err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("read config entry: %v", err)
	}
	if entry == nil {
		return nil, storage.ErrConfigNotFound
	}
	return entry, nil
}

// searchConfigKeys returns latest-version pks for a class, ordered by
// config key.
func (tx *storeTx) searchConfigKeys(ctx context.Context, tenantID int, configClass string, includeDeleted bool) ([]int64, error) {
	var b strings.Builder
	b.WriteString(`SELECT pk FROM config_entry WHERE tenant_id = ? AND config_class = ? AND is_latest = ?`)
	args := []any{tenantID, configClass, true}
	if !includeDeleted {
		b.WriteString(" AND is_deleted = ?")
		args = append(args, false)
	}
	b.WriteString(" ORDER BY config_key")

	rows, err := tx.query(ctx, b.String(), args...)
	if err != nil {
		return nil, storage.Internalf("search config keys: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var pks []int64
	for rows.Next() {
		var pk int64
		if err := rows.Scan(&pk); err != nil {
			return nil, storage.Internalf("scan config key pk: %v", err)
		}
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("search config keys: %v", err)
	}
	return pks, nil
}

func (tx *storeTx) configClassExists(ctx context.Context, tenantID int, configClass string) (bool, error) {
	var n int
	err := tx.queryRow(ctx, `
		SELECT COUNT(*) FROM config_entry
		WHERE tenant_id = ? AND config_class = ?`, tenantID, configClass).Scan(&n)
	if err != nil {
		return false, storage.Internalf("probe config class: %v", err)
	}
	return n > 0, nil
}

// readConfigEntriesByPK fetches full entries for resolved pks through
// the mapping table, preserving input order.
func (tx *storeTx) readConfigEntriesByPK(ctx context.Context, tenantID int, pks []int64) ([]*types.ConfigEntry, error) {
	stage, err := tx.insertPKs(ctx, pks)
	if err != nil {
		return nil, err
	}

	km := tx.d.MappingTableName()
	q := fmt.Sprintf(`
		SELECT %s
		FROM %s km
		JOIN config_entry c ON c.pk = km.pk
		WHERE km.mapping_stage = ? AND c.tenant_id = ?
		ORDER BY km.ordering`, configColumns, km)

	rows, err := tx.query(ctx, q, stage, tenantID)
	if err != nil {
		return nil, storage.Internalf("read config entries: %v", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*types.ConfigEntry, 0, len(pks))
	for rows.Next() {
		e, err := scanConfigEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("read config entries: %v", err)
	}
	if len(entries) != len(pks) {
		return nil, storage.Internalf("read config entries: got %d rows for %d pks: %v",
			len(entries), len(pks), dialect.ErrNoData)
	}
	return entries, nil
}

func scanConfigEntry(rows *sql.Rows) (*types.ConfigEntry, error) {
	var (
		e       types.ConfigEntry
		ts      int64
		payload []byte
	)
	if err := rows.Scan(&e.ConfigClass, &e.ConfigKey, &e.ConfigVersion, &ts,
		&e.IsLatest, &e.Deleted, &e.Format, &e.FormatVersion, &payload); err != nil {
		return nil, storage.Internalf("scan config entry: %v", err)
	}
	e.Timestamp = timeFromMicros(ts)
	e.Payload = payload
	if e.Format != types.FormatProto {
		return nil, fmt.Errorf("config %s/%s: unknown meta format %d: %w",
			e.ConfigClass, e.ConfigKey, e.Format, storage.ErrInvalidConfigEntry)
	}
	return &e, nil
}
