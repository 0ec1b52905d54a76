// Package sqlstore implements the metastore storage interface over
// database/sql, with per-dialect adapters supplied by the dialect
// package. One Store serves one database; every public operation runs
// as a single transaction on a dedicated connection.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// DefaultSearchLimit caps search result sets when Options.SearchLimit
// is unset.
const DefaultSearchLimit = 100

// Options configures how a Store is opened.
type Options struct {
	// Dialect selects the database flavor (required).
	Dialect dialect.Code

	// DSN is the driver connection string. For sqlite this is a file
	// path or ":memory:"; pragmas are appended automatically.
	DSN string

	// SearchLimit caps search results. Zero means DefaultSearchLimit.
	SearchLimit int

	// Pool sizing. Zero values pick sensible defaults per dialect.
	MaxOpenConns int
	MaxIdleConns int
}

// Store implements storage.Store over database/sql.
type Store struct {
	db          *sql.DB
	d           dialect.Dialect
	searchLimit int
	tenants     *tenantRegistry
	started     atomic.Bool
	closed      atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database and verifies the connection. It does not
// load tenants or touch the schema; call InitSchema (once, at deploy
// time) and Start (every boot) for that.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := dialect.For(opts.Dialect)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if d.Code() == dialect.SQLite {
		dsn = sqliteConnString(dsn)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.Code(), err)
	}

	configurePool(db, d, dsn, opts)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", d.Code(), err)
	}

	limit := opts.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	s := &Store{db: db, d: d, searchLimit: limit}
	s.tenants = newTenantRegistry(s)
	return s, nil
}

func configurePool(db *sql.DB, d dialect.Dialect, dsn string, opts Options) {
	maxOpen := opts.MaxOpenConns
	maxIdle := opts.MaxIdleConns
	if maxOpen <= 0 {
		// SQLite supports one writer; keep the pool small there.
		if d.Code() == dialect.SQLite {
			maxOpen = runtime.NumCPU() + 1
		} else {
			maxOpen = 4 * runtime.NumCPU()
		}
	}
	if maxIdle <= 0 {
		maxIdle = 2
	}
	if d.Code() == dialect.SQLite && isInMemorySQLite(dsn) {
		// In-memory databases are per-connection unless shared; a single
		// connection keeps every transaction on the same database.
		maxOpen, maxIdle = 1, 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
}

// Start loads the tenant registry synchronously. The store is unusable
// until Start succeeds; a failure reports ErrStartup.
func (s *Store) Start(ctx context.Context) error {
	if err := s.tenants.refresh(ctx); err != nil {
		return fmt.Errorf("loading tenants: %v: %w", err, storage.ErrStartup)
	}
	s.started.Store(true)
	return nil
}

// Stop marks the store stopped. Close releases the pool.
func (s *Store) Stop() error {
	s.started.Store(false)
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Dialect exposes the active dialect code (CLI and tests).
func (s *Store) Dialect() dialect.Code { return s.d.Code() }

// withTx runs fn inside one transaction on a dedicated connection.
// When useMapping is set the key-mapping scratch table is prepared
// before fn runs. Any error (or panic) rolls the transaction back.
func (s *Store) withTx(ctx context.Context, useMapping bool, fn func(tx *storeTx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return storage.Internalf("acquire connection: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := s.begin(ctx, conn); err != nil {
		return storage.Internalf("begin transaction: %v", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback still runs after cancellation.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	tx := &storeTx{conn: conn, d: s.d, searchLimit: s.searchLimit}

	if useMapping {
		if err := s.d.PrepareMappingTable(ctx, conn); err != nil {
			return storage.Internalf("prepare mapping table: %v", err)
		}
	}

	if err := fn(tx); err != nil {
		return s.mapStoreError(err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return s.mapStoreError(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// mapStoreError is the error boundary of the facade. Domain and internal
// errors pass through unchanged; anything else is classified by the
// dialect adapter and either reclassified or wrapped as internal.
func (s *Store) mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if storage.IsDomainError(err) || errors.Is(err, storage.ErrInternal) {
		return err
	}
	switch s.d.MapError(err) {
	case dialect.CodeWrongObjectType:
		return fmt.Errorf("%v: %w", err, storage.ErrWrongObjectType)
	case dialect.CodeInvalidObjectDefinition:
		return fmt.Errorf("%v: %w", err, storage.ErrInvalidObjectDefinition)
	case dialect.CodeInvalidConfigEntry:
		return fmt.Errorf("%v: %w", err, storage.ErrInvalidConfigEntry)
	case dialect.CodeNoData, dialect.CodeTooManyRows:
		// Row-count assertions that reach the boundary unclassified are
		// invariant violations.
		return storage.Internalf("dialect %s: %v", s.d.Code(), err)
	default:
		return storage.Internalf("dialect %s: %v", s.d.Code(), err)
	}
}

// resolveTenant maps a tenant code to its internal id.
func (s *Store) resolveTenant(code string) (int, error) {
	return s.tenants.id(code)
}

// --- Facade: write operations ---

// SaveBatchUpdate applies every non-empty sublist of the batch in one
// transaction, in fixed order: preallocated ids, preallocated objects,
// new objects, new versions, new tags, config entries.
func (s *Store) SaveBatchUpdate(ctx context.Context, tenant string, batch *types.BatchUpdate) error {
	if batch.IsEmpty() {
		return nil
	}
	if err := validateBatch(batch); err != nil {
		return err
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, true, func(tx *storeTx) error {
		if len(batch.PreallocIDs) > 0 {
			if err := tx.writePreallocatedIDs(ctx, tenantID, batch.PreallocIDs); err != nil {
				return err
			}
		}
		if len(batch.PreallocObjects) > 0 {
			if err := tx.writePreallocatedObjects(ctx, tenantID, batch.PreallocObjects); err != nil {
				return err
			}
		}
		if len(batch.NewObjects) > 0 {
			if err := tx.writeNewObjects(ctx, tenantID, batch.NewObjects); err != nil {
				return err
			}
		}
		if len(batch.NewVersions) > 0 {
			if err := tx.writeNewVersions(ctx, tenantID, batch.NewVersions); err != nil {
				return err
			}
		}
		if len(batch.NewTags) > 0 {
			if err := tx.writeNewTags(ctx, tenantID, batch.NewTags); err != nil {
				return err
			}
		}
		if len(batch.ConfigEntries) > 0 {
			if err := tx.writeConfigEntries(ctx, tenantID, batch.ConfigEntries); err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePreallocatedIDs reserves object ids without writing definitions.
func (s *Store) SavePreallocatedIDs(ctx context.Context, tenant string, refs []types.ObjectRef) error {
	if len(refs) == 0 {
		return nil
	}
	for _, r := range refs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, true, func(tx *storeTx) error {
		return tx.writePreallocatedIDs(ctx, tenantID, refs)
	})
}

// SavePreallocatedObjects writes first versions for previously reserved ids.
func (s *Store) SavePreallocatedObjects(ctx context.Context, tenant string, tags []*types.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	if err := validateTags(tags); err != nil {
		return err
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, true, func(tx *storeTx) error {
		return tx.writePreallocatedObjects(ctx, tenantID, tags)
	})
}

// SaveNewObjects writes brand-new objects: id, definition v1, tag v1, attrs.
func (s *Store) SaveNewObjects(ctx context.Context, tenant string, tags []*types.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	if err := validateTags(tags); err != nil {
		return err
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, true, func(tx *storeTx) error {
		return tx.writeNewObjects(ctx, tenantID, tags)
	})
}

// SaveNewVersions appends new object versions, closing each prior latest
// definition atomically.
func (s *Store) SaveNewVersions(ctx context.Context, tenant string, tags []*types.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	if err := validateTags(tags); err != nil {
		return err
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, true, func(tx *storeTx) error {
		return tx.writeNewVersions(ctx, tenantID, tags)
	})
}

// SaveNewTags appends new tag versions to existing definitions.
func (s *Store) SaveNewTags(ctx context.Context, tenant string, tags []*types.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	if err := validateTags(tags); err != nil {
		return err
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, true, func(tx *storeTx) error {
		return tx.writeNewTags(ctx, tenantID, tags)
	})
}

// SaveConfigEntries writes config entry versions, closing prior latest
// rows for every entry with version > 1.
func (s *Store) SaveConfigEntries(ctx context.Context, tenant string, entries []*types.ConfigEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, false, func(tx *storeTx) error {
		return tx.writeConfigEntries(ctx, tenantID, entries)
	})
}

// --- Facade: read operations ---

// LoadObject reads one tag through the low-latency single-item path.
func (s *Store) LoadObject(ctx context.Context, tenant string, sel types.TagSelector) (*types.Tag, error) {
	if err := sel.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, storage.ErrObjectNotFound)
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	var tag *types.Tag
	err = s.withTx(ctx, false, func(tx *storeTx) error {
		var err error
		tag, err = tx.readSingleObject(ctx, tenantID, sel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// LoadObjects resolves a batch of selectors through the mapping table,
// returning tags positionally aligned with the input.
func (s *Store) LoadObjects(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error) {
	if len(sels) == 0 {
		return nil, nil
	}
	for _, sel := range sels {
		if err := sel.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, storage.ErrObjectNotFound)
		}
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	var tags []*types.Tag
	err = s.withTx(ctx, true, func(tx *storeTx) error {
		var err error
		tags, err = tx.readObjects(ctx, tenantID, sels)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// LoadPriorObjects loads, for each selector naming object version n, the
// object at version n-1 with its latest tag. Used to validate and diff
// version appends before they are written.
func (s *Store) LoadPriorObjects(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error) {
	prior := make([]types.TagSelector, len(sels))
	for i, sel := range sels {
		if sel.Object.Kind() != types.CriterionVersion || sel.Object.Version < 2 {
			return nil, fmt.Errorf("load prior objects: selector %s must name an explicit object version > 1", sel.ObjectID)
		}
		prior[i] = sel
		prior[i].Object = types.ByVersion(sel.Object.Version - 1)
		prior[i].Tag = types.ByLatest()
	}
	return s.LoadObjects(ctx, tenant, prior)
}

// LoadPriorTags loads, for each selector naming tag version t, the tag at
// version t-1 of the selected definition.
func (s *Store) LoadPriorTags(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error) {
	prior := make([]types.TagSelector, len(sels))
	for i, sel := range sels {
		if sel.Tag.Kind() != types.CriterionVersion || sel.Tag.Version < 2 {
			return nil, fmt.Errorf("load prior tags: selector %s must name an explicit tag version > 1", sel.ObjectID)
		}
		prior[i] = sel
		prior[i].Tag = types.ByVersion(sel.Tag.Version - 1)
	}
	return s.LoadObjects(ctx, tenant, prior)
}

// Search executes a pre-built search query and materializes the matched
// tags. Result order follows the query; the size is capped at the
// configured limit.
func (s *Store) Search(ctx context.Context, tenant string, query storage.SearchQuery) ([]*types.Tag, error) {
	if query.SQL == "" {
		return nil, nil
	}
	tenantID, err := s.resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	var tags []*types.Tag
	err = s.withTx(ctx, true, func(tx *storeTx) error {
		pks, err := tx.executeSearch(ctx, query)
		if err != nil {
			return err
		}
		if len(pks) == 0 {
			tags = []*types.Tag{}
			return nil
		}
		tags, err = tx.readTagsByPK(ctx, tenantID, pks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// --- validation helpers ---

func validateTags(tags []*types.Tag) error {
	for _, t := range tags {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateBatch(b *types.BatchUpdate) error {
	for _, r := range b.PreallocIDs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for _, group := range [][]*types.Tag{b.PreallocObjects, b.NewObjects, b.NewVersions, b.NewTags} {
		if err := validateTags(group); err != nil {
			return err
		}
	}
	for _, e := range b.ConfigEntries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}
