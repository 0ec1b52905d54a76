package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// tenantRegistry caches the tenant table in memory. Tenants are created
// rarely and never deleted, so every operation resolves its tenant code
// against the cache; an explicit refresh (or CreateTenant) swaps the map.
type tenantRegistry struct {
	store *Store

	mu   sync.RWMutex
	byID map[string]int
	info []types.TenantInfo

	// group collapses concurrent refresh calls into one query.
	group singleflight.Group
}

func newTenantRegistry(s *Store) *tenantRegistry {
	return &tenantRegistry{store: s, byID: map[string]int{}}
}

// id resolves a tenant code to its internal id.
func (r *tenantRegistry) id(code string) (int, error) {
	r.mu.RLock()
	id, ok := r.byID[code]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("tenant %q: %w", code, storage.ErrTenantNotFound)
	}
	return id, nil
}

func (r *tenantRegistry) list() []types.TenantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TenantInfo, len(r.info))
	copy(out, r.info)
	return out
}

// refresh reloads the tenant table and swaps the cache.
func (r *tenantRegistry) refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		rows, err := r.store.db.QueryContext(ctx, r.store.d.Rebind(
			`SELECT tenant_id, tenant_code, description FROM tenant ORDER BY tenant_code`))
		if err != nil {
			return nil, storage.Internalf("load tenants: %v", err)
		}
		defer func() { _ = rows.Close() }()

		byID := map[string]int{}
		var info []types.TenantInfo
		for rows.Next() {
			var (
				id   int
				code string
				desc sql.NullString
			)
			if err := rows.Scan(&id, &code, &desc); err != nil {
				return nil, storage.Internalf("scan tenant: %v", err)
			}
			byID[code] = id
			info = append(info, types.TenantInfo{ID: id, Code: code, Description: desc.String})
		}
		if err := rows.Err(); err != nil {
			return nil, storage.Internalf("load tenants: %v", err)
		}

		r.mu.Lock()
		r.byID = byID
		r.info = info
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// ListTenants returns every known tenant, ordered by code.
func (s *Store) ListTenants(ctx context.Context) ([]types.TenantInfo, error) {
	if err := s.tenants.refresh(ctx); err != nil {
		return nil, err
	}
	return s.tenants.list(), nil
}

// CreateTenant registers a new tenant code. Ids are assigned max+1 inside
// the transaction, so concurrent creates serialize on the unique code
// index rather than racing on the id.
func (s *Store) CreateTenant(ctx context.Context, code, description string) error {
	if code == "" {
		return fmt.Errorf("tenant code must not be empty")
	}
	err := s.withTx(ctx, false, func(tx *storeTx) error {
		var next int
		err := tx.queryRow(ctx, `SELECT COALESCE(MAX(tenant_id), 0) + 1 FROM tenant`).Scan(&next)
		if err != nil {
			return storage.Internalf("next tenant id: %v", err)
		}
		_, err = tx.exec(ctx, `INSERT INTO tenant (tenant_id, tenant_code, description) VALUES (?, ?, ?)`,
			next, code, description)
		if err != nil {
			if tx.d.MapError(err) == dialect.CodeInsertDuplicate {
				return fmt.Errorf("tenant %q: %w", code, storage.ErrTenantExists)
			}
			return storage.Internalf("insert tenant: %v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.tenants.refresh(ctx)
}

// RefreshTenants reloads the tenant cache. Call after another process
// created a tenant.
func (s *Store) RefreshTenants(ctx context.Context) error {
	return s.tenants.refresh(ctx)
}
