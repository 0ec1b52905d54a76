// Package storage defines the interface and error taxonomy for the
// metastore metadata storage layer.
//
// The concrete implementation lives in the sqlstore sub-package. This
// package holds the interface and shared value types referenced by both
// the implementation and its consumers (cmd/metastore, telemetry, etc.).
package storage

import (
	"context"

	"github.com/tagforge/metastore/internal/types"
)

// Store is the public surface of the metadata storage layer. Every
// operation is one database transaction: it either commits all of its
// effects or none of them.
//
// Implementations must honor context cancellation by rolling back the
// in-flight transaction and returning the context error.
type Store interface {
	// Lifecycle. Start loads the tenant registry synchronously and
	// verifies the schema is reachable; it returns ErrStartup on failure.
	Start(ctx context.Context) error
	Stop() error

	// Tenant administration.
	ListTenants(ctx context.Context) ([]types.TenantInfo, error)
	CreateTenant(ctx context.Context, code, description string) error
	RefreshTenants(ctx context.Context) error

	// Write operations. Each is atomic; SaveBatchUpdate composes the
	// others (plus SaveConfigEntries) in a single transaction.
	SaveBatchUpdate(ctx context.Context, tenant string, batch *types.BatchUpdate) error
	SavePreallocatedIDs(ctx context.Context, tenant string, refs []types.ObjectRef) error
	SavePreallocatedObjects(ctx context.Context, tenant string, tags []*types.Tag) error
	SaveNewObjects(ctx context.Context, tenant string, tags []*types.Tag) error
	SaveNewVersions(ctx context.Context, tenant string, tags []*types.Tag) error
	SaveNewTags(ctx context.Context, tenant string, tags []*types.Tag) error

	// Read operations. Batch variants return results positionally
	// aligned with their input selectors.
	LoadObject(ctx context.Context, tenant string, sel types.TagSelector) (*types.Tag, error)
	LoadObjects(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error)
	LoadPriorObjects(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error)
	LoadPriorTags(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error)

	// Search executes a pre-built query from the external search query
	// builder and materializes the matching tags (capped at the
	// configured result limit).
	Search(ctx context.Context, tenant string, query SearchQuery) ([]*types.Tag, error)

	// Config entries.
	SaveConfigEntries(ctx context.Context, tenant string, entries []*types.ConfigEntry) error
	LoadConfigEntry(ctx context.Context, tenant string, key types.ConfigKey, includeDeleted bool) (*types.ConfigEntry, error)
	LoadConfigEntries(ctx context.Context, tenant string, keys []types.ConfigKey, includeDeleted bool) ([]*types.ConfigEntry, error)
	ListConfigEntries(ctx context.Context, tenant string, configClass string, includeDeleted bool) ([]*types.ConfigEntry, error)

	Close() error
}

// SearchQuery is a pre-built SQL search supplied by the external search
// query builder. The SQL must select tag primary keys as its first (and
// only) column; Args are bound positionally using ? placeholders. The
// store rebinds placeholders for the active dialect and caps the result
// set at its configured limit.
type SearchQuery struct {
	SQL  string
	Args []any
}
