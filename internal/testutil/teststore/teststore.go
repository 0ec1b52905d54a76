// Package teststore provides a shared SQLite-backed store fixture for
// tests outside the sqlstore package.
//
// Each call creates an isolated file-backed store in a temp directory
// with the schema installed and one tenant ready. Everything operates
// through the storage.Store interface, so tests written against the
// fixture stay backend-agnostic.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    s := teststore.New(t)
//	    err := s.SaveNewObjects(ctx, teststore.Tenant, tags)
//	    ...
//	}
package teststore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/storage/sqlstore"
)

// Tenant is the tenant code every fixture store is created with.
const Tenant = "test"

// New creates an isolated SQLite-backed storage.Store for a single test
// or benchmark. The store and its database file are cleaned up when the
// test completes.
func New(t testing.TB) storage.Store {
	t.Helper()
	ctx := context.Background()

	s, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect: dialect.SQLite,
		DSN:     filepath.Join(t.TempDir(), "metastore.db"),
	})
	if err != nil {
		t.Fatalf("teststore: open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("teststore: init schema: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("teststore: start: %v", err)
	}
	if err := s.CreateTenant(ctx, Tenant, "test tenant"); err != nil {
		t.Fatalf("teststore: create tenant: %v", err)
	}
	return s
}
