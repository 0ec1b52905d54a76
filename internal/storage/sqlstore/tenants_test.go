package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
)

func TestListTenants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTenant(ctx, "globex", "second tenant"); err != nil {
		t.Fatalf("create: %v", err)
	}

	tenants, err := s.ListTenants(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("tenant count = %d", len(tenants))
	}
	// Listing is alphabetical by code.
	if tenants[0].Code != "acme" || tenants[1].Code != "globex" {
		t.Fatalf("order = %s, %s", tenants[0].Code, tenants[1].Code)
	}
	if tenants[1].Description != "second tenant" {
		t.Fatalf("description = %q", tenants[1].Description)
	}
	if tenants[0].ID == tenants[1].ID {
		t.Fatalf("duplicate tenant id %d", tenants[0].ID)
	}
}

func TestCreateTenantErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateTenant(ctx, testTenant, "again")
	if !errors.Is(err, storage.ErrTenantExists) {
		t.Fatalf("duplicate create: %v", err)
	}

	if err := s.CreateTenant(ctx, "", "no code"); err == nil {
		t.Fatalf("empty code accepted")
	}
}

func TestRefreshTenantsSeesExternalWrites(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "metastore.db")

	a := newTestStoreOpts(t, Options{DSN: dsn})

	// A second store handle on the same database, started before the
	// tenant below exists.
	b, err := Open(ctx, Options{Dialect: dialect.SQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start second handle: %v", err)
	}

	if err := a.CreateTenant(ctx, "globex", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The stale registry does not know the new tenant until refreshed.
	if _, err := b.resolveTenant("globex"); !errors.Is(err, storage.ErrTenantNotFound) {
		t.Fatalf("stale registry: %v", err)
	}
	if err := b.RefreshTenants(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := b.resolveTenant("globex"); err != nil {
		t.Fatalf("after refresh: %v", err)
	}
}

func TestConcurrentRefresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RefreshTenants(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}

	if _, err := s.resolveTenant(testTenant); err != nil {
		t.Fatalf("resolve after refresh storm: %v", err)
	}
}
