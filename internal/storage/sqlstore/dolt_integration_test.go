package sqlstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcdolt "github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/types"
)

// TestDoltIntegration runs the core write/read paths against a real dolt
// sql-server in a container. Opt-in: it needs Docker and pulls an image.
func TestDoltIntegration(t *testing.T) {
	if os.Getenv("MS_TEST_DOLT") == "" {
		t.Skip("set MS_TEST_DOLT=1 to run the dolt container test")
	}

	ctx := context.Background()
	container, err := tcdolt.Run(ctx, "dolthub/dolt-sql-server:latest",
		tcdolt.WithDatabase("metastore"),
		tcdolt.WithUsername("metastore"),
		tcdolt.WithPassword("metastore"),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start dolt container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := Open(ctx, Options{Dialect: dialect.Dolt, DSN: dsn})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start store: %v", err)
	}
	if err := s.CreateTenant(ctx, testTenant, "integration"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	// Object round trip with attrs.
	id := uuid.New()
	tag := newTag(id, 1, 1)
	tag.Attrs = map[string]types.AttrValue{
		"owner":   types.StringAttr("core"),
		"rows":    types.IntAttr(42),
		"regions": types.StringArrayAttr("eu-west", "us-east"),
	}
	if err := s.SaveNewObjects(ctx, testTenant, []*types.Tag{tag}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadObject(ctx, testTenant, types.LatestSelector(types.TypeData, id))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Header.ObjectVersion != 1 || len(got.Attrs) != 3 {
		t.Fatalf("round trip = v%d attrs=%d", got.Header.ObjectVersion, len(got.Attrs))
	}

	// Error classification goes through the dolt adapter.
	err = s.SaveNewObjects(ctx, testTenant, []*types.Tag{newTag(id, 1, 1)})
	if !errors.Is(err, storage.ErrDuplicateObjectID) {
		t.Fatalf("duplicate save: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	if err := s.SaveNewVersions(ctx, testTenant, []*types.Tag{newTag(id, 2, 1)}); err != nil {
		t.Fatalf("append v2: %v", err)
	}
	err = s.SaveNewVersions(ctx, testTenant, []*types.Tag{newTag(id, 2, 1)})
	if !errors.Is(err, storage.ErrVersionSuperseded) {
		t.Fatalf("replay append: %v", err)
	}

	// Config entries exercise the non-mapping write path.
	if err := s.SaveConfigEntries(ctx, testTenant, []*types.ConfigEntry{
		newEntry("pipelines", "batch-size", 1, "100"),
	}); err != nil {
		t.Fatalf("save config: %v", err)
	}
	entry, err := s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("pipelines", "batch-size"), false)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if string(entry.Payload) != "100" {
		t.Fatalf("config payload = %q", entry.Payload)
	}
}
