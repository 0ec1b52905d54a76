package metastore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	metastore "github.com/tagforge/metastore"
)

// TestEmbeddedUsage exercises the public API the way an embedding program
// would: init the schema once, open a store, write and read objects and
// config entries.
func TestEmbeddedUsage(t *testing.T) {
	ctx := context.Background()
	opts := metastore.Options{
		Dialect: metastore.SQLite,
		DSN:     filepath.Join(t.TempDir(), "metastore.db"),
	}

	if err := metastore.InitSchema(ctx, opts); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	s, err := metastore.Open(ctx, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.CreateTenant(ctx, "acme", "example tenant"); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	id := uuid.New()
	tag := &metastore.Tag{
		Header: metastore.TagHeader{
			ObjectType:    metastore.TypeModel,
			ObjectID:      id,
			ObjectVersion: 1,
			TagVersion:    1,
		},
		Payload: []byte("model definition"),
	}
	if err := s.SaveNewObjects(ctx, "acme", []*metastore.Tag{tag}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadObject(ctx, "acme", metastore.LatestSelector(metastore.TypeModel, id))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got.Payload) != "model definition" {
		t.Fatalf("payload = %q", got.Payload)
	}

	_, err = s.LoadObject(ctx, "acme", metastore.LatestSelector(metastore.TypeModel, uuid.New()))
	if !errors.Is(err, metastore.ErrObjectNotFound) {
		t.Fatalf("unknown object: %v", err)
	}
	_, err = s.LoadObject(ctx, "initech", metastore.LatestSelector(metastore.TypeModel, id))
	if !errors.Is(err, metastore.ErrTenantNotFound) {
		t.Fatalf("unknown tenant: %v", err)
	}
}

// TestOpenBadDialect verifies Open rejects unknown dialect codes before
// touching the database.
func TestOpenBadDialect(t *testing.T) {
	_, err := metastore.Open(context.Background(), metastore.Options{Dialect: "oracle"})
	if err == nil {
		t.Fatalf("unknown dialect accepted")
	}
}
