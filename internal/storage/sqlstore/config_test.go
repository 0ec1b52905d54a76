package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/types"
)

func newEntry(class, key string, version int, payload string) *types.ConfigEntry {
	return &types.ConfigEntry{
		ConfigClass:   class,
		ConfigKey:     key,
		ConfigVersion: version,
		Payload:       []byte(payload),
	}
}

func mustSaveConfig(t *testing.T, s *Store, entries ...*types.ConfigEntry) {
	t.Helper()
	if err := s.SaveConfigEntries(context.Background(), testTenant, entries); err != nil {
		t.Fatalf("save config entries: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s, newEntry("pipelines", "batch-size", 1, "100"))
	time.Sleep(2 * time.Millisecond)
	mustSaveConfig(t, s, newEntry("pipelines", "batch-size", 2, "250"))

	latest, err := s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("pipelines", "batch-size"), false)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.ConfigVersion != 2 || !latest.IsLatest || string(latest.Payload) != "250" {
		t.Fatalf("latest = v%d latest=%t payload=%q", latest.ConfigVersion, latest.IsLatest, latest.Payload)
	}
	if latest.Timestamp.IsZero() {
		t.Fatalf("timestamp not assigned")
	}

	v1, err := s.LoadConfigEntry(ctx, testTenant, types.ConfigKey{
		ConfigClass: "pipelines", ConfigKey: "batch-size", Version: 1,
	}, false)
	if err != nil {
		t.Fatalf("load v1: %v", err)
	}
	if v1.ConfigVersion != 1 || v1.IsLatest || string(v1.Payload) != "100" {
		t.Fatalf("v1 = v%d latest=%t payload=%q", v1.ConfigVersion, v1.IsLatest, v1.Payload)
	}

	// As-of the v1 write instant sees v1; as-of now sees v2.
	asOf, err := s.LoadConfigEntry(ctx, testTenant, types.ConfigKey{
		ConfigClass: "pipelines", ConfigKey: "batch-size", AsOf: v1.Timestamp,
	}, false)
	if err != nil {
		t.Fatalf("load as-of: %v", err)
	}
	if asOf.ConfigVersion != 1 {
		t.Fatalf("as-of resolved v%d", asOf.ConfigVersion)
	}
	now, err := s.LoadConfigEntry(ctx, testTenant, types.ConfigKey{
		ConfigClass: "pipelines", ConfigKey: "batch-size", AsOf: time.Now(),
	}, false)
	if err != nil {
		t.Fatalf("load as-of now: %v", err)
	}
	if now.ConfigVersion != 2 {
		t.Fatalf("as-of now resolved v%d", now.ConfigVersion)
	}

	_, err = s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("pipelines", "nope"), false)
	if !errors.Is(err, storage.ErrConfigNotFound) {
		t.Fatalf("unknown key: %v", err)
	}
}

func TestConfigMultiCriterion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s, newEntry("limits", "rate", 1, "10"))
	mustSaveConfig(t, s, newEntry("limits", "rate", 2, "20"))

	// Agreeing criteria resolve the row.
	agree := types.ConfigKey{ConfigClass: "limits", ConfigKey: "rate", Version: 2, Latest: true}
	got, err := s.LoadConfigEntry(ctx, testTenant, agree, false)
	if err != nil {
		t.Fatalf("agreeing criteria: %v", err)
	}
	if got.ConfigVersion != 2 {
		t.Fatalf("resolved v%d", got.ConfigVersion)
	}

	// Disagreeing criteria select nothing.
	disagree := types.ConfigKey{ConfigClass: "limits", ConfigKey: "rate", Version: 1, Latest: true}
	_, err = s.LoadConfigEntry(ctx, testTenant, disagree, false)
	if !errors.Is(err, storage.ErrConfigNotFound) {
		t.Fatalf("disagreeing criteria: %v", err)
	}

	// A key with no criterion at all is rejected as not found.
	_, err = s.LoadConfigEntry(ctx, testTenant, types.ConfigKey{ConfigClass: "limits", ConfigKey: "rate"}, false)
	if !errors.Is(err, storage.ErrConfigNotFound) {
		t.Fatalf("criterionless key: %v", err)
	}
}

func TestConfigSequencingErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s, newEntry("limits", "rate", 1, "10"))

	err := s.SaveConfigEntries(ctx, testTenant, []*types.ConfigEntry{newEntry("limits", "rate", 3, "30")})
	if !errors.Is(err, storage.ErrPriorConfigMissing) {
		t.Fatalf("gap append: %v", err)
	}

	err = s.SaveConfigEntries(ctx, testTenant, []*types.ConfigEntry{newEntry("limits", "rate", 1, "10")})
	if !errors.Is(err, storage.ErrDuplicateConfig) {
		t.Fatalf("duplicate v1: %v", err)
	}

	mustSaveConfig(t, s, newEntry("limits", "rate", 2, "20"))

	// Re-appending v2: the prior latest is already closed.
	err = s.SaveConfigEntries(ctx, testTenant, []*types.ConfigEntry{newEntry("limits", "rate", 2, "20")})
	if !errors.Is(err, storage.ErrPriorConfigMissing) && !errors.Is(err, storage.ErrDuplicateConfig) {
		t.Fatalf("replay append: %v", err)
	}

	// A version-2 entry for a key that was never written.
	err = s.SaveConfigEntries(ctx, testTenant, []*types.ConfigEntry{newEntry("limits", "unknown", 2, "x")})
	if !errors.Is(err, storage.ErrPriorConfigMissing) {
		t.Fatalf("append to unknown key: %v", err)
	}
}

func TestConfigSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s, newEntry("features", "dark-mode", 1, "on"))

	del := newEntry("features", "dark-mode", 2, "")
	del.Deleted = true
	mustSaveConfig(t, s, del)

	// The latest row is a deletion marker: hidden by default.
	_, err := s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("features", "dark-mode"), false)
	if !errors.Is(err, storage.ErrConfigNotFound) {
		t.Fatalf("deleted key visible: %v", err)
	}

	got, err := s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("features", "dark-mode"), true)
	if err != nil {
		t.Fatalf("load with includeDeleted: %v", err)
	}
	if got.ConfigVersion != 2 || !got.Deleted {
		t.Fatalf("deleted latest = v%d deleted=%t", got.ConfigVersion, got.Deleted)
	}

	// History below the marker stays readable.
	v1, err := s.LoadConfigEntry(ctx, testTenant, types.ConfigKey{
		ConfigClass: "features", ConfigKey: "dark-mode", Version: 1,
	}, false)
	if err != nil {
		t.Fatalf("load v1 after delete: %v", err)
	}
	if string(v1.Payload) != "on" {
		t.Fatalf("v1 payload = %q", v1.Payload)
	}

	// Resurrection is a normal append on top of the deletion marker.
	mustSaveConfig(t, s, newEntry("features", "dark-mode", 3, "off"))
	back, err := s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("features", "dark-mode"), false)
	if err != nil {
		t.Fatalf("load after resurrect: %v", err)
	}
	if back.ConfigVersion != 3 || back.Deleted || string(back.Payload) != "off" {
		t.Fatalf("resurrected = v%d deleted=%t payload=%q", back.ConfigVersion, back.Deleted, back.Payload)
	}
}

func TestLoadConfigEntriesBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s,
		newEntry("limits", "rate", 1, "10"),
		newEntry("limits", "burst", 1, "50"),
		newEntry("features", "dark-mode", 1, "on"),
	)
	mustSaveConfig(t, s, newEntry("limits", "rate", 2, "20"))

	keys := []types.ConfigKey{
		types.LatestConfigKey("features", "dark-mode"),
		{ConfigClass: "limits", ConfigKey: "rate", Version: 1},
		types.LatestConfigKey("limits", "burst"),
	}
	got, err := s.LoadConfigEntries(ctx, testTenant, keys, false)
	if err != nil {
		t.Fatalf("batch load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("result count = %d", len(got))
	}
	for i, key := range keys {
		if got[i].ConfigClass != key.ConfigClass || got[i].ConfigKey != key.ConfigKey {
			t.Fatalf("position %d: got %s/%s", i, got[i].ConfigClass, got[i].ConfigKey)
		}
	}
	if got[1].ConfigVersion != 1 {
		t.Fatalf("explicit version = v%d", got[1].ConfigVersion)
	}

	// One unknown key fails the batch and names the key.
	keys = append(keys, types.LatestConfigKey("limits", "nope"))
	_, err = s.LoadConfigEntries(ctx, testTenant, keys, false)
	if !errors.Is(err, storage.ErrConfigNotFound) {
		t.Fatalf("batch with unknown key: %v", err)
	}

	// Empty input is a no-op.
	if got, err := s.LoadConfigEntries(ctx, testTenant, nil, false); err != nil || got != nil {
		t.Fatalf("empty batch: %v %v", got, err)
	}
}

func TestListConfigEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s,
		newEntry("limits", "rate", 1, "10"),
		newEntry("limits", "burst", 1, "50"),
		newEntry("limits", "window", 1, "60s"),
		newEntry("other", "key", 1, "x"),
	)
	mustSaveConfig(t, s, newEntry("limits", "rate", 2, "20"))

	got, err := s.ListConfigEntries(ctx, testTenant, "limits", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	wantKeys := []string{"burst", "rate", "window"}
	if len(got) != len(wantKeys) {
		t.Fatalf("result count = %d", len(got))
	}
	for i, key := range wantKeys {
		if got[i].ConfigKey != key {
			t.Fatalf("position %d = %q, want %q", i, got[i].ConfigKey, key)
		}
		if !got[i].IsLatest {
			t.Fatalf("%s: not latest", key)
		}
	}
	if got[1].ConfigVersion != 2 {
		t.Fatalf("rate = v%d", got[1].ConfigVersion)
	}

	_, err = s.ListConfigEntries(ctx, testTenant, "unknown-class", false)
	if !errors.Is(err, storage.ErrConfigClassNotFound) {
		t.Fatalf("unknown class: %v", err)
	}
}

func TestListConfigEntriesAllDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveConfig(t, s, newEntry("features", "dark-mode", 1, "on"))
	del := newEntry("features", "dark-mode", 2, "")
	del.Deleted = true
	mustSaveConfig(t, s, del)

	// The class exists; with deletions excluded it lists as empty.
	got, err := s.ListConfigEntries(ctx, testTenant, "features", false)
	if err != nil {
		t.Fatalf("list all-deleted class: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("result count = %d", len(got))
	}

	got, err = s.ListConfigEntries(ctx, testTenant, "features", true)
	if err != nil {
		t.Fatalf("list with includeDeleted: %v", err)
	}
	if len(got) != 1 || !got[0].Deleted {
		t.Fatalf("includeDeleted = %+v", got)
	}
}

func TestConfigTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTenant(ctx, "globex", ""); err != nil {
		t.Fatalf("create second tenant: %v", err)
	}

	mustSaveConfig(t, s, newEntry("limits", "rate", 1, "10"))

	// The same class/key/version is free in the other tenant.
	if err := s.SaveConfigEntries(ctx, "globex", []*types.ConfigEntry{newEntry("limits", "rate", 1, "99")}); err != nil {
		t.Fatalf("same key in other tenant: %v", err)
	}

	mine, err := s.LoadConfigEntry(ctx, testTenant, types.LatestConfigKey("limits", "rate"), false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(mine.Payload) != "10" {
		t.Fatalf("cross-tenant bleed: %q", mine.Payload)
	}
}
