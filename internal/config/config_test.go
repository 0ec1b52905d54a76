package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tagforge/metastore/internal/storage/dialect"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file in sight
	t.Setenv("MS_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "sqlite" {
		t.Fatalf("database = %q", cfg.Database)
	}
	if cfg.DSN != filepath.Join(DirName, "metastore.db") {
		t.Fatalf("dsn = %q", cfg.DSN)
	}
	if cfg.Tenant != "" || cfg.SearchLimit != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MS_CONFIG", "")

	if _, err := Write(dir, Config{Database: "postgres", DSN: "postgres://localhost/meta", Tenant: "acme"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "postgres" || cfg.DSN != "postgres://localhost/meta" || cfg.Tenant != "acme" {
		t.Fatalf("loaded = %+v", cfg)
	}
}

func TestLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	if _, err := Write(root, Config{Database: "mariadb", DSN: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Chdir(nested)
	t.Setenv("MS_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "mariadb" {
		t.Fatalf("database = %q", cfg.Database)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MS_CONFIG", "")

	if _, err := Write(dir, Config{Database: "sqlite", DSN: "file.db", Tenant: "acme"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MS_DATABASE", "dolt")
	t.Setenv("MS_TENANT", "globex")
	t.Setenv("MS_SEARCH_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "dolt" || cfg.Tenant != "globex" || cfg.SearchLimit != 25 {
		t.Fatalf("loaded = %+v", cfg)
	}
	// File values without env overrides survive.
	if cfg.DSN != "file.db" {
		t.Fatalf("dsn = %q", cfg.DSN)
	}
}

func TestLoadRejectsUnknownDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MS_CONFIG", "")
	t.Setenv("MS_DATABASE", "oracle")

	if _, err := Load(); err == nil {
		t.Fatalf("unknown database accepted")
	}
}

func TestDialectCode(t *testing.T) {
	cases := []struct {
		in   string
		want dialect.Code
	}{
		{"", dialect.SQLite},
		{"sqlite", dialect.SQLite},
		{"sqlite3", dialect.SQLite},
		{"SQLite", dialect.SQLite},
		{"mysql", dialect.MySQL},
		{"mariadb", dialect.MariaDB},
		{"postgresql", dialect.PostgreSQL},
		{"postgres", dialect.PostgreSQL},
		{"dolt", dialect.Dolt},
		{" dolt ", dialect.Dolt},
	}
	for _, c := range cases {
		got, err := Config{Database: c.in}.DialectCode()
		if err != nil {
			t.Errorf("DialectCode(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("DialectCode(%q) = %s, want %s", c.in, got, c.want)
		}
	}
	if _, err := (Config{Database: "mongodb"}).DialectCode(); err == nil {
		t.Fatalf("unknown database accepted")
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, Defaults())
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if path != filepath.Join(dir, DirName, FileName) {
		t.Fatalf("path = %q", path)
	}

	got, err := Write(dir, Config{Database: "mysql"})
	if err == nil {
		t.Fatalf("overwrite accepted")
	}
	// The existing path is still reported so callers can mention it.
	if got != path {
		t.Fatalf("reported path = %q", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "database: sqlite") {
		t.Fatalf("original content clobbered: %q", data)
	}
}
