// Package config loads metastore configuration from config.yaml with
// environment variable overrides.
//
// Resolution order (highest wins): MS_* environment variables, then the
// config file, then built-in defaults. The config file is discovered by
// walking up from the working directory looking for .metastore/config.yaml,
// or taken from MS_CONFIG when set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tagforge/metastore/internal/storage/dialect"
)

// Config is the full runtime configuration of a metastore instance.
type Config struct {
	// Database selects the backend flavor: sqlite, mysql, mariadb,
	// postgresql or dolt.
	Database string `mapstructure:"database" yaml:"database"`

	// DSN is the driver connection string. For sqlite a plain file path
	// (or ":memory:") is enough.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// SearchLimit caps search result sets. Zero means the store default.
	SearchLimit int `mapstructure:"search-limit" yaml:"search-limit"`

	// Pool sizing. Zero values pick per-dialect defaults.
	MaxOpenConns int `mapstructure:"max-open-conns" yaml:"max-open-conns"`
	MaxIdleConns int `mapstructure:"max-idle-conns" yaml:"max-idle-conns"`

	// Tenant is the default tenant code for CLI operations.
	Tenant string `mapstructure:"tenant" yaml:"tenant"`
}

// Defaults returns the built-in configuration: a SQLite database under
// .metastore/ in the current directory.
func Defaults() Config {
	return Config{
		Database: "sqlite",
		DSN:      filepath.Join(DirName, "metastore.db"),
	}
}

// DirName is the per-project configuration directory.
const DirName = ".metastore"

// FileName is the config file inside DirName.
const FileName = "config.yaml"

// Load reads the configuration. A missing config file is not an error;
// defaults plus environment overrides apply.
func Load() (Config, error) {
	v := viper.New()

	def := Defaults()
	v.SetDefault("database", def.Database)
	v.SetDefault("dsn", def.DSN)
	v.SetDefault("search-limit", 0)
	v.SetDefault("max-open-conns", 0)
	v.SetDefault("max-idle-conns", 0)
	v.SetDefault("tenant", "")

	v.SetEnvPrefix("MS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := configPath(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse configuration: %w", err)
	}
	if _, err := cfg.DialectCode(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DialectCode maps the configured database name to a dialect code.
func (c Config) DialectCode() (dialect.Code, error) {
	switch strings.ToLower(strings.TrimSpace(c.Database)) {
	case "", "sqlite", "sqlite3":
		return dialect.SQLite, nil
	case "mysql":
		return dialect.MySQL, nil
	case "mariadb":
		return dialect.MariaDB, nil
	case "postgresql", "postgres":
		return dialect.PostgreSQL, nil
	case "dolt":
		return dialect.Dolt, nil
	default:
		return "", fmt.Errorf("unknown database %q (want sqlite, mysql, mariadb, postgresql or dolt)", c.Database)
	}
}

// configPath locates the active config file: MS_CONFIG wins, then the
// nearest .metastore/config.yaml walking up from the working directory.
func configPath() string {
	if p := os.Getenv("MS_CONFIG"); p != "" {
		return p
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		p := filepath.Join(dir, DirName, FileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}
