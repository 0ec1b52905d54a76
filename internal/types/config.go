package types

import (
	"fmt"
	"time"
)

// ConfigEntry is one version of a typed key-value configuration record.
// Entries follow the same append-plus-close discipline as object versions
// and additionally support soft deletion: a delete is a new version with
// Deleted set (and usually an empty payload).
type ConfigEntry struct {
	ConfigClass   string    `json:"config_class"`
	ConfigKey     string    `json:"config_key"`
	ConfigVersion int       `json:"config_version"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	IsLatest      bool      `json:"is_latest,omitempty"`
	Deleted       bool      `json:"deleted,omitempty"`
	Format        int       `json:"format"`
	FormatVersion int       `json:"format_version"`
	Payload       []byte    `json:"payload,omitempty"`
}

// Validate checks the entry is well-formed for writing.
func (e *ConfigEntry) Validate() error {
	if e == nil {
		return fmt.Errorf("config entry: nil")
	}
	if e.ConfigClass == "" {
		return fmt.Errorf("config entry: missing config class")
	}
	if e.ConfigKey == "" {
		return fmt.Errorf("config entry %s: missing config key", e.ConfigClass)
	}
	if e.ConfigVersion < 1 {
		return fmt.Errorf("config entry %s/%s: version must be >= 1, got %d",
			e.ConfigClass, e.ConfigKey, e.ConfigVersion)
	}
	return nil
}

// ConfigKey selects one version of one config entry. ConfigClass and
// ConfigKey are required; at least one of Version, AsOf or Latest must be
// set. When several criteria are supplied they must all resolve to the
// same row, otherwise the entry is reported as not found.
type ConfigKey struct {
	ConfigClass string    `json:"config_class"`
	ConfigKey   string    `json:"config_key"`
	Version     int       `json:"version,omitempty"`
	AsOf        time.Time `json:"as_of,omitzero"`
	Latest      bool      `json:"latest,omitempty"`
}

// Validate checks the key names an entry and carries at least one
// selection criterion.
func (k ConfigKey) Validate() error {
	if k.ConfigClass == "" {
		return fmt.Errorf("config key: missing config class")
	}
	if k.ConfigKey == "" {
		return fmt.Errorf("config key %s: missing key", k.ConfigClass)
	}
	if k.Version <= 0 && k.AsOf.IsZero() && !k.Latest {
		return fmt.Errorf("config key %s/%s: no selection criterion",
			k.ConfigClass, k.ConfigKey)
	}
	return nil
}

// LatestConfigKey selects the latest version of a config entry.
func LatestConfigKey(class, key string) ConfigKey {
	return ConfigKey{ConfigClass: class, ConfigKey: key, Latest: true}
}
