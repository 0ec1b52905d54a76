package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Write serializes cfg to dir/.metastore/config.yaml, creating the
// directory if needed. Used by `metastore init`; refuses to overwrite an
// existing file so a re-run cannot clobber local edits.
func Write(dir string, cfg Config) (string, error) {
	configDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", configDir, err)
	}

	path := filepath.Join(configDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
