package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNotFound indicates no config file exists in the standard search
// locations.
var ErrNotFound = errors.New("configuration file not found")

var configNames = []string{"logsplit.yaml", "logsplit.yml"}

// Load resolves the effective configuration. With an explicit path the file
// must exist; otherwise the standard locations are searched and a missing
// file simply yields the defaults. File values are laid over the defaults, so
// a partial file is fine.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		found, err := findConfigFile()
		if errors.Is(err, ErrNotFound) {
			return Default(), nil
		}
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// findConfigFile searches the current directory first, then the user config
// directory.
func findConfigFile() (string, error) {
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, name := range configNames {
			path := filepath.Join(userConfigDir, "logsplit", name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}
