// Package config loads the workspace configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/herdctl/herd/internal/domain"
)

// Loader reads .herd/config.toml, merging it over the built-in defaults.
type Loader struct {
	workDir string
}

// NewLoader creates a loader for the given workspace.
func NewLoader(workDir string) *Loader {
	return &Loader{workDir: workDir}
}

// Load returns the merged configuration. A missing file yields the defaults.
func (l *Loader) Load() (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	content, err := os.ReadFile(domain.ConfigPath(l.workDir)) //nolint:gosec // well-known workspace path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
