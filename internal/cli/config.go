package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/hyperjump/kham/internal/config"
)

// DefaultConfigPath is where an installed kham looks for its config.
const DefaultConfigPath = "/usr/local/etc/kham/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so that running from a project dir picks up the
// project's config. A missing default config falls back to built-in defaults; a missing
// explicit path is an error. Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == DefaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
