package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// manifestName is the optional defaults file discovered by walking up from
// the working directory. Explicit flags always win over manifest values.
const manifestName = "protosift.toml"

type manifest struct {
	Path   string
	Root   string
	Config manifestConfig
}

type manifestConfig struct {
	Output   outputConfig   `toml:"output"`
	Scan     scanConfig     `toml:"scan"`
	Conflict conflictConfig `toml:"conflict"`
}

type outputConfig struct {
	Dir   string `toml:"dir"`
	Force bool   `toml:"force"`
}

type scanConfig struct {
	MaxDescriptors int `toml:"max_descriptors"`
	MinFilenameLen int `toml:"min_filename_len"`
	MaxFilenameLen int `toml:"max_filename_len"`
	Jobs           int `toml:"jobs"`
}

type conflictConfig struct {
	Strategy string `toml:"strategy"`
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadManifest(startDir string) (*manifest, bool, error) {
	path, ok, err := findManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	var cfg manifestConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, true, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return &manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}, true, nil
}
