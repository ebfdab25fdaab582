package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tunnelctl/pkg/logging"
)

// tunnelFile is the on-disk document. Wrapping the list in a struct leaves
// room for future top-level settings without a format break.
type tunnelFile struct {
	Tunnels []TunnelConfig `yaml:"tunnels"`
}

// Store persists the tunnel list as a YAML file. The supervisor core treats
// the list as an in-memory collection; the store is only consulted at startup
// and after explicit add/update/remove operations.
type Store struct {
	path string
}

// DefaultStorePath returns ~/.config/tunnelctl/tunnels.yaml.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tunnelctl", "tunnels.yaml"), nil
}

// NewStore creates a store backed by the given path. An empty path selects
// the default location.
func NewStore(path string) (*Store, error) {
	if path == "" {
		defaultPath, err := DefaultStorePath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	return &Store{path: path}, nil
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the tunnel list from disk. A missing file is not an error; it
// yields an empty list.
func (s *Store) Load() ([]TunnelConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug("ConfigStore", "No tunnel file at %s, starting empty", s.path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var file tunnelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return file.Tunnels, nil
}

// Save writes the tunnel list to disk atomically (temp file + rename), so a
// crash mid-write never leaves a truncated config behind.
func (s *Store) Save(tunnels []TunnelConfig) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(tunnelFile{Tunnels: tunnels})
	if err != nil {
		return fmt.Errorf("failed to marshal tunnel list: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	logging.Debug("ConfigStore", "Saved %d tunnels to %s", len(tunnels), s.path)
	return nil
}
