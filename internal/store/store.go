// Package store is the on-disk persistence collaborator: whole-document
// JSON blobs for the Slack config and the user/emoji cache snapshots.
// Every operation is a full read or full replace; there are no partial
// updates.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/waigayahq/waigaya/internal/slack"
)

const (
	configFile = "slack-config.json"
	usersFile  = "users.json"
	emojisFile = "emojis.json"
)

// Store reads and writes JSON blobs under a single data directory.
type Store struct {
	dataDir string

	mu          sync.Mutex
	configCache *slack.Config // read-through cache for the config blob
}

// New creates the data directory if needed and returns a Store over it.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Dir returns the data directory path.
func (s *Store) Dir() string { return s.dataDir }

func (s *Store) configPath() string { return filepath.Join(s.dataDir, configFile) }
func (s *Store) usersPath() string  { return filepath.Join(s.dataDir, usersFile) }
func (s *Store) emojisPath() string { return filepath.Join(s.dataDir, emojisFile) }

// SaveConfig replaces the persisted Slack config and refreshes the cache.
func (s *Store) SaveConfig(cfg slack.Config) error {
	if err := writeJSON(s.configPath(), cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	s.mu.Lock()
	s.configCache = &cfg
	s.mu.Unlock()
	return nil
}

// LoadConfig returns the persisted Slack config, nil when none exists yet.
func (s *Store) LoadConfig() (*slack.Config, error) {
	s.mu.Lock()
	if s.configCache != nil {
		cached := *s.configCache
		s.mu.Unlock()
		return &cached, nil
	}
	s.mu.Unlock()

	var cfg slack.Config
	found, err := readJSON(s.configPath(), &cfg)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !found {
		return nil, nil
	}

	s.mu.Lock()
	s.configCache = &cfg
	s.mu.Unlock()
	return &cfg, nil
}

// SaveUsers replaces the persisted user snapshot.
func (s *Store) SaveUsers(users map[string]slack.User) error {
	if err := writeJSON(s.usersPath(), users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// LoadUsers returns the persisted user snapshot, empty when none exists.
func (s *Store) LoadUsers() (map[string]slack.User, error) {
	users := make(map[string]slack.User)
	if _, err := readJSON(s.usersPath(), &users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

// SaveEmojis replaces the persisted emoji snapshot.
func (s *Store) SaveEmojis(emojis map[string]string) error {
	if err := writeJSON(s.emojisPath(), emojis); err != nil {
		return fmt.Errorf("save emojis: %w", err)
	}
	return nil
}

// LoadEmojis returns the persisted emoji snapshot, empty when none exists.
func (s *Store) LoadEmojis() (map[string]string, error) {
	emojis := make(map[string]string)
	if _, err := readJSON(s.emojisPath(), &emojis); err != nil {
		return nil, fmt.Errorf("load emojis: %w", err)
	}
	return emojis, nil
}

// EmojisLastModified returns the mtime of the emoji snapshot, or ok=false
// when no snapshot exists.
func (s *Store) EmojisLastModified() (time.Time, bool) {
	info, err := os.Stat(s.emojisPath())
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readJSON decodes path into v, reporting found=false for a missing file.
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

var _ slack.ConfigStore = (*Store)(nil)
