// Package settings persists the gateway's user settings.
//
// Settings live as one JSON blob under a fixed key in a small file-backed
// key-value store. The same blob travels in the settings= navigation
// parameter so a navigation keeps the settings it was started with.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Key is the store key the settings blob is saved under
const Key = "aurora.gateway.settings"

// ErrNotFound is returned when a key has never been written
var ErrNotFound = errors.New("key not found")

// Settings are the user-editable gateway settings
type Settings struct {
	Debug bool   `json:"debug"`
	Extra string `json:"extra,omitempty"`
}

// Blob encodes the settings as carried in navigation URLs
func (s Settings) Blob() string {
	out, err := sonic.ConfigStd.MarshalToString(s)
	if err != nil {
		return "{}"
	}
	return out
}

// Parse decodes a settings blob. An empty blob yields the zero settings.
func Parse(blob string) (Settings, error) {
	var s Settings
	if strings.TrimSpace(blob) == "" {
		return s, nil
	}
	if err := sonic.ConfigStd.UnmarshalFromString(blob, &s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings blob: %w", err)
	}
	return s, nil
}

// Store is a key-value store kept in a single JSON file. With an empty
// path it only lives in memory.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
	logger *zap.Logger
}

// Open loads the store at path, creating nothing until the first write
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		values: make(map[string]string),
		logger: logger,
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings store: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse settings store %s: %w", path, err)
	}
	return s, nil
}

// NewMemoryStore creates a store that is never written to disk
func NewMemoryStore() *Store {
	s, _ := Open("", nil)
	return s
}

// Path returns the backing file, "" for memory stores
func (s *Store) Path() string {
	return s.path
}

// Get returns the raw value under key
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set writes the value and flushes the store
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.flushLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Delete removes key and flushes the store
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flushLocked()
}

// flushLocked writes through a temp file so a crash never leaves half a file
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := sonic.ConfigStd.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to write settings store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings store: %w", err)
	}
	s.logger.Debug("settings store flushed", zap.String("path", s.path), zap.Int("keys", len(s.values)))
	return nil
}

// Load reads the gateway settings. A missing or corrupt blob yields the
// defaults; corruption is logged, not returned.
func (s *Store) Load() Settings {
	blob, err := s.Get(Key)
	if err != nil {
		return Settings{}
	}
	parsed, err := Parse(blob)
	if err != nil {
		s.logger.Warn("discarding unreadable settings", zap.Error(err))
		return Settings{}
	}
	return parsed
}

// Save writes the gateway settings
func (s *Store) Save(settings Settings) error {
	return s.Set(Key, settings.Blob())
}
