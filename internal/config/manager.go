package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Manager serializes access to the plugin config file. The UI writes
// the file out of band, so Current always re-checks freshness via
// Reload callers (the watcher) rather than statting on every read.
type Manager struct {
	path   string
	logger zerolog.Logger

	mu  sync.RWMutex
	cfg *Config
}

func NewManager(path string, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		path:   path,
		logger: logger.With().Str("component", "config").Logger(),
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the loaded config. Callers must not mutate it.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the file. A missing file yields defaults; a corrupt
// file keeps the previous config and reports the error.
func (m *Manager) Reload() error {
	cfg, err := m.read()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

func (m *Manager) read() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.path, err)
	}
	return cfg, nil
}

// UpdateSync mutates the sync status under the lock and persists the
// whole file.
func (m *Manager) UpdateSync(fn func(*SyncStatus)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.cfg.Sync)
	return m.write(m.cfg)
}

func (m *Manager) write(cfg *Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return err
	}
	m.logger.Debug().Str("path", m.path).Msg("config written")
	return nil
}
