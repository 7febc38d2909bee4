// Package config owns the two configuration surfaces: process settings
// from the environment, and the plugin config file that the UI edits
// and the sync run reads.
package config

import (
	"os"
	"path/filepath"
)

// Settings are process-level knobs, environment only. The plugin
// config file never carries these.
type Settings struct {
	HTTPAddr     string
	MediaRoot    string
	ConfigPath   string
	SchedulePath string
	ManifestPath string
	EnvPath      string
	Timezone     string
	LogLevel     string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadSettings reads process settings from the environment. Paths
// default to the standard FPP media layout under FPP_MEDIA_ROOT.
func LoadSettings() *Settings {
	root := getenv("FPP_MEDIA_ROOT", "/home/fpp/media")
	plugin := getenv("PLUGIN_DATA_DIR", filepath.Join(root, "config", "plugin.fpp-calendar-sync"))

	return &Settings{
		HTTPAddr:     getenv("HTTP_ADDR", ":8321"),
		MediaRoot:    root,
		ConfigPath:   getenv("CONFIG_PATH", filepath.Join(plugin, "config.json")),
		SchedulePath: getenv("SCHEDULE_PATH", filepath.Join(root, "config", "schedule.json")),
		ManifestPath: getenv("MANIFEST_PATH", filepath.Join(plugin, "manifest.json")),
		EnvPath:      getenv("FPP_ENV_PATH", filepath.Join(plugin, "fpp-env.json")),
		Timezone:     getenv("TZ", ""),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}
}

// Config is the plugin config file. Unknown keys survive a round trip
// only in the UI's hands; the daemon rewrites the whole file.
type Config struct {
	Version  int            `json:"version"`
	Calendar CalendarConfig `json:"calendar"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Sync     SyncStatus     `json:"sync"`
}

type CalendarConfig struct {
	ICSURL string `json:"ics_url"`
}

// RuntimeConfig holds operator toggles. DryRun is a pointer so an
// absent key reads as the safe default, enabled.
type RuntimeConfig struct {
	DryRun *bool `json:"dry_run,omitempty"`
}

// SyncStatus is the last-run record the UI displays.
type SyncStatus struct {
	LastRun    string `json:"last_run,omitempty"`
	LastStatus string `json:"last_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Creates    int    `json:"creates"`
	Updates    int    `json:"updates"`
	Deletes    int    `json:"deletes"`
}

// DryRun reports the effective dry-run state. Missing means on.
func (c *Config) DryRun() bool {
	if c == nil || c.Runtime.DryRun == nil {
		return true
	}
	return *c.Runtime.DryRun
}

func defaultConfig() *Config {
	return &Config{Version: 1}
}
