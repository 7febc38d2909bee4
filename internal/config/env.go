package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Env is the host environment snapshot written by the exporter helper:
// timezone and coordinates pulled from the FPP settings file. The sync
// run consumes it read-only.
type Env struct {
	SchemaVersion int     `json:"schemaVersion"`
	Source        string  `json:"source"`
	Timezone      string  `json:"timezone"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	RawLocale     string  `json:"rawLocale,omitempty"`
	OK            bool    `json:"ok"`
	Error         string  `json:"error,omitempty"`
}

// EnvSchemaVersion is the snapshot format version the exporter writes.
const EnvSchemaVersion = 1

// DefaultEnv is the snapshot used when the exporter never ran: UTC,
// coordinates at the null island the sun code treats as "no location".
func DefaultEnv() *Env {
	return &Env{SchemaVersion: EnvSchemaVersion, Source: "default", Timezone: "UTC"}
}

// LoadEnv reads the snapshot leniently. Missing or corrupt snapshots
// degrade to defaults; symbolic times then resolve against UTC zero.
func LoadEnv(path string) *Env {
	b, err := os.ReadFile(path)
	if err != nil {
		return DefaultEnv()
	}
	var e Env
	if err := json.Unmarshal(b, &e); err != nil {
		return DefaultEnv()
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	return &e
}

// Location resolves the snapshot timezone, falling back to UTC.
func (e *Env) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WriteEnv persists a snapshot atomically.
func WriteEnv(path string, e *Env) error {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ErrNoSettings means the FPP settings file was missing entirely.
var ErrNoSettings = errors.New("settings file not found")

// ReadSettingsFile parses FPP's key="value" settings file into a map.
func ReadSettingsFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSettings
		}
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"`)
		if key == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no settings parsed from %s", path)
	}
	return out, nil
}
