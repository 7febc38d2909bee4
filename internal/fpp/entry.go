package fpp

import (
	"strconv"
	"strings"
)

// LegacyTagPrefix marks entries managed by older releases through an
// args[] identity tag instead of the _manifest sidecar.
const LegacyTagPrefix = "|M|GCS:v1|"

// Entry is one row of schedule.json. It is map-backed so that host keys
// this system does not know about survive a read/modify/write cycle.
type Entry map[string]any

func (e Entry) Str(key string) string {
	if v, ok := e[key]; ok {
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatInt(int64(t), 10)
		case int:
			return strconv.Itoa(t)
		}
	}
	return ""
}

func (e Entry) Int(key string) int {
	if v, ok := e[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case int64:
			return int(t)
		case bool:
			if t {
				return 1
			}
			return 0
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n
			}
		}
	}
	return 0
}

func (e Entry) Args() []string {
	v, ok := e["args"]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, a := range t {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ManifestMap returns the _manifest sidecar as a generic map, whichever
// concrete shape it was stored in.
func (e Entry) ManifestMap() map[string]any {
	v, ok := e["_manifest"]
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// ManifestID returns the sidecar identity id, or "" when absent.
func (e Entry) ManifestID() string {
	m := e.ManifestMap()
	if m == nil {
		return ""
	}
	if id, ok := m["id"].(string); ok {
		return id
	}
	return ""
}

// ManifestHash returns the sidecar behavior hash, or "" when absent.
func (e Entry) ManifestHash() string {
	m := e.ManifestMap()
	if m == nil {
		return ""
	}
	if h, ok := m["hash"].(string); ok {
		return h
	}
	return ""
}

// LegacyUID extracts the uid from a legacy args identity tag.
func (e Entry) LegacyUID() string {
	for _, a := range e.Args() {
		if strings.HasPrefix(a, LegacyTagPrefix) {
			return strings.TrimPrefix(a, LegacyTagPrefix)
		}
	}
	return ""
}

// Managed reports whether this entry's identity is owned by the sync
// system, via the sidecar or the legacy args tag.
func (e Entry) Managed() bool {
	if e.ManifestID() != "" {
		return true
	}
	return e.LegacyUID() != ""
}

// Kind derives the target kind from the populated slots: command wins,
// then sequence (playlist slot with sequence=1), then playlist.
func (e Entry) Kind() TargetKind {
	if e.Str("command") != "" {
		return TargetCommand
	}
	if e.Str("playlist") != "" {
		if e.Int("sequence") == 1 {
			return TargetSequence
		}
		return TargetPlaylist
	}
	return ""
}

// Target returns the scheduled artifact name for the derived kind.
func (e Entry) Target() string {
	if cmd := e.Str("command"); cmd != "" {
		return cmd
	}
	return e.Str("playlist")
}

func (e Entry) Clone() Entry {
	out := make(Entry, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
