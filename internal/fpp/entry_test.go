package fpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryKind(t *testing.T) {
	assert.Equal(t, TargetPlaylist, Entry{"playlist": "MainShow"}.Kind())
	assert.Equal(t, TargetSequence, Entry{"playlist": "intro", "sequence": 1}.Kind())
	assert.Equal(t, TargetSequence, Entry{"playlist": "intro", "sequence": float64(1)}.Kind())
	assert.Equal(t, TargetCommand, Entry{"command": "All Lights Off", "playlist": ""}.Kind())
	assert.Equal(t, TargetKind(""), Entry{}.Kind())
}

func TestEntryManaged(t *testing.T) {
	sidecar := Entry{"playlist": "x", "_manifest": map[string]any{"id": "abc"}}
	assert.True(t, sidecar.Managed())
	assert.Equal(t, "abc", sidecar.ManifestID())

	legacy := Entry{"playlist": "x", "args": []any{"|M|GCS:v1|uid-123"}}
	assert.True(t, legacy.Managed())
	assert.Equal(t, "uid-123", legacy.LegacyUID())

	assert.False(t, Entry{"playlist": "x"}.Managed())
}

func TestEntryAccessorsCoerce(t *testing.T) {
	e := Entry{"day": float64(7), "repeat": "30", "enabled": true, "startDate": "2026-01-01"}
	assert.Equal(t, 7, e.Int("day"))
	assert.Equal(t, 30, e.Int("repeat"))
	assert.Equal(t, 1, e.Int("enabled"))
	assert.Equal(t, "2026-01-01", e.Str("startDate"))
	assert.Equal(t, "", e.Str("missing"))
}

func TestEntryClone(t *testing.T) {
	e := Entry{"playlist": "x", "day": 7}
	c := e.Clone()
	c["day"] = 3
	assert.Equal(t, 7, e.Int("day"))
}
