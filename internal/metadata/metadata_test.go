package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFencedBlock(t *testing.T) {
	desc := "Some human text.\n```yaml\nrepeat: immediate\nstopType: hard\nenabled: true\n```\nMore text."
	meta := Parse(desc)

	assert.Equal(t, "immediate", meta["repeat"])
	assert.Equal(t, "hard", meta["stopType"])
	assert.Equal(t, true, meta["enabled"])
}

func TestParseBareTopBlock(t *testing.T) {
	desc := "repeat: 30\nstart:\n  symbolic: sunset\n  offset: -15\n\nSee you at the show!"
	meta := Parse(desc)

	assert.Equal(t, 30, meta["repeat"])
	start, ok := meta["start"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sunset", start["symbolic"])
	assert.Equal(t, -15, start["offset"])
}

func TestParseRejectsProse(t *testing.T) {
	assert.Empty(t, Parse("Just a normal note about the event."))
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("```yaml\n[broken\n```"))
}

func TestSanitizeDepthAndTypes(t *testing.T) {
	desc := "```yaml\ncommand:\n  name: lights\n  nested:\n    too: deep\ncount: 2.0\nratio: 2.5\n```"
	meta := Parse(desc)

	cmd, ok := meta["command"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lights", cmd["name"])
	// Second nesting level is dropped.
	assert.NotContains(t, cmd, "nested")
	// Integral floats become ints, others become strings.
	assert.Equal(t, 2, meta["count"])
	assert.Equal(t, "2.5", meta["ratio"])
}

func TestSerializeRoundTrip(t *testing.T) {
	meta := map[string]any{"repeat": "immediate", "enabled": false}
	out := Serialize(meta)
	require.NotEmpty(t, out)

	back := Parse(out)
	assert.Equal(t, "immediate", back["repeat"])
	assert.Equal(t, false, back["enabled"])

	assert.Empty(t, Serialize(nil))
}
