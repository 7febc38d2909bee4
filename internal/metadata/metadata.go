// Package metadata extracts the per-event key/value block from an ICS
// event description. The accepted shape is a deliberately small YAML
// subset: flat keys plus one nested level, scalar values only.
package metadata

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	fenceRe   = regexp.MustCompile("(?s)```\\s*ya?ml\\s*\\n(.*?)```")
	topKeyRe  = regexp.MustCompile(`^[A-Za-z0-9_]+:`)
	childLine = regexp.MustCompile(`^\s+\S`)
)

// Parse pulls the metadata map out of a description. It never fails:
// anything unrecognizable yields an empty map.
func Parse(description string) map[string]any {
	block := extractBlock(description)
	if block == "" {
		return map[string]any{}
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return map[string]any{}
	}
	return sanitize(raw, true)
}

// Serialize renders a metadata map back to YAML for round-tripping
// through a calendar description.
func Serialize(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	b, err := yaml.Marshal(meta)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(b), "\n")
}

// extractBlock finds either a fenced yaml block or a contiguous run of
// key: lines (with their indented children) at the top of the text.
func extractBlock(description string) string {
	if m := fenceRe.FindStringSubmatch(description); m != nil {
		return m[1]
	}

	lines := strings.Split(strings.ReplaceAll(description, "\r\n", "\n"), "\n")
	var kept []string
	for i, line := range lines {
		if topKeyRe.MatchString(line) {
			kept = append(kept, line)
			continue
		}
		if len(kept) > 0 && childLine.MatchString(line) {
			kept = append(kept, line)
			continue
		}
		if i == 0 || len(kept) == 0 {
			return ""
		}
		break
	}
	return strings.Join(kept, "\n")
}

// sanitize enforces the subset: scalars are string|int|bool, one nested
// map level is allowed, anything else is dropped. Unknown keys pass
// through untouched.
func sanitize(raw map[string]any, allowNested bool) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string, int, bool:
			out[k] = t
		case int64:
			out[k] = int(t)
		case float64:
			if t == float64(int(t)) {
				out[k] = int(t)
			} else {
				out[k] = fmt.Sprintf("%v", t)
			}
		case map[string]any:
			if allowNested {
				out[k] = sanitize(t, false)
			}
		}
	}
	return out
}
