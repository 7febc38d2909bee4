// Package manifest owns persisted identity: the canonical semantic keys
// that keep scheduler entries stable across runs, and the snapshot store
// used for continuity and single-step undo.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
)

// TimeToken is a schedule boundary time: a clock string or a symbolic
// sun token, plus the minute offset.
type TimeToken struct {
	Token  string `json:"token"`
	Offset int    `json:"offset"`
}

// DateToken carries both derivable forms of a date. Tokens holds the
// sorted union of the hard YYYY-MM-DD form and the symbolic holiday
// short-name, so holiday ↔ concrete-date spellings hash alike.
type DateToken struct {
	Tokens   []string `json:"tokens"`
	Hard     string   `json:"hard,omitempty"`
	Symbolic string   `json:"symbolic,omitempty"`
}

type Identity struct {
	Type      string    `json:"type"`
	Target    string    `json:"target"`
	Days      string    `json:"days"`
	StartTime TimeToken `json:"startTime"`
	EndTime   TimeToken `json:"endTime"`
	StartDate DateToken `json:"startDate"`
	EndDate   DateToken `json:"endDate"`
}

// Valid reports whether the identity carries every required field.
// Incomplete identities drop their entry with a diagnostic.
func (id *Identity) Valid() bool {
	return id != nil &&
		id.Type != "" &&
		id.Target != "" &&
		id.Days != "" &&
		id.StartTime.Token != "" &&
		id.EndTime.Token != "" &&
		len(id.StartDate.Tokens) > 0 &&
		len(id.EndDate.Tokens) > 0
}

// Sidecar is the _manifest object attached to managed entries.
type Sidecar struct {
	ID       string    `json:"id"`
	Identity *Identity `json:"identity"`
	Hash     string    `json:"hash"`
}

// AsMap renders the sidecar the way it appears after a JSON round trip,
// so freshly built and re-read entries compare alike.
func (s *Sidecar) AsMap() map[string]any {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// Keys that carry presentation or UID data and must not influence the
// behavioral hash.
var strippedKeys = map[string]bool{
	"_manifest":   true,
	"uid":         true,
	"args":        true,
	"summary":     true,
	"description": true,
	"range":       true,
	"template":    true,
	"resolved":    true,
	"yaml":        true,
	"gcs":         true,
	"order":       true,
	"appliedAt":   true,
}

// Builder derives identity keys and behavioral hashes from host
// entries. The holiday resolver provides the symbolic date forms.
type Builder struct {
	holidays *holiday.Resolver
	now      time.Time
}

func NewBuilder(h *holiday.Resolver, now time.Time) *Builder {
	return &Builder{holidays: h, now: now}
}

// FromEntry extracts identity from a host entry, desired or existing.
func (b *Builder) FromEntry(e fpp.Entry) (*Identity, error) {
	kind := e.Kind()
	if kind == "" || e.Target() == "" {
		return nil, fmt.Errorf("entry has no resolvable target")
	}

	startDate := b.DateToken(e.Str("startDate"))
	endDate := b.DateToken(e.Str("endDate"))

	days := fpp.TokensFromDay(e.Int("day"), b.weekdayFallback(startDate))

	id := &Identity{
		Type:      string(kind),
		Target:    e.Target(),
		Days:      days,
		StartTime: TimeToken{Token: timeToken(e.Str("startTime")), Offset: e.Int("startTimeOffset")},
		EndTime:   TimeToken{Token: timeToken(e.Str("endTime")), Offset: e.Int("endTimeOffset")},
		StartDate: startDate,
		EndDate:   endDate,
	}

	// Commands have no duration; their end collapses onto the start.
	if kind == fpp.TargetCommand {
		id.EndTime = id.StartTime
	}

	if !id.Valid() {
		return nil, fmt.Errorf("incomplete identity for target %q", e.Target())
	}
	return id, nil
}

// Sidecar builds the full _manifest object for an entry.
func (b *Builder) Sidecar(e fpp.Entry) (*Sidecar, error) {
	id, err := b.FromEntry(e)
	if err != nil {
		return nil, err
	}
	return &Sidecar{ID: b.ID(id), Identity: id, Hash: b.Hash(id, e)}, nil
}

// DateToken derives the dual form of a raw date token: an absolute date
// gains its symbolic holiday name when one falls on it; a holiday
// short-name stays symbolic-only.
func (b *Builder) DateToken(raw string) DateToken {
	if raw == "" {
		return DateToken{}
	}
	if fpp.IsDateString(raw) {
		dt := DateToken{Hard: raw}
		if resolved, ok := fpp.ResolveDate(raw, b.now); ok {
			if name, ok := b.holidays.DateToHoliday(resolved); ok {
				dt.Symbolic = name
			}
		}
		dt.Tokens = dedupSorted(dt.Hard, dt.Symbolic)
		return dt
	}
	if holiday.Known(raw) {
		return DateToken{Symbolic: raw, Tokens: []string{raw}}
	}
	return DateToken{}
}

// ID is the stable identity key hash: symbolic-first dates, token@offset
// times, SHA-256 over canonical JSON.
func (b *Builder) ID(id *Identity) string {
	key := map[string]any{
		"type":      id.Type,
		"target":    id.Target,
		"days":      id.Days,
		"startTime": stableTime(id.StartTime),
		"endTime":   stableTime(id.EndTime),
		"startDate": symbolicFirst(id.StartDate),
		"endDate":   symbolicFirst(id.EndDate),
	}
	return hashCanonical(key)
}

// Hash is the behavioral hash: the full dual-token identity plus the
// normalized behavior projection. It changes iff behavioral intent does.
func (b *Builder) Hash(id *Identity, e fpp.Entry) string {
	behavior := map[string]any{
		"enabled":         e.Int("enabled"),
		"day":             e.Int("day"),
		"repeat":          e.Int("repeat"),
		"startTimeOffset": e.Int("startTimeOffset"),
		"endTimeOffset":   e.Int("endTimeOffset"),
		"stopType":        e.Int("stopType"),
	}
	payload := normalize(map[string]any{
		"identity": toJSONMap(id),
		"behavior": behavior,
	})
	return hashCanonical(payload)
}

func (b *Builder) weekdayFallback(startDate DateToken) string {
	if startDate.Hard == "" {
		return ""
	}
	if d, ok := fpp.ResolveDate(startDate.Hard, b.now); ok {
		return fpp.WeekdayToken(d.Weekday())
	}
	return ""
}

func timeToken(raw string) string {
	if tok, ok := fpp.SymbolicTimeToken(raw); ok {
		return tok
	}
	return raw
}

func stableTime(t TimeToken) string {
	return fmt.Sprintf("%s@%d", t.Token, t.Offset)
}

func symbolicFirst(d DateToken) string {
	if d.Symbolic != "" {
		return d.Symbolic
	}
	return d.Hard
}

func dedupSorted(tokens ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// hashCanonical hashes the canonical JSON of v. encoding/json writes
// map keys in sorted order, which is the canonical form here.
func hashCanonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func toJSONMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// normalize strips presentation keys, removes empty strings and coerces
// integral floats to ints, recursively, so hashes survive JSON round
// trips and cosmetic differences.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if strippedKeys[k] {
				continue
			}
			n := normalize(val)
			if s, ok := n.(string); ok && s == "" {
				continue
			}
			if n == nil {
				continue
			}
			out[k] = n
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			out = append(out, normalize(val))
		}
		return out
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	default:
		return v
	}
}
