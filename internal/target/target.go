// Package target maps an event summary onto the media artifact it names.
package target

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
)

// Resolver probes the media root for playlists and sequences. Summaries
// with a cmd:/command: prefix bypass the probe.
type Resolver struct {
	mediaRoot string
}

func NewResolver(mediaRoot string) *Resolver {
	return &Resolver{mediaRoot: mediaRoot}
}

// Resolve maps a summary to {kind, target}. ok is false when nothing on
// disk matches; the caller drops the series.
func (r *Resolver) Resolve(summary string) (fpp.TargetKind, string, bool) {
	s := strings.TrimSpace(summary)
	if s == "" {
		return "", "", false
	}

	for _, prefix := range []string{"cmd:", "command:"} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			name := strings.TrimSpace(s[len(prefix):])
			if name == "" {
				return "", "", false
			}
			return fpp.TargetCommand, name, true
		}
	}

	if r.isDir(filepath.Join("playlists", s, "playlist.json")) ||
		r.exists(filepath.Join("playlists", s+".json")) {
		return fpp.TargetPlaylist, s, true
	}

	if r.exists(filepath.Join("sequences", s+".fseq")) {
		return fpp.TargetSequence, strings.TrimSuffix(s, ".fseq"), true
	}

	return "", "", false
}

func (r *Resolver) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(r.mediaRoot, rel))
	return err == nil
}

func (r *Resolver) isDir(rel string) bool {
	// The playlist probe accepts either the directory layout
	// playlists/<name>/playlist.json or the flat playlists/<name>.json.
	_, err := os.Stat(filepath.Join(r.mediaRoot, rel))
	return err == nil
}
