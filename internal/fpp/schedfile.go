package fpp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ScheduleFile owns all reads and writes of the host schedule.json. The
// write path is backup, temp file, rename; a concurrent reader sees the
// old contents or the new ones, never a torn file.
type ScheduleFile struct {
	path   string
	logger zerolog.Logger
}

func NewScheduleFile(path string, logger zerolog.Logger) *ScheduleFile {
	return &ScheduleFile{
		path:   path,
		logger: logger.With().Str("component", "schedfile").Logger(),
	}
}

func (f *ScheduleFile) Path() string { return f.path }

// Read loads the schedule leniently: a missing or corrupt file is
// treated as empty so planning can still run.
func (f *ScheduleFile) Read() []Entry {
	entries, err := f.ReadStrict()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn().Err(err).Str("path", f.path).Msg("schedule unreadable, treating as empty")
		}
		return nil
	}
	return entries
}

// ReadStrict loads the schedule and fails on anything unreadable. Apply
// uses this; planning uses Read.
func (f *ScheduleFile) ReadStrict() ([]Entry, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return entries, nil
}

// Backup copies the current file to schedule.json.bak-<UTC timestamp>.
// A missing source is not an error; there is nothing to protect yet.
func (f *ScheduleFile) Backup(now time.Time) (string, error) {
	src, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer src.Close()

	bakPath := fmt.Sprintf("%s.bak-%s", f.path, now.UTC().Format("20060102T150405Z"))
	dst, err := os.OpenFile(bakPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(bakPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	f.logger.Info().Str("backup", bakPath).Msg("schedule backed up")
	return bakPath, nil
}

// Encode renders entries the way the host expects: pretty JSON, slashes
// unescaped, trailing newline.
func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteAtomic encodes and writes entries through an exclusively created
// temp file, preserving the prior file mode, then renames into place.
// On rename failure the temp file is unlinked.
func (f *ScheduleFile) WriteAtomic(entries []Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	mode := os.FileMode(0o644)
	if st, err := os.Stat(f.path); err == nil {
		mode = st.Mode().Perm()
	}

	tmp := fmt.Sprintf("%s.tmp-%d", f.path, os.Getpid())
	// O_EXCL is the write lock: a second writer racing on the same pid
	// namespace fails here instead of interleaving.
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tf.Write(data); err != nil {
		tf.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tf.Chmod(mode); err != nil {
		tf.Close()
		os.Remove(tmp)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Verify re-reads the file and checks that every expected managed id is
// present and every deleted id is gone. A mismatch is fatal for the
// caller; the backup is the recovery path.
func (f *ScheduleFile) Verify(expect, absent []string) error {
	entries, err := f.ReadStrict()
	if err != nil {
		return fmt.Errorf("verify re-read: %w", err)
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if id := e.ManifestID(); id != "" {
			present[id] = true
		}
	}
	for _, id := range expect {
		if !present[id] {
			return fmt.Errorf("verify: expected id %s missing after write", id)
		}
	}
	for _, id := range absent {
		if present[id] {
			return fmt.Errorf("verify: deleted id %s still present after write", id)
		}
	}
	return nil
}
