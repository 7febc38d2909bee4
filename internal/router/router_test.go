package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbiet76/fpp-calendar-sync/internal/config"
	"github.com/robbiet76/fpp-calendar-sync/internal/export"
	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/internal/scheduler"
	"github.com/robbiet76/fpp-calendar-sync/internal/suntime"
	"github.com/robbiet76/fpp-calendar-sync/internal/target"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

type apiFixture struct {
	handler http.Handler
	file    *fpp.ScheduleFile
}

// upcomingFeed builds a feed whose series starts tomorrow, so it is
// always inside the planning horizon.
func upcomingFeed() string {
	start := time.Now().UTC().AddDate(0, 0, 1)
	start = time.Date(start.Year(), start.Month(), start.Day(), 18, 0, 0, 0, time.UTC)
	until := start.AddDate(0, 0, 9)

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:evt-1",
		"SUMMARY:MainShow",
		"DTSTART:" + start.Format("20060102T150405Z"),
		"DTEND:" + start.Add(4*time.Hour).Format("20060102T150405Z"),
		"RRULE:FREQ=DAILY;UNTIL=" + until.Format("20060102T150405Z"),
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func newAPIFixture(t *testing.T, dryRun bool) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	media := filepath.Join(dir, "media")
	require.NoError(t, os.MkdirAll(filepath.Join(media, "playlists"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(media, "playlists", "MainShow.json"), []byte("{}"), 0o644))

	feed := upcomingFeed()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, feed)
	}))
	t.Cleanup(srv.Close)

	configPath := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{"version":1,"calendar":{"ics_url":%q},"runtime":{"dry_run":%v}}`, srv.URL, dryRun)
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))
	manager, err := config.NewManager(configPath, zerolog.Nop())
	require.NoError(t, err)

	file := fpp.NewScheduleFile(filepath.Join(dir, "schedule.json"), zerolog.Nop())
	store := manifest.NewStore(filepath.Join(dir, "manifest.json"), zerolog.Nop())
	holidays := holiday.NewResolver(time.UTC)

	svc := scheduler.NewService(manager, file, store,
		ical.NewFetcher(zerolog.Nop()),
		target.NewResolver(media),
		holidays, time.UTC, zerolog.Nop())
	exporter := export.NewExporter(time.UTC, suntime.New(40, -75), holidays, zerolog.Nop())

	return &apiFixture{
		handler: New(svc, exporter, file, zerolog.Nop()),
		file:    file,
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t, true)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPlanStatus(t *testing.T) {
	fx := newAPIFixture(t, true)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plan/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	counts := body["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["creates"])
}

func TestPlanStatusRejectsPost(t *testing.T) {
	fx := newAPIFixture(t, true)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/plan/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPlanDiffShape(t *testing.T) {
	fx := newAPIFixture(t, true)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plan/diff", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	diff := body["diff"].(map[string]any)
	assert.Len(t, diff["creates"], 1)
	assert.Contains(t, diff, "desiredEntries")
	assert.Contains(t, diff, "existingRaw")
}

func TestApplyDryRun(t *testing.T) {
	fx := newAPIFixture(t, true)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/apply", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["dryRun"])
	assert.Empty(t, fx.file.Read())
}

func TestApplyWrites(t *testing.T) {
	fx := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/apply", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["dryRun"])
	require.Len(t, fx.file.Read(), 1)
	assert.Equal(t, "MainShow", fx.file.Read()[0].Str("playlist"))
}

func TestRollbackWithoutHistory(t *testing.T) {
	fx := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rollback", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExportICS(t *testing.T) {
	fx := newAPIFixture(t, true)

	hand := `[{"enabled":1,"playlist":"HandShow","day":7,"startTime":"18:00:00","endTime":"20:00:00","startDate":"2026-12-01","endDate":"2026-12-01"}]`
	require.NoError(t, os.WriteFile(fx.file.Path(), []byte(hand), 0o644))

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export.ics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "SUMMARY:HandShow")
}
