// Package router exposes the plan/apply pipeline over a small JSON API
// for the plugin UI.
package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/export"
	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/internal/scheduler"
)

type API struct {
	svc      *scheduler.Service
	exporter *export.Exporter
	file     *fpp.ScheduleFile
	logger   zerolog.Logger
}

func New(svc *scheduler.Service, exporter *export.Exporter, file *fpp.ScheduleFile, logger zerolog.Logger) http.Handler {
	a := &API{
		svc:      svc,
		exporter: exporter,
		file:     file,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/plan/status", a.handlePlanStatus)
	mux.HandleFunc("/api/plan/diff", a.handlePlanDiff)
	mux.HandleFunc("/api/apply", a.handleApply)
	mux.HandleFunc("/api/rollback", a.handleRollback)
	mux.HandleFunc("/api/export.ics", a.handleExport)

	return a.withLogging(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handlePlanStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res := a.svc.Plan(req.Context())
	if !res.OK {
		a.writePlanError(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"counts":   res.Diff.Counts(),
		"warnings": res.Warnings,
	})
}

func (a *API) handlePlanDiff(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res := a.svc.Plan(req.Context())
	if !res.OK {
		a.writePlanError(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"diff": map[string]any{
			"creates":        res.Diff.Creates,
			"updates":        res.Diff.Updates,
			"deletes":        res.Diff.Deletes,
			"desiredEntries": res.Desired,
			"existingRaw":    res.Existing,
		},
		"warnings": res.Warnings,
	})
}

func (a *API) handleApply(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res := a.svc.Apply(req.Context())
	if res.Err != nil {
		status := http.StatusInternalServerError
		var le *scheduler.LimitError
		if errors.As(res.Err, &le) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]any{
			"ok":       false,
			"error":    res.Err.Error(),
			"warnings": res.Warnings,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"dryRun":   res.DryRun,
		"counts":   res.Counts,
		"backup":   res.Backup,
		"warnings": res.Warnings,
	})
}

func (a *API) handleRollback(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res := a.svc.Rollback()
	if res.Err != nil {
		status := http.StatusInternalServerError
		if errors.Is(res.Err, manifest.ErrNoPrevious) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"ok": false, "error": res.Err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "backup": res.Backup})
}

func (a *API) handleExport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := a.exporter.Export(a.file.Read(), time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) writePlanError(w http.ResponseWriter, res scheduler.PlanResult) {
	body := map[string]any{"ok": false, "warnings": res.Warnings}
	status := http.StatusInternalServerError
	if res.Err != nil {
		status = http.StatusUnprocessableEntity
		body["error"] = map[string]any{
			"type":      res.Err.ErrorType(),
			"limit":     res.Err.Limit,
			"attempted": res.Err.Attempted,
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
