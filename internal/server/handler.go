// Package server exposes the read-only query surface and the command
// surface (trigger a run, record an application transition) over HTTP.
// It is a thin caller of the core contracts; dashboards and CLIs sit
// on top of these routes.
//
// Routes:
//
//	GET  /jobs                         list jobs (source, keyword, days filters)
//	GET  /jobs/{key}                   one job by identity key
//	GET  /applications                 list applications
//	POST /applications/{key}/move      transition to a new status
//	POST /applications/{key}/note      append a note
//	POST /applications/{key}/reopen    reopen a rejected/withdrawn application
//	POST /runs                         trigger an ingestion run
//	GET  /runs                         list run records
//	GET  /runs/{id}                    one run record
//	GET  /runs/{id}/new-jobs           jobs first seen during the run
//	GET  /analytics/funnel             application funnel
//	GET  /analytics/companies          top companies
//	GET  /analytics/keywords           keyword yield
//	GET  /analytics/sources            jobs by source
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobhunt/internal/analytics"
	"jobhunt/internal/model"
	"jobhunt/internal/scheduler"
	"jobhunt/internal/store"
	"jobhunt/internal/tracker"
)

// Handler holds shared dependencies.
type Handler struct {
	store     store.Store
	runner    *scheduler.Runner
	tracker   *tracker.Service
	analytics *analytics.Aggregator
}

// NewHandler returns a configured Handler.
func NewHandler(st store.Store, runner *scheduler.Runner, trk *tracker.Service, agg *analytics.Aggregator) *Handler {
	return &Handler{store: st, runner: runner, tracker: trk, analytics: agg}
}

// RegisterRoutes mounts all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/jobs", h.handleJobs)
	mux.HandleFunc("/jobs/", h.handleJob)
	mux.HandleFunc("/applications", h.handleApplications)
	mux.HandleFunc("/applications/", h.handleApplicationAction)
	mux.HandleFunc("/runs", h.handleRuns)
	mux.HandleFunc("/runs/", h.handleRun)
	mux.HandleFunc("/analytics/", h.handleAnalytics)
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f := store.JobFilter{Keyword: r.URL.Query().Get("keyword")}
	if s := r.URL.Query().Get("source"); s != "" {
		src, err := model.ParseSource(s)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Source = src
	}
	if d := r.URL.Query().Get("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days < 1 {
			jsonError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		f.FirstSeenSince = time.Now().AddDate(0, 0, -days)
	}

	jobs, err := h.store.ListJobs(r.Context(), f)
	if err != nil {
		log.Printf("[server] listJobs error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, jobs)
}

func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/jobs/")
	job, err := h.store.GetJob(r.Context(), key)
	if errors.Is(err, store.ErrUnknownJob) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[server] getJob error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, job)
}

func (h *Handler) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	apps, err := h.tracker.List(r.Context())
	if err != nil {
		log.Printf("[server] listApplications error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, apps)
}

// handleApplicationAction handles POST /applications/{key}/move|note|reopen
func (h *Handler) handleApplicationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	key := parts[1]
	action := parts[2]

	switch action {
	case "move":
		h.moveApplication(w, r, key)
	case "note":
		h.noteApplication(w, r, key)
	case "reopen":
		h.reopenApplication(w, r, key)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

func (h *Handler) moveApplication(w http.ResponseWriter, r *http.Request, key string) {
	var body struct {
		NewStatus string `json:"newStatus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewStatus == "" {
		jsonError(w, "body must contain newStatus", http.StatusBadRequest)
		return
	}
	status, err := model.ParseStatus(body.NewStatus)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	app, err := h.tracker.Transition(r.Context(), key, status)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	jsonOK(w, app)
}

func (h *Handler) noteApplication(w http.ResponseWriter, r *http.Request, key string) {
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Note == "" {
		jsonError(w, "body must contain note", http.StatusBadRequest)
		return
	}

	app, err := h.tracker.AddNote(r.Context(), key, body.Note)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	jsonOK(w, app)
}

func (h *Handler) reopenApplication(w http.ResponseWriter, r *http.Request, key string) {
	app, err := h.tracker.Reopen(r.Context(), key)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	jsonOK(w, app)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		// A run can take minutes; trigger it in the background and
		// let the caller poll GET /runs.
		go func() {
			if _, err := h.runner.Run(context.Background()); err != nil {
				log.Printf("[server] triggered run failed: %v", err)
			}
		}()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "run started"})
	case http.MethodGet:
		runs, err := h.store.ListRuns(r.Context(), 50)
		if err != nil {
			log.Printf("[server] listRuns error: %v", err)
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
		jsonOK(w, runs)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRun handles GET /runs/{id} and GET /runs/{id}/new-jobs
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 && !(len(parts) == 3 && parts[2] == "new-jobs") {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}

	run, err := h.store.GetRun(r.Context(), parts[1])
	if errors.Is(err, store.ErrUnknownRun) {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[server] getRun error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	if len(parts) == 2 {
		jsonOK(w, run)
		return
	}

	jobs, err := h.store.NewJobsForRun(r.Context(), *run)
	if err != nil {
		log.Printf("[server] newJobsForRun error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, jobs)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	includeStale := r.URL.Query().Get("includeStale") != "false"

	var (
		result any
		err    error
	)
	switch strings.TrimPrefix(r.URL.Path, "/analytics/") {
	case "funnel":
		result, err = h.analytics.Funnel(r.Context())
	case "companies":
		n := 10
		if q := r.URL.Query().Get("n"); q != "" {
			if v, convErr := strconv.Atoi(q); convErr == nil && v > 0 {
				n = v
			}
		}
		result, err = h.analytics.TopCompanies(r.Context(), n, includeStale)
	case "keywords":
		var window time.Duration
		if q := r.URL.Query().Get("days"); q != "" {
			if v, convErr := strconv.Atoi(q); convErr == nil && v > 0 {
				window = time.Duration(v) * 24 * time.Hour
			}
		}
		result, err = h.analytics.KeywordYield(r.Context(), window, includeStale)
	case "sources":
		result, err = h.analytics.JobsBySource(r.Context(), includeStale)
	default:
		jsonError(w, "unknown analytics query", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[server] analytics error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, result)
}

func writeTrackerError(w http.ResponseWriter, err error) {
	var te *tracker.TransitionError
	switch {
	case errors.Is(err, store.ErrUnknownJob):
		jsonError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, store.ErrNoApplication):
		jsonError(w, "application not found", http.StatusNotFound)
	case errors.As(err, &te):
		jsonError(w, te.Error(), http.StatusBadRequest)
	default:
		log.Printf("[server] tracker error: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
