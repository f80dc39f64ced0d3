// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes run control, archive queries and report files
// over HTTP for the reading UI.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/pipeline"
	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/internal/similarity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// Network query defaults, matching what the UI asks for on first load.
const (
	defaultNetworkThreshold = 0.25
	defaultRelatedK         = 5
	maxBodyBytes            = 4 << 20
)

// Server holds the collaborators behind the HTTP API.
type Server struct {
	orch     *pipeline.Orchestrator
	store    *archive.Store
	sim      *similarity.Engine
	files    *report.Files
	settings types.Settings
}

// New creates a server. sim may be nil, in which case the similarity
// endpoints answer 503.
func New(orch *pipeline.Orchestrator, store *archive.Store, sim *similarity.Engine, files *report.Files, settings types.Settings) *Server {
	return &Server{orch: orch, store: store, sim: sim, files: files, settings: settings}
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/settings", s.handleSettings)

	mux.HandleFunc("POST /api/pipeline/run", s.handleRun)
	mux.HandleFunc("GET /api/pipeline/status", s.handleStatus)

	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{date}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{date}", s.handleDeleteRun)

	mux.HandleFunc("GET /api/network", s.handleNetwork)
	mux.HandleFunc("GET /api/papers/related", s.handleRelated)
	mux.HandleFunc("POST /api/papers/promote", s.handlePromote)

	mux.HandleFunc("GET /api/reports", s.handleReportDates)
	mux.HandleFunc("GET /api/reports/{date}", s.handleReportFiles)
	mux.HandleFunc("DELETE /api/reports/{date}", s.handleDeleteReportDate)
	mux.HandleFunc("GET /api/reports/{date}/{filename}", s.handleGetReport)
	mux.HandleFunc("PUT /api/reports/{date}/{filename}", s.handleSaveReport)
	mux.HandleFunc("DELETE /api/reports/{date}/{filename}", s.handleDeleteReport)

	return withLogging(withCORS(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings)
}

// --- run control ---

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.StartRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.orch.Start(r.Context(), req)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if res.Started {
		log.Printf("pipeline started for %s", res.Date)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

// --- runs ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = []types.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRun(r.Context(), r.PathValue("date"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	purge, _ := strconv.ParseBool(r.URL.Query().Get("purge_entries"))
	res, err := s.store.DeleteRun(r.Context(), r.PathValue("date"), purge)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": res})
}

// --- similarity ---

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	if s.sim == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("similarity engine not configured"))
		return
	}
	q := r.URL.Query()
	gq := similarity.GraphQuery{
		Threshold:      defaultNetworkThreshold,
		SummarizedOnly: true,
		Order:          archive.Order(q.Get("order")),
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if gq.Limit, err = strconv.Atoi(v); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
			return
		}
	}
	if v := q.Get("threshold"); v != "" {
		if gq.Threshold, err = strconv.ParseFloat(v, 64); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid threshold: %w", err))
			return
		}
		if err := similarity.ValidThreshold(gq.Threshold); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}
	if v := q.Get("summarized_only"); v != "" {
		if gq.SummarizedOnly, err = strconv.ParseBool(v); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid summarized_only: %w", err))
			return
		}
	}
	if gq.Order != "" && gq.Order != archive.OrderRecent && gq.Order != archive.OrderScore {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid order %q", gq.Order))
		return
	}

	g, err := s.sim.Graph(r.Context(), gq)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	if s.sim == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("similarity engine not configured"))
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeErr(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	k := defaultRelatedK
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid k %q", v))
			return
		}
		k = n
	}
	rel, err := s.sim.Related(r.Context(), id, k, nil)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if rel == nil {
		rel = []types.RelatedPaper{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "related": rel})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date    string `json:"date"`
		PaperID string `json:"paper_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Date == "" || req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, errors.New("date and paper_id are required"))
		return
	}
	res, err := s.orch.Promote(r.Context(), req.Date, req.PaperID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- report files ---

func (s *Server) handleReportDates(w http.ResponseWriter, _ *http.Request) {
	dates, err := s.files.ListDates()
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if dates == nil {
		dates = []report.DateSummary{}
	}
	writeJSON(w, http.StatusOK, dates)
}

func (s *Server) handleReportFiles(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	files, err := s.files.ListFiles(date)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "path": filepath.Join(s.files.Dir(), date), "files": files})
}

// handleDeleteReportDate removes every report of a date and clears the
// reports stored on the matching archive entries.
func (s *Server) handleDeleteReportDate(w http.ResponseWriter, r *http.Request) {
	ids, err := s.files.DeleteDate(r.PathValue("date"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	for _, id := range ids {
		if err := s.store.ClearReport(r.Context(), id); err != nil && !errors.Is(err, archive.ErrNotFound) {
			log.Printf("warning: clearing report of %s: %v", id, err)
		}
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paper_ids": ids})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	date, name := r.PathValue("date"), r.PathValue("filename")
	content, err := s.files.Read(date, name)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "filename": name, "content": string(content)})
}

func (s *Server) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	path, err := s.files.Save(r.PathValue("date"), r.PathValue("filename"), []byte(req.Content))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

// handleDeleteReport removes a report file and clears the report stored on
// its archive entry, so the paper leaves summarized-only views.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	paperID, err := s.files.Delete(r.PathValue("date"), r.PathValue("filename"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if paperID != "" {
		if err := s.store.ClearReport(r.Context(), paperID); err != nil && !errors.Is(err, archive.ErrNotFound) {
			log.Printf("warning: clearing report of %s: %v", paperID, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paper_id": paperID})
}

// --- helpers ---

// decodeBody decodes a JSON body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid json: %w", err)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, archive.ErrCardNotFound), errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, report.ErrInvalidFilename), errors.Is(err, similarity.ErrInvalidThreshold):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotNotable):
		return http.StatusConflict
	case errors.Is(err, similarity.ErrNoEmbedding):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	if code >= 500 {
		log.Printf("error: %v", err)
	}
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    errorCode(code),
			"message": err.Error(),
		},
	})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path != "/api/pipeline/status" {
			log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
		}
	})
}
