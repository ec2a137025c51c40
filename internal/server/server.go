// Package server is the HTTP boundary around the attempt loop: it
// validates requests, runs tasks synchronously, records completed runs and
// renders reports.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/throw-if-null/rexec/internal/api"
	"github.com/throw-if-null/rexec/internal/loop"
	"github.com/throw-if-null/rexec/internal/store"
)

// Store is the run-history seam; *store.Store satisfies it.
type Store interface {
	InsertRun(r *api.Run) error
	GetRun(runID string) (*api.Run, error)
	ListRuns(limit int) ([]*api.Run, error)
}

type Server struct {
	loop            *loop.Loop
	store           Store
	defaultAttempts int
	attemptCap      int
	genConfigured   bool
}

func NewServer(l *loop.Loop, st Store, defaultAttempts, attemptCap int, genConfigured bool) *Server {
	if defaultAttempts <= 0 {
		defaultAttempts = loop.DefaultMaxAttempts
	}
	if attemptCap <= 0 || attemptCap > loop.AttemptCap {
		attemptCap = loop.AttemptCap
	}
	return &Server{
		loop:            l,
		store:           st,
		defaultAttempts: defaultAttempts,
		attemptCap:      attemptCap,
		genConfigured:   genConfigured,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{run_id}", s.handleGetRun)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	max := req.MaxAttempts
	if max == 0 {
		max = s.defaultAttempts
	}
	if max < 1 || max > s.attemptCap {
		http.Error(w, fmt.Sprintf("max_attempts must be between 1 and %d", s.attemptCap), http.StatusBadRequest)
		return
	}

	t := loop.Task{Description: req.Prompt, MaxAttempts: max}
	// Malformed input is rejected here, before any generation call.
	if err := t.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := s.loop.Run(r.Context(), t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runID := ulid.Make().String()
	run := &api.Run{
		RunID:         runID,
		Prompt:        req.Prompt,
		Success:       rep.Success,
		Code:          rep.Code,
		Output:        rep.Output,
		Error:         rep.Error,
		Attempts:      rep.Attempts,
		ExecutionTime: rep.Elapsed,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.InsertRun(run); err != nil {
		// History is best-effort; the report still goes back to the caller.
		log.Printf("record run %s: %v", runID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Rexec-Run-Id", runID)
	_ = json.NewEncoder(w).Encode(api.ExecuteResponse{
		Success:       rep.Success,
		Code:          rep.Code,
		Output:        rep.Output,
		Error:         rep.Error,
		Attempts:      rep.Attempts,
		ExecutionTime: rep.Elapsed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.HealthResponse{
		Status:              "healthy",
		GeneratorConfigured: s.genConfigured,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*api.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		http.Error(w, "missing run_id", http.StatusBadRequest)
		return
	}

	run, err := s.store.GetRun(runID)
	if isNotFound(err) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to read run", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(run)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
