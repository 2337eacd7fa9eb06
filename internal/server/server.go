// Package server exposes benchmark jobs and cached summed-area engines
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/cwbudde/pixelsum/internal/config"
	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/opt"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
	"github.com/cwbudde/pixelsum/internal/search"
	"github.com/cwbudde/pixelsum/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	buffers    *Buffers
	store      store.Store
	addr       string
	server     *http.Server

	// jobs run under ctx; Shutdown cancels it
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server. st may be nil, in which case
// reports live only as long as their job. cacheSize bounds the number of
// built engines kept for buffer queries.
func NewServer(addr string, st store.Store, cacheSize int) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		buffers:    NewBuffers(cacheSize, kernel.Active()),
		store:      st,
		addr:       addr,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/reports", s.handleListReports)
	mux.HandleFunc("/api/v1/reports/", s.handleGetReport)
	mux.HandleFunc("/api/v1/buffers", s.handleCreateBuffer)
	mux.HandleFunc("/api/v1/buffers/", s.handleBuffersWithID)
	mux.HandleFunc("/api/v1/kernel", s.handleKernel)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		s.handleCancelJob(w, r, jobID)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	case parts[1] == "report":
		s.handleGetJobReport(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs. The body is a benchmark
// configuration in JSON.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Decode(r.Body, "json")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(cfg)

	ctx, cancel := context.WithCancel(s.ctx)
	s.jobManager.setCancel(job.ID, cancel)
	go runJob(ctx, s.jobManager, s.store, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	event := eventFor(job)
	response := map[string]interface{}{
		"id":              job.ID,
		"state":           job.State,
		"config":          job.Config,
		"case":            job.Case,
		"cases":           job.Cases,
		"caseName":        job.CaseName,
		"query":           job.Query,
		"queries":         job.Queries,
		"checks":          job.Checks,
		"failed":          job.Failed,
		"elapsed":         job.Elapsed().Seconds(),
		"checksPerSecond": event.Rate,
		"startTime":       job.StartTime,
		"endTime":         job.EndTime,
		"error":           job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.Cancel(jobID) {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGetJobReport handles GET /api/v1/jobs/:id/report
func (s *Server) handleGetJobReport(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if job.report == nil {
		msg := "Job not finished"
		if job.State.Done() {
			msg = fmt.Sprintf("Job %s has no report", job.State)
		}
		http.Error(w, msg, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, job.report)
}

// handleListReports handles GET /api/v1/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.ReportInfo{})
		return
	}
	infos, err := s.store.ListReports()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetReport handles GET /api/v1/reports/:id
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	if id == "" || s.store == nil {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}

	report, err := s.store.LoadReport(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// bufferInfo describes a cached engine.
type bufferInfo struct {
	ID      string `json:"id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Backend string `json:"backend"`
	Cached  bool   `json:"cached"`
}

// handleCreateBuffer handles POST /api/v1/buffers
func (s *Server) handleCreateBuffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pix, width, height, err := readBuffer(r)
	if errors.Is(err, errTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, e, created, err := s.buffers.Add(pix, width, height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, bufferInfo{ID: id, Width: e.Width(), Height: e.Height(), Backend: e.Backend().String(), Cached: !created})
}

// handleBuffersWithID handles /api/v1/buffers/:id/*
func (s *Server) handleBuffersWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/buffers/"), "/")
	e, ok := s.buffers.Get(parts[0])
	if !ok {
		http.Error(w, "Buffer not found", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		writeJSON(w, http.StatusOK, bufferInfo{ID: parts[0], Width: e.Width(), Height: e.Height(), Backend: e.Backend().String(), Cached: true})
	case parts[1] == "region":
		s.handleRegion(w, r, e)
	case parts[1] == "locate":
		s.handleLocate(w, r, e)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// regionResult is the answer to a region query.
type regionResult struct {
	X0             int     `json:"x0"`
	Y0             int     `json:"y0"`
	X1             int     `json:"x1"`
	Y1             int     `json:"y1"`
	Sum            uint32  `json:"sum"`
	Average        float64 `json:"average"`
	NonZeroCount   int     `json:"nonZeroCount"`
	NonZeroAverage float64 `json:"nonZeroAverage"`
}

// handleRegion handles GET /api/v1/buffers/:id/region?x0=&y0=&x1=&y1=
func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request, e pixelsum.Querier) {
	c, err := requireInts(r, "x0", "y0", "x1", "y1")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, regionResult{
		X0:             c[0],
		Y0:             c[1],
		X1:             c[2],
		Y1:             c[3],
		Sum:            e.PixelSum(c[0], c[1], c[2], c[3]),
		Average:        e.PixelAverage(c[0], c[1], c[2], c[3]),
		NonZeroCount:   e.NonZeroCount(c[0], c[1], c[2], c[3]),
		NonZeroAverage: e.NonZeroAverage(c[0], c[1], c[2], c[3]),
	})
}

// handleLocate handles GET /api/v1/buffers/:id/locate?w=&h=&objective=
// with optional iters, seed and exhaustive=true.
func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request, e pixelsum.Querier) {
	size, err := requireInts(r, "w", "h")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	objective, err := search.ParseObjective(r.URL.Query().Get("objective"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	iters, err := intParam(r, "iters", 60)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seed, err := intParam(r, "seed", 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var win search.Window
	if r.URL.Query().Get("exhaustive") == "true" {
		win, err = search.Exhaustive(e, size[0], size[1], objective)
	} else {
		win, err = search.Locate(e, size[0], size[1], objective, opt.NewMayfly(iters, opt.MinPopulation, int64(seed)))
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// handleKernel handles GET /api/v1/kernel
func (s *Server) handleKernel(w http.ResponseWriter, r *http.Request) {
	active := kernel.Active().Backend
	available := make([]string, 0, 3)
	for _, b := range kernel.Backends() {
		available = append(available, b.String())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backend":   active.String(),
		"detected":  kernel.Detected().String(),
		"lanes":     kernel.Lanes(active),
		"available": available,
		"cpu":       cpuid.CPU.BrandName,
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
