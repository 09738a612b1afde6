// Package server exposes projects and gene-pair analyses over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/phylo"
	"github.com/bcrlab/bcrview/internal/pipeline"
	"github.com/bcrlab/bcrview/internal/registry"
)

// DefaultSpecies is used for projects registered without one.
const DefaultSpecies = "human"

var errBadRequest = errors.New("bad request")

// Server routes API requests to the registry and the orchestrator.
type Server struct {
	store  *registry.Store
	orch   *pipeline.Orchestrator
	mux    *http.ServeMux
	logger *zap.Logger
}

// New creates a server and registers its routes.
func New(store *registry.Store, orch *pipeline.Orchestrator) *Server {
	s := &Server{
		store:  store,
		orch:   orch,
		mux:    http.NewServeMux(),
		logger: zap.NewNop(),
	}
	s.routes()
	return s
}

// SetLogger sets the logger.
func (s *Server) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "text/plain; charset=utf-8", []byte("ok"))
	})

	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("GET /api/projects/{project_id}", s.handleGetProject)
	s.mux.HandleFunc("DELETE /api/projects/{project_id}", s.handleDeleteProject)

	const pair = "{project_id}/{hc_gene}/{lc_gene}"
	s.mux.HandleFunc("GET /analyze/gene_usage/{project_id}", s.handleGeneUsage)
	s.mux.HandleFunc("GET /analyze/lc_aggregation/{project_id}/{hc_gene}", s.handleLCAggregation)
	s.mux.HandleFunc("GET /analyze/hc_lc_alignment_data/"+pair, s.handleAlignment)
	s.mux.HandleFunc("DELETE /analyze/hc_lc_alignment_data/"+pair, s.handleInvalidate)
	s.mux.HandleFunc("GET /analyze/alignment_status/"+pair, s.handleStatus)
	s.mux.HandleFunc("GET /analyze/phylo_tree_newick/"+pair, s.handleTree)
	s.mux.HandleFunc("GET /analyze/distance_matrix/"+pair, s.handleDistanceMatrix)
	s.mux.HandleFunc("GET /analyze/alignment_fasta/"+pair, s.handleFASTA)
	s.mux.HandleFunc("GET /analyze/logo/"+pair, s.handleLogo)
	s.mux.HandleFunc("GET /analyze/table_xlsx/"+pair, s.handleXLSX)
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, pipeline.ErrInvalidGene),
		errors.Is(err, pipeline.ErrInvalidChain),
		errors.Is(err, phylo.ErrNotEnoughSequences):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeText(w, code, "application/json", data)
}

func writeText(w http.ResponseWriter, code int, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	w.Write(data)
}
