// Package server exposes a Runtime over HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ordokr/LMS/internal/bridge"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Server routes HTTP requests to a Runtime.
type Server struct {
	rt     *bridge.Runtime
	logger *slog.Logger
	router chi.Router
}

// New builds the router. rt must be initialized before requests arrive;
// until then every route except /health answers 503.
func New(rt *bridge.Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{rt: rt, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", s.handleBatch)
		r.Get("/state", s.handleSnapshot)
		r.Get("/state/*", s.handleGetState)
		r.Get("/chain", s.handleChain)
		r.Post("/chain/verify", s.handleVerify)
		r.Post("/query", s.handleQuery)
		r.Post("/rules/parse", s.handleParseRules)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	e := s.rt.Engine()
	if e == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_initialized"})
		return
	}
	head := e.Head()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"seq":    e.Seq(),
		"head":   head.Hash,
		"keys":   e.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
