// Package server exposes the compliance analysis engine over HTTP.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/clearline-sec/cjisaudit/internal/audit"
	"github.com/clearline-sec/cjisaudit/internal/auth"
	"github.com/clearline-sec/cjisaudit/internal/catalog"
	"github.com/clearline-sec/cjisaudit/internal/config"
	"github.com/clearline-sec/cjisaudit/internal/console"
	"github.com/clearline-sec/cjisaudit/internal/evaluate"
)

// Server wraps the HTTP components for cjisaudit.
type Server struct {
	mux      *http.ServeMux
	cfg      *config.Config
	auth     *auth.Auth
	catalog  *catalog.Catalog
	eval     *evaluate.Evaluator
	audit    *audit.Emitter
	metrics  *metrics
	inflight chan struct{}
}

// New creates a server with all routes registered. The catalog is
// loaded once at startup and never mutated, so handlers read it
// without locks.
func New(cfg *config.Config, cat *catalog.Catalog, authz *auth.Auth, emitter *audit.Emitter) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		auth:     authz,
		catalog:  cat,
		eval:     evaluate.New(),
		audit:    emitter,
		inflight: make(chan struct{}, cfg.Server.MaxInFlightRequests),
	}

	if cfg.Metrics.Enabled {
		s.metrics = newMetrics()
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/catalog", s.handleCatalog)
	s.mux.HandleFunc("/api/analyze", s.limitInFlight(s.handleAnalyze))

	s.mux.Handle("/console/", console.Handler())
	s.mux.Handle("/console", http.RedirectHandler("/console/", http.StatusMovedPermanently))

	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.handler())
	}

	return s
}

// Start runs the HTTP server on the configured address.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}
	log.Printf("cjisaudit listening on %s (catalog %s, %d requirements)",
		s.cfg.Server.Addr, s.catalog.Version, s.catalog.RequirementCount())
	return srv.ListenAndServe()
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":          "ok",
		"catalog_version": s.catalog.Version,
	})
}

type catalogSectionInfo struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Title        string `json:"title"`
	Requirements int    `json:"requirements"`
}

type catalogInfo struct {
	Version  string               `json:"version"`
	Sections []catalogSectionInfo `json:"sections"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request")
		return
	}

	info := catalogInfo{
		Version:  s.catalog.Version,
		Sections: make([]catalogSectionInfo, 0, len(s.catalog.Sections)),
	}
	for _, sec := range s.catalog.Sections {
		info.Sections = append(info.Sections, catalogSectionInfo{
			ID:           sec.ID,
			Key:          sec.Key,
			Title:        sec.Title,
			Requirements: len(sec.Requirements),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.Printf("failed to write catalog response: %v", err)
	}
}

// limitInFlight bounds concurrent analyses. Each request evaluates the
// catalog independently, so the limit only protects memory, not shared
// state.
func (s *Server) limitInFlight(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.inflight <- struct{}{}:
			defer func() { <-s.inflight }()
			next(w, r)
		default:
			writeAPIError(w, http.StatusTooManyRequests, "too many concurrent analyses, retry shortly", "rate_limited")
		}
	}
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeAPIError writes a JSON error body in a stable shape.
func writeAPIError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErrorBody{
		Error: apiErrorDetail{
			Message: message,
			Type:    typ,
		},
	})
}

// parseBearerToken extracts the token from an Authorization: Bearer header.
func parseBearerToken(h string) (string, bool) {
	if h == "" {
		return "", false
	}
	parts := strings.Fields(h)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
