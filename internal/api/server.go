// Package api exposes a running session's profile and service worker
// controller over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"browserstealth/internal/profile"
	"browserstealth/internal/serviceworker"
	"browserstealth/pkg/logger"
)

// WorkerController is the part of *serviceworker.Controller the API drives.
type WorkerController interface {
	GetWorkers() []serviceworker.Worker
	Unregister(ctx context.Context, scope string) bool
	UnregisterAll(ctx context.Context) int
	StopAll(ctx context.Context)
	ShouldBlockDomain(domain string) bool
}

type Server struct {
	workers WorkerController
	profile profile.Resolved
	log     logger.Logger
	router  chi.Router
	started time.Time
}

type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type ScopeRequest struct {
	Scope string `json:"scope"`
}

type UnregisterResponse struct {
	Unregistered int `json:"unregistered"`
}

type PolicyResponse struct {
	Domain  string `json:"domain"`
	Blocked bool   `json:"blocked"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the API for one session. workers may be nil, in which case the
// worker routes answer 503.
func New(workers WorkerController, resolved profile.Resolved, log logger.Logger) *Server {
	s := &Server{
		workers: workers,
		profile: resolved,
		log:     log,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Post("/profiles/resolve", s.handleResolve)
	r.Get("/session/profile", s.handleSessionProfile)

	r.Route("/workers", func(r chi.Router) {
		r.Use(s.requireWorkers)
		r.Get("/", s.handleWorkers)
		r.Post("/unregister", s.handleUnregister)
		r.Post("/unregister-all", s.handleUnregisterAll)
		r.Post("/stop-all", s.handleStopAll)
		r.Get("/policy", s.handlePolicy)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var p profile.BrowserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid profile"})
		return
	}
	writeJSON(w, http.StatusOK, profile.Resolve(p))
}

func (s *Server) handleSessionProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.profile)
}

func (s *Server) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	workers := s.workers.GetWorkers()
	if workers == nil {
		workers = []serviceworker.Worker{}
	}
	writeJSON(w, http.StatusOK, workers)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req ScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Scope == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "scope is required"})
		return
	}
	if !s.workers.Unregister(r.Context(), req.Scope) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "unregister failed"})
		return
	}
	writeJSON(w, http.StatusOK, UnregisterResponse{Unregistered: 1})
}

func (s *Server) handleUnregisterAll(w http.ResponseWriter, r *http.Request) {
	n := s.workers.UnregisterAll(r.Context())
	writeJSON(w, http.StatusOK, UnregisterResponse{Unregistered: n})
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	s.workers.StopAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "domain is required"})
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{
		Domain:  domain,
		Blocked: s.workers.ShouldBlockDomain(domain),
	})
}

func (s *Server) requireWorkers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.workers == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no service worker controller"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
