// Package obshttp provides the ambient observability HTTP surface:
// /health and /metrics only, no business routes (those live behind a
// separate transport layer). A mux.Router with graceful
// Start/Shutdown, zerolog request logging, and promhttp's metrics
// handler.
package obshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds server bind settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns sane local-only defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the ambient health/metrics HTTP surface.
type Server struct {
	router    *mux.Router
	server    *http.Server
	config    Config
	log       zerolog.Logger
	startTime time.Time
	version   string
}

// NewServer constructs a Server with /health and /metrics wired.
func NewServer(config Config, log zerolog.Logger, version string) *Server {
	router := mux.NewRouter()
	s := &Server{
		router:    router,
		config:    config,
		log:       log,
		startTime: time.Now(),
		version:   version,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWrapper{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWrapper struct {
	http.ResponseWriter
	status int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// healthResponse is the /health JSON body.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string `json:"version"`
	Goroutines    int    `json:"goroutines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Version:       s.version,
		Goroutines:    runtime.NumGoroutine(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Start runs the server, blocking until it stops or errors.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting observability server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down observability server")
	return s.server.Shutdown(ctx)
}
