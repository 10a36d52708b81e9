package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/omriShneor/leave_extractor/internal/leave"
	"github.com/sirupsen/logrus"
)

// Extractor turns a leave message into structured events.
type Extractor interface {
	Extract(ctx context.Context, text string) (*leave.Extraction, error)
	ExtractAt(ctx context.Context, text, today string) (*leave.Extraction, error)
}

// Pinger reports whether the model collaborator is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	extractor Extractor
	model     Pinger
	httpSrv   *http.Server
	port      int
}

// ServerConfig holds configuration for server creation
type ServerConfig struct {
	Extractor Extractor
	Model     Pinger // optional; /health reports "unknown" without it
	Port      int
	// ModelTimeout is the upper bound of one model call; the write timeout is
	// sized to outlast it. Zero means unbounded.
	ModelTimeout time.Duration
}

func New(cfg ServerConfig) *Server {
	s := &Server{
		extractor: cfg.Extractor,
		model:     cfg.Model,
		port:      cfg.Port,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	writeTimeout := time.Duration(0)
	if cfg.ModelTimeout > 0 {
		writeTimeout = cfg.ModelTimeout + 15*time.Second
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      requestIDMiddleware(loggingMiddleware(s.corsMiddleware(mux))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	// Leave extraction
	mux.HandleFunc("POST /leave/{$}", s.handleParseLeave)
	mux.HandleFunc("POST /leave", s.handleParseLeave)
}

func (s *Server) Start() error {
	logrus.Infof("Starting HTTP server on http://localhost:%d", s.port)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// corsMiddleware adds CORS headers so browser clients can post messages
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
