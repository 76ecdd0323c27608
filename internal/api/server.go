// Package api provides the docdiff REST API server.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/internal/cache"
	"github.com/FocuswithJustin/docdiff/internal/logging"
	"github.com/FocuswithJustin/docdiff/internal/server"
	"github.com/FocuswithJustin/docdiff/internal/session"
)

// Version is reported by the root and health endpoints.
var Version = "dev"

// multipartMemory is the part of a multipart body held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// Server serves the REST API.
type Server struct {
	cfg     Config
	store   *session.Store
	docs    *cache.TTLCache[*docx.Document]
	hub     *Hub
	limiter *RateLimiter
	handler http.Handler
	started time.Time
}

// New validates cfg and builds the server. The store holds sessions and
// stays owned by the caller.
func New(cfg Config, store *session.Store) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return nil, fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return nil, fmt.Errorf("TLS key file not found: %w", err)
		}
	}

	cfg = cfg.withDefaults()
	s := &Server{
		cfg:     cfg,
		store:   store,
		docs:    cache.New[*docx.Document](cfg.CacheTTL, cfg.CacheEntries),
		hub:     NewHub(),
		started: time.Now(),
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}
	s.handler = s.buildHandler()
	return s, nil
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases background resources. It does not close the store.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	protocol, wsProtocol := "http", "ws"
	if s.cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
		logging.Info("TLS enabled", "cert_file", s.cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	logging.ServerStartup("rest_api", protocol, s.cfg.Port,
		"websocket_protocol", wsProtocol,
		"max_upload_bytes", s.cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if s.cfg.TLS.Enabled {
			errc <- srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
			return
		}
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logging.Info("shutting down", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildHandler wraps the routes in the middleware chain. Logging is
// outermost so every response, including rejections, is recorded.
func (s *Server) buildHandler() http.Handler {
	var handler http.Handler = s.routes()

	// Four documents per comparison plus multipart framing.
	handler = server.MaxBodyMiddleware(4*s.cfg.MaxUploadBytes+(1<<20), handler)
	handler = server.SecurityHeadersWithCSP(server.APICSPConfig(), handler)

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", true,
			"note", "API key required")
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.cfg.RateLimitBurst)
	}

	handler = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}

	handler = server.TimingMiddleware(handler)
	return logging.CombinedMiddleware(handler)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("POST /compare", s.handleCompare)
	mux.HandleFunc("POST /report", s.handleReport)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleImportSession)
	mux.HandleFunc("GET /sessions/{key}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{key}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{key}/export", s.handleExportSession)
	mux.HandleFunc("GET /sessions/{key}/report", s.handleSessionReport)
	mux.Handle("GET /ws", WebSocketHandler(s.hub, s.cfg.WebSocket))
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}
