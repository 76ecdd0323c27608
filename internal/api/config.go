package api

import (
	"time"

	"github.com/FocuswithJustin/docdiff/internal/validation"
)

// Config holds server configuration.
type Config struct {
	Port              int
	MaxUploadBytes    int64         // Per-file upload limit (0 = validation.MaxUploadSize)
	CacheTTL          time.Duration // Lifetime of cached parse results
	CacheEntries      int           // Maximum cached parse results
	RateLimitRequests int           // Requests per minute (0 = disabled)
	RateLimitBurst    int           // Burst size
	Auth              AuthConfig    // Authentication configuration
	TLS               TLSConfig     // TLS configuration
	AllowedOrigins    []string      // CORS allowed origins (empty = allow all)
	WebSocket         WebSocketSecurityConfig
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		MaxUploadBytes: validation.MaxUploadSize,
		CacheTTL:       15 * time.Minute,
		CacheEntries:   64,
		RateLimitBurst: 10,
		WebSocket:      DefaultWebSocketSecurityConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheEntries <= 0 {
		c.CacheEntries = d.CacheEntries
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = d.RateLimitBurst
	}
	if c.WebSocket.MaxMessageRate <= 0 {
		c.WebSocket.MaxMessageRate = d.WebSocket.MaxMessageRate
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		c.WebSocket.MaxMessageSize = d.WebSocket.MaxMessageSize
	}
	if len(c.WebSocket.AllowedOrigins) == 0 {
		c.WebSocket.AllowedOrigins = c.AllowedOrigins
	}
	if len(c.WebSocket.AllowedOrigins) == 0 {
		c.WebSocket.AllowedOrigins = d.WebSocket.AllowedOrigins
	}
	c.WebSocket.AuthConfig = c.Auth
	c.WebSocket.RequireAuth = c.Auth.Enabled
	return c
}
