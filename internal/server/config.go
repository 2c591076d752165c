package server

import (
	"time"

	"github.com/safemelbourne/livemap/pkg/constants"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// Cache settings
	CacheTTL time.Duration

	// HTTP timeouts. WriteTimeout applies to plain requests only; the
	// streaming endpoints hold their connections open.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:         constants.DefaultHost,
		Port:         constants.DefaultPort,
		PathPrefix:   "/api/v1",
		CacheTTL:     constants.DefaultCacheTTL,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}
