// Package config holds process-wide configuration, bound from environment
// variables by the cmd/serve and cmd/migrate CLI commands, and threaded
// through request handling via context.Context.
package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the memory service.
type Config struct {
	// Database
	DatabaseURL string

	// Datastore migrations run automatically at startup unless disabled.
	MigrateAtStart bool

	// Embedding endpoint.
	EmbeddingURL    string
	EmbeddingModel  string
	EmbeddingAPIKey string
	EmbeddingDims   int

	// Namespace scopes every memory and, when non-empty, switches client-facing
	// IDs to the per-namespace content_id sequence.
	Namespace string

	// EncryptionKey, when non-empty, enables per-record AES-256-GCM encryption
	// with an Argon2id-derived key.
	EncryptionKey string

	// BearerToken is the static API key accepted on the MCP surface.
	BearerToken string

	// APIBearerToken gates the admin re-embedding endpoint. Unset disables
	// (404s) the endpoint entirely.
	APIBearerToken string

	// OAuth
	OAuthBundled            bool
	OAuthClientID           string
	OAuthClientSecret       string
	OAuthUsername           string
	OAuthPassword           string
	OAuthRedirectURIs       []string
	OAuthAccessExpiry       time.Duration
	OAuthRefreshExpiry      time.Duration
	OAuthAuthCodeExpiry     time.Duration
	ServerURL               string

	// Timezone controls the current_time/timezone fields appended to tool
	// responses. Empty means UTC; "false" disables the fields entirely.
	Timezone string

	// PerformanceMetrics appends a performance timing field to every tool response.
	PerformanceMetrics bool

	// Port is the HTTP listen port for both the MCP and admin surfaces.
	Port int

	// TLSEnabled serves the listener over TLS. When the certificate files are
	// unset, a self-signed localhost certificate is generated at startup.
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	// CORSOrigins is a comma-separated allow-list of origins for the MCP and
	// OAuth surfaces; "*" allows any origin.
	CORSOrigins string
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// reference server's environment defaults.
func DefaultConfig() Config {
	return Config{
		MigrateAtStart:      true,
		Namespace:           "default",
		EmbeddingModel:      "text-embedding-3-small",
		OAuthAccessExpiry:   time.Hour,
		OAuthRefreshExpiry:  7 * 24 * time.Hour,
		OAuthAuthCodeExpiry: 5 * time.Minute,
		Timezone:            "UTC",
		Port:                8080,
		CORSOrigins:         "*",
	}
}
