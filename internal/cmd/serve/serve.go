package serve

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/chirino/memory-mcp/internal/config"
)

// expirySeconds carries the OAuth TTL flag values until the Action converts
// them into the durations config.Config wants.
type expirySeconds struct {
	access   int
	refresh  int
	authCode int
}

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	expiry := expirySeconds{
		access:   int(cfg.OAuthAccessExpiry.Seconds()),
		refresh:  int(cfg.OAuthRefreshExpiry.Seconds()),
		authCode: int(cfg.OAuthAuthCodeExpiry.Seconds()),
	}
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the memory MCP server",
		Flags: flags(&cfg, &expiry),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.OAuthRedirectURIs = cmd.StringSlice("oauth-redirect-uri")
			cfg.OAuthAccessExpiry = time.Duration(expiry.access) * time.Second
			cfg.OAuthRefreshExpiry = time.Duration(expiry.refresh) * time.Second
			cfg.OAuthAuthCodeExpiry = time.Duration(expiry.authCode) * time.Second
			return run(ctx, cfg)
		},
	}
}

func flags(cfg *config.Config, expiry *expirySeconds) []cli.Flag {
	return []cli.Flag{
		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_MCP_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP listen port",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_MCP_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Value:       cfg.CORSOrigins,
			Usage:       "Comma-separated CORS allow-list, or * for any origin",
		},
		&cli.BoolFlag{
			Name:        "tls-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_MCP_TLS_ENABLED"),
			Destination: &cfg.TLSEnabled,
			Usage:       "Serve over TLS; without cert/key files a self-signed localhost certificate is generated",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_MCP_TLS_CERT_FILE"),
			Destination: &cfg.TLSCertFile,
			Usage:       "PEM certificate file for the TLS listener",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_MCP_TLS_KEY_FILE"),
			Destination: &cfg.TLSKeyFile,
			Usage:       "PEM private key file for the TLS listener",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "database-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_MCP_DATABASE_URL"),
			Destination: &cfg.DatabaseURL,
			Usage:       "Postgres connection string",
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_MCP_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Run pending migrations automatically on startup",
		},

		// ── Embedding endpoint ────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_MCP_EMBEDDING_URL"),
			Destination: &cfg.EmbeddingURL,
			Usage:       "Base URL of an OpenAI-compatible embeddings endpoint",
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_MCP_EMBEDDING_MODEL"),
			Destination: &cfg.EmbeddingModel,
			Value:       cfg.EmbeddingModel,
			Usage:       "Embedding model identifier",
		},
		&cli.StringFlag{
			Name:        "embedding-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_MCP_EMBEDDING_API_KEY"),
			Destination: &cfg.EmbeddingAPIKey,
			Usage:       "Bearer key for the embedding endpoint",
		},
		&cli.IntFlag{
			Name:        "embedding-dims",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_MCP_EMBEDDING_DIMS"),
			Destination: &cfg.EmbeddingDims,
			Usage:       "Expected embedding dimensionality; 0 accepts whatever the endpoint returns",
		},

		// ── Memory model ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "namespace",
			Category:    "Memory:",
			Sources:     cli.EnvVars("MEMORY_MCP_NAMESPACE"),
			Destination: &cfg.Namespace,
			Value:       cfg.Namespace,
			Usage:       "Namespace scoping stored memories and client-facing IDs; empty is wildcard",
		},
		&cli.StringFlag{
			Name:        "encryption-key",
			Category:    "Memory:",
			Sources:     cli.EnvVars("MEMORY_MCP_ENCRYPTION_KEY"),
			Destination: &cfg.EncryptionKey,
			Usage:       "Passphrase enabling AES-256-GCM content encryption; empty disables it",
		},

		// ── Authentication ────────────────────────────────────────
		&cli.StringFlag{
			Name:        "bearer-token",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_BEARER_TOKEN"),
			Destination: &cfg.BearerToken,
			Usage:       "Static API key accepted on the MCP surface",
		},
		&cli.StringFlag{
			Name:        "api-bearer-token",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_API_BEARER_TOKEN"),
			Destination: &cfg.APIBearerToken,
			Usage:       "Bearer token gating the admin re-embedding endpoint; unset 404s the endpoint",
		},
		&cli.BoolFlag{
			Name:        "oauth-bundled",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_BUNDLED"),
			Destination: &cfg.OAuthBundled,
			Usage:       "Run a bundled OAuth 2.1 authorization server",
		},
		&cli.StringFlag{
			Name:        "oauth-client-id",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_CLIENT_ID"),
			Destination: &cfg.OAuthClientID,
			Usage:       "Pre-registered default OAuth client ID",
		},
		&cli.StringFlag{
			Name:        "oauth-client-secret",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_CLIENT_SECRET"),
			Destination: &cfg.OAuthClientSecret,
			Usage:       "Pre-registered default OAuth client secret",
		},
		&cli.StringFlag{
			Name:        "oauth-username",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_USERNAME"),
			Destination: &cfg.OAuthUsername,
			Usage:       "Username accepted by the bundled OAuth login form",
		},
		&cli.StringFlag{
			Name:        "oauth-password",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_PASSWORD"),
			Destination: &cfg.OAuthPassword,
			Usage:       "Password accepted by the bundled OAuth login form",
		},
		&cli.StringSliceFlag{
			Name:     "oauth-redirect-uri",
			Category: "Auth:",
			Sources:  cli.EnvVars("MEMORY_MCP_OAUTH_REDIRECT_URIS"),
			Usage:    "Allowed redirect URI for the default OAuth client; repeatable",
		},
		&cli.IntFlag{
			Name:        "oauth-access-expiry-seconds",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_ACCESS_EXPIRY_SECONDS"),
			Destination: &expiry.access,
			Value:       expiry.access,
			Usage:       "Access token lifetime in seconds",
		},
		&cli.IntFlag{
			Name:        "oauth-refresh-expiry-seconds",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_REFRESH_EXPIRY_SECONDS"),
			Destination: &expiry.refresh,
			Value:       expiry.refresh,
			Usage:       "Refresh token lifetime in seconds",
		},
		&cli.IntFlag{
			Name:        "oauth-auth-code-expiry-seconds",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_OAUTH_AUTH_CODE_EXPIRY_SECONDS"),
			Destination: &expiry.authCode,
			Value:       expiry.authCode,
			Usage:       "Authorization code lifetime in seconds",
		},
		&cli.StringFlag{
			Name:        "server-url",
			Category:    "Auth:",
			Sources:     cli.EnvVars("MEMORY_MCP_SERVER_URL"),
			Destination: &cfg.ServerURL,
			Usage:       "Externally reachable base URL, used in OAuth redirects",
		},

		// ── Tool response shaping ─────────────────────────────────
		&cli.StringFlag{
			Name:        "timezone",
			Category:    "Tool responses:",
			Sources:     cli.EnvVars("MEMORY_MCP_TIMEZONE"),
			Destination: &cfg.Timezone,
			Value:       cfg.Timezone,
			Usage:       `IANA timezone for current_time in tool responses; "false" disables the field entirely`,
		},
		&cli.BoolFlag{
			Name:        "performance-metrics",
			Category:    "Tool responses:",
			Sources:     cli.EnvVars("MEMORY_MCP_PERFORMANCE_METRICS"),
			Destination: &cfg.PerformanceMetrics,
			Usage:       "Append a performance timing field to every tool response",
		},
	}
}
