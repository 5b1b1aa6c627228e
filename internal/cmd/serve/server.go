package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-mcp/internal/config"
	"github.com/chirino/memory-mcp/internal/crypto"
	"github.com/chirino/memory-mcp/internal/mcpserver"
	"github.com/chirino/memory-mcp/internal/migrate"
	"github.com/chirino/memory-mcp/internal/oauth"
	"github.com/chirino/memory-mcp/internal/store/postgres"
)

// Server holds the running HTTP listener and the store it owns, so Shutdown
// can release both in order.
type Server struct {
	Store   *postgres.Store
	Running *RunningServer
}

// Shutdown closes the HTTP listener and the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Running.Close(ctx)
	s.Store.Close()
	return err
}

// run connects to the database, migrates it, builds the router, and starts
// listening. It blocks until ctx is cancelled.
func run(ctx context.Context, cfg config.Config) error {
	sealer := crypto.New(cfg.EncryptionKey)
	st, err := postgres.Open(ctx, cfg.DatabaseURL, sealer)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if cfg.MigrateAtStart {
		if err := migrate.Run(ctx, st.Pool()); err != nil {
			st.Close()
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var oauthProvider *oauth.Provider
	if cfg.OAuthBundled {
		oauthProvider = oauth.New(oauth.Config{
			ServerURL:       cfg.ServerURL,
			ClientID:        cfg.OAuthClientID,
			ClientSecret:    cfg.OAuthClientSecret,
			RedirectURIs:    cfg.OAuthRedirectURIs,
			Username:        cfg.OAuthUsername,
			Password:        cfg.OAuthPassword,
			AccessTokenTTL:  cfg.OAuthAccessExpiry,
			RefreshTokenTTL: cfg.OAuthRefreshExpiry,
			AuthCodeTTL:     cfg.OAuthAuthCodeExpiry,
		}, st)
		if err := oauthProvider.LoadPersisted(ctx); err != nil {
			st.Close()
			return fmt.Errorf("load persisted oauth state: %w", err)
		}
	}

	router, err := mcpserver.New(ctx, &cfg, st, oauthProvider)
	if err != nil {
		st.Close()
		return fmt.Errorf("build router: %w", err)
	}

	running, err := StartHTTPServer(cfg.Port, router, cfg.TLSEnabled, cfg.TLSCertFile, cfg.TLSKeyFile, 5*time.Second)
	if err != nil {
		st.Close()
		return fmt.Errorf("start server: %w", err)
	}

	log.Info("memory-mcp listening", "addr", running.Addr.String())

	server := &Server{Store: st, Running: running}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
