package mcpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chirino/memory-mcp/internal/config"
	"github.com/chirino/memory-mcp/internal/embedclient"
	"github.com/chirino/memory-mcp/internal/oauth"
	"github.com/chirino/memory-mcp/internal/security"
	"github.com/chirino/memory-mcp/internal/store/postgres"
	"github.com/chirino/memory-mcp/internal/tools"
)

// Server bundles everything the admin HTTP surface needs beyond what the
// tool layer's Deps already carries.
type Server struct {
	store    *postgres.Store
	apiToken string
}

// New builds the gin.Engine serving the MCP streamable-HTTP endpoint, the
// bundled OAuth 2.1 authorization server (when oauthProvider is non-nil),
// the admin re-embedding endpoint, and health/metrics. CORS is registered
// here as the engine's first middleware; TLS is left to the caller that
// starts the HTTP server.
func New(ctx context.Context, cfg *config.Config, st *postgres.Store, oauthProvider *oauth.Provider) (*gin.Engine, error) {
	embedder := embedclient.New(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingAPIKey, cfg.EmbeddingDims)
	dims, err := embedder.DetectDimension(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureEmbeddingTable(ctx, dims); err != nil {
		return nil, err
	}

	deps := &tools.Deps{
		Store:              st,
		Embedder:           embedder,
		EmbeddingDims:      func() int { return dims },
		EmbeddingTable:     postgres.EmbeddingTable,
		Namespace:          cfg.Namespace,
		Timezone:           cfg.Timezone,
		PerformanceMetrics: cfg.PerformanceMetrics,
	}

	mcpSrv := server.NewMCPServer("memory-mcp", "1.0.0")
	registerTools(mcpSrv, deps)
	streamable := server.NewStreamableHTTPServer(mcpSrv)

	s := &Server{store: st, apiToken: cfg.APIBearerToken}

	security.InitMetrics()
	go pollPoolStats(ctx, st)

	var tokenStore security.TokenStore
	if oauthProvider != nil {
		tokenStore = oauthProvider
	}
	resolver := security.NewResolver(cfg.BearerToken, tokenStore)

	router := gin.New()
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(gin.Recovery())
	router.Use(security.MetricsMiddleware())

	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mcpGroup := router.Group("/")
	mcpGroup.Use(resolver.Middleware())
	mcpGroup.Any("/mcp", gin.WrapH(streamable))

	if oauthProvider != nil {
		handlers, err := oauth.NewHandlers(oauthProvider, "")
		if err != nil {
			return nil, err
		}
		handlers.Register(router)
	}

	s.registerAdmin(router)

	return router, nil
}

// pollPoolStats keeps the pool-connection gauge current until ctx ends.
func pollPoolStats(ctx context.Context, st *postgres.Store) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			security.DBPoolOpenConnections.Set(float64(st.Pool().Stat().TotalConns()))
		}
	}
}
