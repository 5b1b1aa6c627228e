package mcpserver

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-mcp/internal/embedclient"
	"github.com/chirino/memory-mcp/internal/store/postgres"
)

// generateEmbeddingsRequest is the body accepted by /api/embeddings/generate.
type generateEmbeddingsRequest struct {
	EmbeddingURL    string `json:"embedding_url"`
	EmbeddingModel  string `json:"embedding_model"`
	EmbeddingAPIKey string `json:"embedding_api_key"`
	EmbeddingDims   int    `json:"embedding_dims"`
	Namespace       string `json:"namespace"`
}

// registerAdmin mounts the admin re-embedding endpoint, gated by apiToken.
// When apiToken is empty the endpoint is not registered at all and 404s.
func (s *Server) registerAdmin(router gin.IRouter) {
	if s.apiToken == "" {
		return
	}
	router.POST("/api/embeddings/generate", s.generateEmbeddings)
}

func (s *Server) generateEmbeddings(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.apiToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req generateEmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if req.EmbeddingURL == "" || req.EmbeddingModel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "embedding_url and embedding_model are required"})
		return
	}

	client := embedclient.New(req.EmbeddingURL, req.EmbeddingModel, req.EmbeddingAPIKey, req.EmbeddingDims)
	dims, err := client.DetectDimension(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "embedding endpoint probe failed", "details": err.Error()})
		return
	}
	table := postgres.EmbeddingTable(dims)
	if err := s.store.EnsureEmbeddingTable(c.Request.Context(), dims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
		return
	}

	namespace := req.Namespace
	go s.runReembed(namespace, table, client)

	c.JSON(http.StatusAccepted, gin.H{
		"status":          "accepted",
		"message":         "re-embedding started in the background",
		"namespace":       namespace,
		"embedding_table": table,
		"embedding_dims":  dims,
	})
}

// runReembed iterates every memory in namespace, embeds its decoded content
// under client's model, and upserts the row into table. Best-effort: one
// item's failure is logged and counted, not fatal to the run.
func (s *Server) runReembed(namespace, table string, client *embedclient.Client) {
	ctx := context.Background()
	ids, err := s.store.MemoryIDsForReembed(ctx, namespace)
	if err != nil {
		log.Error("reembed: list memory ids failed", "err", err)
		return
	}

	var ok, failed int
	for _, id := range ids {
		if err := s.reembedOne(ctx, id, table, client); err != nil {
			failed++
			log.Error("reembed: item failed", "memory_id", id, "err", err)
			continue
		}
		ok++
	}
	log.Info("reembed: run complete", "namespace", namespace, "table", table, "ok", ok, "failed", failed)
}

func (s *Server) reembedOne(ctx context.Context, id int64, table string, client *embedclient.Client) error {
	m, err := s.store.GetMemoryByID(ctx, id)
	if err != nil {
		return err
	}
	content, err := s.store.DecodedContent(m)
	if err != nil {
		return err
	}
	vec, err := client.Embed(ctx, content)
	if err != nil {
		return err
	}
	return s.store.UpsertEmbeddingForMemory(ctx, m.ID, m.Namespace, table, client.Model(), vec)
}
