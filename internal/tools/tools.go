// Package tools implements the nine MCP tool handlers against the storage
// layer and embedding client, independent of the transport that exposes
// them (see internal/mcpserver).
package tools

import (
	"context"
	"time"

	"github.com/chirino/memory-mcp/internal/store"
	"github.com/chirino/memory-mcp/internal/store/postgres"
)

// Result is the thin JSON-shaped response every tool returns.
type Result = map[string]any

// Embedder is the subset of embedclient.Client the tool layer needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Store is the subset of postgres.Store the tool layer depends on.
type Store interface {
	InsertMemory(ctx context.Context, m *store.Memory, table string, row store.EmbeddingRow, dupProbe int) ([]postgres.Scored, error)
	GetMemoryByID(ctx context.Context, id int64) (*store.Memory, error)
	GetMemoryByContentID(ctx context.Context, namespace string, contentID int64) (*store.Memory, error)
	UpdateLabels(ctx context.Context, id int64, labels []string) error
	DeleteMemory(ctx context.Context, id int64) error
	ListRecent(ctx context.Context, namespace string, f store.Filter, want int) ([]store.Memory, error)
	RandomMemory(ctx context.Context, namespace string, f store.Filter, want int) ([]store.Memory, error)
	CountStats(ctx context.Context, namespace string, f store.Filter) (postgres.Stats, error)
	DecodedContent(m *store.Memory) (string, error)
	EncryptionEnabled() bool
	EnsureEmbeddingTable(ctx context.Context, dims int) error
	UpsertLabelTokens(ctx context.Context, namespace string, tokens []string, now time.Time) error

	SearchSimilar(ctx context.Context, namespace, table, model string, query []float32, f store.Filter, want int) ([]postgres.Scored, error)

	ListLabelTokens(ctx context.Context, namespace string, since time.Time) ([]store.LabelToken, error)
	ListLabelsByNamespace(ctx context.Context, namespace string) (map[int64][]string, error)
}

// Deps bundles everything a tool handler needs to run.
type Deps struct {
	Store              Store
	Embedder           Embedder
	EmbeddingDims      func() int
	EmbeddingTable     func(dims int) string
	Namespace          string
	Timezone           string // "" = UTC, "false" = disabled entirely
	PerformanceMetrics bool
}

func errorResult(message, details string) Result {
	r := Result{"error": message}
	if details != "" {
		r["details"] = details
	}
	return r
}

// resolveID maps a client-facing ID to the internal memories.id. When
// namespace is non-empty, the client-facing ID is content_id scoped to that
// namespace; otherwise it is the internal id directly.
func resolveID(ctx context.Context, s Store, namespace string, clientID int64) (*store.Memory, error) {
	if namespace != "" {
		return s.GetMemoryByContentID(ctx, namespace, clientID)
	}
	return s.GetMemoryByID(ctx, clientID)
}

// clientFacingID returns the ID the caller should see for m, per the same
// namespace rule as resolveID.
func clientFacingID(namespace string, m *store.Memory) int64 {
	if namespace != "" {
		return m.ContentID
	}
	return m.ID
}
