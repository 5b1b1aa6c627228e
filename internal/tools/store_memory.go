package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-mcp/internal/store"
	"github.com/chirino/memory-mcp/internal/trending"
)

const maxSourceLength = 512

// StoreMemoryParams are the raw inputs to store_memory.
type StoreMemoryParams struct {
	Content string
	Labels  string
	Source  string
}

// jsonContentOverride is the shape some clients wrap content in, coercing
// every tool parameter into a single string field.
type jsonContentOverride struct {
	Content string   `json:"content"`
	Labels  []string `json:"labels"`
	Source  string   `json:"source"`
}

// applyJSONWorkaround checks whether content is itself a JSON object
// carrying content/labels/source, and if so overrides p's fields from it.
// Some MCP clients coerce all parameters into the first string argument;
// this recovers the intended structure.
func applyJSONWorkaround(p *StoreMemoryParams) {
	trimmed := strings.TrimSpace(p.Content)
	if !strings.HasPrefix(trimmed, "{") {
		return
	}
	var override jsonContentOverride
	if err := json.Unmarshal([]byte(trimmed), &override); err != nil || override.Content == "" {
		return
	}
	p.Content = override.Content
	if len(override.Labels) > 0 {
		p.Labels = strings.Join(override.Labels, ",")
	}
	if override.Source != "" {
		p.Source = override.Source
	}
}

// StoreMemory embeds content, probes for near-duplicates, and inserts a new
// memory atomically with its embedding row.
func StoreMemory(ctx context.Context, d *Deps, p StoreMemoryParams) Result {
	start := time.Now()
	var t timing

	applyJSONWorkaround(&p)
	if strings.TrimSpace(p.Content) == "" {
		return d.wrapResult(errorResult("invalid parameter", "content is required"), &t, time.Since(start))
	}
	if len(p.Source) > maxSourceLength {
		return d.wrapResult(errorResult("invalid parameter", fmt.Sprintf("source exceeds %d bytes", maxSourceLength)), &t, time.Since(start))
	}

	var labels []string
	if p.Labels != "" {
		seen := map[string]bool{}
		for _, l := range strings.Split(p.Labels, ",") {
			l = strings.TrimSpace(l)
			if l != "" && !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}

	dims := d.EmbeddingDims()
	table := d.EmbeddingTable(dims)
	if err := d.Store.EnsureEmbeddingTable(ctx, dims); err != nil {
		return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
	}

	var vec []float32
	if err := t.trackEmbed(func() error {
		var embedErr error
		vec, embedErr = d.Embedder.Embed(ctx, p.Content)
		return embedErr
	}); err != nil {
		return d.wrapResult(errorResult("embedding failed", err.Error()), &t, time.Since(start))
	}

	mem := &store.Memory{
		Content:   []byte(p.Content),
		Namespace: d.Namespace,
		Labels:    labels,
		Source:    p.Source,
	}
	row := store.EmbeddingRow{Embedding: vec, Namespace: d.Namespace, EmbeddingModel: d.Embedder.Model()}

	// The duplicate probe runs inside the same transaction as the insert, so
	// the candidates and the new row share one consistent snapshot.
	var warnings []string
	if err := t.trackDB(func() error {
		candidates, err := d.Store.InsertMemory(ctx, mem, table, row, 2)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			c := c
			warnings = append(warnings, duplicateWarning(clientFacingID(d.Namespace, &c.Memory), c.Similarity))
		}
		return nil
	}); err != nil {
		return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
	}
	warnings = compactWarnings(warnings)

	if len(labels) > 0 {
		go func() {
			tokens := trending.Tokenize(labels)
			var names []string
			for tok := range tokens {
				names = append(names, tok)
			}
			if err := d.Store.UpsertLabelTokens(context.Background(), d.Namespace, names, time.Now()); err != nil {
				log.Error("store_memory: label token update failed", "err", err)
			}
		}()
	}

	result := Result{
		"current_embedding": d.Embedder.Model(),
		"id":                clientFacingID(d.Namespace, mem),
		"source":            p.Source,
		"message":           "Memory stored successfully",
	}
	if len(warnings) > 0 {
		result["warnings"] = warnings
	}
	return d.wrapResult(result, &t, time.Since(start))
}

// duplicateWarning maps a cosine similarity to the tiered advisory message,
// naming the existing memory so the caller can review or delete it.
func duplicateWarning(id int64, similarity float64) string {
	pct := int(similarity*100 + 0.5)
	switch {
	case similarity >= 1.0:
		return fmt.Sprintf("exact match: memory %d is identical (%d%% similar)", id, pct)
	case similarity >= 0.91:
		return fmt.Sprintf("worth reviewing: memory %d is very similar (%d%% similar)", id, pct)
	case similarity >= 0.81:
		return fmt.Sprintf("explores similar territory: memory %d is related (%d%% similar)", id, pct)
	case similarity >= 0.70:
		return fmt.Sprintf("semantically related: memory %d covers nearby ground (%d%% similar)", id, pct)
	default:
		return ""
	}
}

func compactWarnings(in []string) []string {
	var out []string
	for _, w := range in {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
