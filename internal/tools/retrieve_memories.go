package tools

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-mcp/internal/store"
)

const defaultNumResults = 5

// RetrieveMemoriesParams are the raw inputs to retrieve_memories.
type RetrieveMemoriesParams struct {
	Query      string
	Labels     string
	Source     string
	NumResults int
}

// RetrieveMemories runs a semantic search when Query is set, otherwise a
// plain timestamp-ordered listing, against the label/source filter grammar.
func RetrieveMemories(ctx context.Context, d *Deps, p RetrieveMemoriesParams) Result {
	start := time.Now()
	var t timing

	want := p.NumResults
	if want <= 0 {
		want = defaultNumResults
	}

	include, exclude := store.ParseLabels(p.Labels)
	source, excludeSource := store.ParseSource(p.Source)
	f := store.Filter{IncludeLabels: include, ExcludeLabels: exclude, Source: source, ExcludeSource: excludeSource}

	var memories []Result
	var currentEmbedding string

	if p.Query != "" {
		var vec []float32
		if err := t.trackEmbed(func() error {
			var embedErr error
			vec, embedErr = d.Embedder.Embed(ctx, p.Query)
			return embedErr
		}); err != nil {
			return d.wrapResult(errorResult("embedding failed", err.Error()), &t, time.Since(start))
		}
		currentEmbedding = d.Embedder.Model()
		dims := d.EmbeddingDims()
		table := d.EmbeddingTable(dims)

		var scored []store.Memory
		var similarities map[int64]float64
		if err := t.trackDB(func() error {
			candidates, err := d.Store.SearchSimilar(ctx, d.Namespace, table, currentEmbedding, vec, f, want)
			if err != nil {
				return err
			}
			similarities = make(map[int64]float64, len(candidates))
			for _, c := range candidates {
				m := c.Memory
				scored = append(scored, m)
				similarities[m.ID] = c.Similarity
			}
			return nil
		}); err != nil {
			return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
		}

		for _, m := range scored {
			if len(memories) >= want {
				break
			}
			m := m
			view, err := memoryView(d, &m)
			if err != nil {
				log.Warn("retrieve_memories: skipping undecryptable memory", "id", m.ID, "err", err)
				continue
			}
			view["similarity"] = int(similarities[m.ID]*100 + 0.5)
			memories = append(memories, view)
		}
	} else {
		var listed []store.Memory
		if err := t.trackDB(func() error {
			var err error
			listed, err = d.Store.ListRecent(ctx, d.Namespace, f, want)
			return err
		}); err != nil {
			return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
		}
		for _, m := range listed {
			if len(memories) >= want {
				break
			}
			m := m
			view, err := memoryView(d, &m)
			if err != nil {
				log.Warn("retrieve_memories: skipping undecryptable memory", "id", m.ID, "err", err)
				continue
			}
			memories = append(memories, view)
		}
	}

	if memories == nil {
		memories = []Result{}
	}
	result := Result{
		"memories": memories,
		"count":    len(memories),
	}
	if currentEmbedding != "" {
		result["current_embedding"] = currentEmbedding
	}
	return d.wrapResult(result, &t, time.Since(start))
}
