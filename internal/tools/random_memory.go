package tools

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-mcp/internal/memerr"
	"github.com/chirino/memory-mcp/internal/store"
)

// RandomMemoryParams are the raw inputs to random_memory.
type RandomMemoryParams struct {
	Labels string
	Source string
}

// RandomMemory returns one memory chosen uniformly at random among those
// matching the filter, oversampling to absorb decryption failures.
func RandomMemory(ctx context.Context, d *Deps, p RandomMemoryParams) Result {
	start := time.Now()
	var t timing

	include, exclude := store.ParseLabels(p.Labels)
	source, excludeSource := store.ParseSource(p.Source)
	f := store.Filter{IncludeLabels: include, ExcludeLabels: exclude, Source: source, ExcludeSource: excludeSource}

	var candidates []store.Memory
	if err := t.trackDB(func() error {
		var err error
		candidates, err = d.Store.RandomMemory(ctx, d.Namespace, f, 1)
		return err
	}); err != nil {
		return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
	}

	for _, m := range candidates {
		m := m
		view, err := memoryView(d, &m)
		if err != nil {
			log.Warn("random_memory: skipping undecryptable memory", "id", m.ID, "err", err)
			continue
		}
		return d.wrapResult(view, &t, time.Since(start))
	}
	return d.wrapResult(errorResult("not found", memerr.ErrNotFound.Error()), &t, time.Since(start))
}
