package tools

import (
	"context"
	"time"

	"github.com/chirino/memory-mcp/internal/store"
)

// MemoryStatsParams are the raw inputs to memory_stats.
type MemoryStatsParams struct {
	Labels string
	Source string
}

// MemoryStats reports matching/total counts and, when include filters are
// present, the distinct label/source values that matched. With no filters
// at all, returns the total count alone.
func MemoryStats(ctx context.Context, d *Deps, p MemoryStatsParams) Result {
	start := time.Now()
	var t timing

	include, exclude := store.ParseLabels(p.Labels)
	source, excludeSource := store.ParseSource(p.Source)
	f := store.Filter{IncludeLabels: include, ExcludeLabels: exclude, Source: source, ExcludeSource: excludeSource}

	var matching, total int64
	var labelsMatched, sourcesMatched []string
	if err := t.trackDB(func() error {
		s, err := d.Store.CountStats(ctx, d.Namespace, f)
		if err != nil {
			return err
		}
		matching, total = s.Matching, s.Total
		labelsMatched, sourcesMatched = s.LabelsMatched, s.SourceMatched
		return nil
	}); err != nil {
		return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
	}

	noFilters := len(include) == 0 && len(exclude) == 0 && source == "" && !excludeSource
	if noFilters {
		return d.wrapResult(Result{"total_memories": total}, &t, time.Since(start))
	}

	var ratio, percentage float64
	if total > 0 {
		ratio = float64(matching) / float64(total)
		percentage = ratio * 100
	}
	result := Result{
		"matching":   matching,
		"total":      total,
		"ratio":      ratio,
		"percentage": percentage,
	}
	if len(labelsMatched) > 0 {
		result["labels_matched"] = labelsMatched
	}
	if len(sourcesMatched) > 0 {
		result["sources_matched"] = sourcesMatched
	}
	return d.wrapResult(result, &t, time.Since(start))
}
