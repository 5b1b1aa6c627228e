package tools

import (
	"context"
	"time"

	"github.com/chirino/memory-mcp/internal/trending"
)

// TrendingLabelsParams are the raw inputs to trending_labels.
type TrendingLabelsParams struct {
	Days  int
	Limit int
}

// TrendingLabels ranks labels currently present on memories by the recency-
// decayed frequency of their best matching token.
func TrendingLabels(ctx context.Context, d *Deps, p TrendingLabelsParams) Result {
	start := time.Now()
	var t timing

	var labels []trending.Label
	if err := t.trackDB(func() error {
		var err error
		labels, err = trending.Compute(ctx, d.Store, d.Namespace, p.Days, p.Limit, time.Now())
		return err
	}); err != nil {
		return d.wrapResult(errorResult("internal error", err.Error()), &t, time.Since(start))
	}

	if labels == nil {
		labels = []trending.Label{}
	}
	return d.wrapResult(Result{"labels": labels}, &t, time.Since(start))
}
