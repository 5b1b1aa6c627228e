package trending

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/chirino/memory-mcp/internal/store"
)

// Source is the subset of the storage layer trending needs: the raw token
// ledger and a reverse lookup from memory to its current labels.
type Source interface {
	ListLabelTokens(ctx context.Context, namespace string, since time.Time) ([]store.LabelToken, error)
	ListLabelsByNamespace(ctx context.Context, namespace string) (map[int64][]string, error)
}

// Label pairs a trending label with its supporting token and a display
// count, ready for the trending_labels tool response.
type Label struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Token string  `json:"matched_token"`
	Score float64 `json:"score"`
}

// Compute runs the two-stage trending algorithm: score tokens seen within
// the last `days` days by frequency decayed by recency, then match the
// top tokens against labels currently present on memories in namespace.
// Returns at most `limit` labels, ordered by the score of their best
// matching token, descending. An empty label_tokens ledger yields an empty
// result — trending_labels never synthesizes from memory labels alone.
func Compute(ctx context.Context, src Source, namespace string, days, limit int, now time.Time) ([]Label, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 {
		limit = 10
	}

	since := now.AddDate(0, 0, -days)
	tokens, err := src.ListLabelTokens(ctx, namespace, since)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	lambda := math.Log(20) / float64(days)
	tokenScores := make(map[string]float64, len(tokens))
	tokenCounts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		ageDays := now.Sub(t.LastSeen).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		// Accumulate rather than assign: a wildcard namespace can surface the
		// same token once per namespace.
		tokenScores[t.Token] += float64(t.Count) * math.Exp(-lambda*ageDays)
		tokenCounts[t.Token] += int(t.Count)
	}

	labelsByMemory, err := src.ListLabelsByNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		label     string
		bestToken string
		bestScore float64
	}
	best := map[string]*candidate{}
	for _, labels := range labelsByMemory {
		for _, label := range labels {
			if _, ok := best[label]; ok {
				continue
			}
			labelTokens := Tokenize([]string{label})
			var topToken string
			var topScore float64
			for tok := range labelTokens {
				if score, ok := tokenScores[tok]; ok && score > topScore {
					topScore = score
					topToken = tok
				}
			}
			if topToken == "" {
				continue
			}
			best[label] = &candidate{label: label, bestToken: topToken, bestScore: topScore}
		}
	}

	results := make([]Label, 0, len(best))
	for _, c := range best {
		results = append(results, Label{
			Label: c.label,
			Count: tokenCounts[c.bestToken],
			Token: c.bestToken,
			Score: c.bestScore,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Label < results[j].Label
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
