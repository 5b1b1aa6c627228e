package trending

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/memory-mcp/internal/store"
)

type fakeSource struct {
	tokens []store.LabelToken
	labels map[int64][]string
}

func (f fakeSource) ListLabelTokens(ctx context.Context, namespace string, since time.Time) ([]store.LabelToken, error) {
	var out []store.LabelToken
	for _, t := range f.tokens {
		if !t.LastSeen.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f fakeSource) ListLabelsByNamespace(ctx context.Context, namespace string) (map[int64][]string, error) {
	return f.labels, nil
}

func TestTokenizeSplitsAndLowercases(t *testing.T) {
	counts := Tokenize([]string{"memory-mcp", "database schema", "memory_mcp community"})
	want := map[string]int{"memory": 2, "mcp": 2, "database": 1, "schema": 1, "community": 1}
	for tok, n := range want {
		if counts[tok] != n {
			t.Errorf("count[%q] = %d, want %d", tok, counts[tok], n)
		}
	}
}

func TestIsDateLabelDetectsDatesNotBareMonths(t *testing.T) {
	dates := []string{"2026-01-31", "jan-2026", "01-2026"}
	for _, d := range dates {
		if !IsDateLabel(d) {
			t.Errorf("expected %q to be detected as a date", d)
		}
	}
	if IsDateLabel("january") {
		t.Errorf("bare month name should not be treated as a date")
	}
	if IsDateLabel("golang") {
		t.Errorf("ordinary label should not be treated as a date")
	}
}

func TestComputeEmptyTokensYieldsEmptyResult(t *testing.T) {
	src := fakeSource{}
	out, err := Compute(context.Background(), src, "default", 30, 10, time.Now())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no results for empty token ledger, got %v", out)
	}
}

func TestComputeRanksByDecayedScore(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	src := fakeSource{
		tokens: []store.LabelToken{
			{Namespace: "default", Token: "golang", Count: 50, LastSeen: now},
			{Namespace: "default", Token: "rust", Count: 50, LastSeen: now.AddDate(0, 0, -29)},
		},
		labels: map[int64][]string{
			1: {"golang-tips"},
			2: {"rust-tips"},
		},
	}
	out, err := Compute(context.Background(), src, "default", 30, 10, now)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d: %v", len(out), out)
	}
	if out[0].Label != "golang-tips" {
		t.Fatalf("expected golang-tips to rank first (fresher), got %q", out[0].Label)
	}
}

func TestComputeRespectsLimit(t *testing.T) {
	now := time.Now()
	src := fakeSource{
		tokens: []store.LabelToken{
			{Namespace: "default", Token: "a", Count: 1, LastSeen: now},
			{Namespace: "default", Token: "b", Count: 1, LastSeen: now},
		},
		labels: map[int64][]string{
			1: {"a-topic"},
			2: {"b-topic"},
		},
	}
	out, err := Compute(context.Background(), src, "default", 30, 1, now)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected limit to cap results at 1, got %d", len(out))
	}
}
