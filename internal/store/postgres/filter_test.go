package postgres

import (
	"strings"
	"testing"

	"github.com/chirino/memory-mcp/internal/store"
)

func TestFilterClauseNoFilters(t *testing.T) {
	where, args := filterClause("m", "", store.Filter{}, nil)
	if where != "1 = 1" {
		t.Fatalf("expected trivial clause, got %q", where)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestFilterClauseNamespace(t *testing.T) {
	where, args := filterClause("m", "work", store.Filter{}, nil)
	if !strings.Contains(where, "m.namespace = $1") {
		t.Fatalf("expected namespace clause, got %q", where)
	}
	if len(args) != 1 || args[0] != "work" {
		t.Fatalf("expected [work], got %v", args)
	}
}

func TestFilterClauseIncludeExcludeLabels(t *testing.T) {
	f := store.Filter{
		IncludeLabels: []string{"go", "rust"},
		ExcludeLabels: []string{"deprecated"},
	}
	where, args := filterClause("m", "default", f, nil)
	if !strings.Contains(where, "EXISTS (SELECT 1 FROM unnest(m.labels)") {
		t.Fatalf("expected EXISTS clause for includes, got %q", where)
	}
	if !strings.Contains(where, "NOT EXISTS (SELECT 1 FROM unnest(m.labels)") {
		t.Fatalf("expected NOT EXISTS clause for excludes, got %q", where)
	}
	if len(args) != 4 { // namespace + 2 includes + 1 exclude
		t.Fatalf("expected 4 args, got %d: %v", len(args), args)
	}
	if args[1] != "%go%" || args[2] != "%rust%" || args[3] != "%deprecated%" {
		t.Fatalf("expected lowercase wrapped args, got %v", args)
	}
}

func TestFilterClauseSourceExclusion(t *testing.T) {
	f := store.Filter{Source: "Slack", ExcludeSource: true}
	where, args := filterClause("m", "", f, nil)
	if !strings.Contains(where, "NOT (lower(m.source) LIKE $1") {
		t.Fatalf("expected negated source clause, got %q", where)
	}
	if args[0] != "%slack%" {
		t.Fatalf("expected lowercased source term, got %v", args)
	}
}

func TestValidTableName(t *testing.T) {
	cases := map[string]bool{
		"memory_768":     true,
		"memory_1536":    true,
		"memory_":        false,
		"memories":       false,
		"memory_abc":     false,
		"memory_768; --": false,
	}
	for name, want := range cases {
		if got := validTableName(name); got != want {
			t.Errorf("validTableName(%q) = %v, want %v", name, got, want)
		}
	}
}
