package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/chirino/memory-mcp/internal/store"
	"github.com/chirino/memory-mcp/internal/store/postgres"
)

func TestStoreMemoryThenGetMemoryRoundTrips(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)

	stored := StoreMemory(context.Background(), d, StoreMemoryParams{
		Content: "remember the cat on the rug",
		Labels:  "animals, cat",
	})
	if _, ok := stored["error"]; ok {
		t.Fatalf("unexpected error storing memory: %+v", stored)
	}
	id, ok := stored["id"].(int64)
	if !ok || id == 0 {
		t.Fatalf("expected a non-zero id, got %+v", stored["id"])
	}

	got := GetMemory(context.Background(), d, GetMemoryParams{MemoryID: id})
	if _, ok := got["error"]; ok {
		t.Fatalf("unexpected error getting memory: %+v", got)
	}
	if got["content"] != "remember the cat on the rug" {
		t.Fatalf("unexpected content: %+v", got["content"])
	}
}

func TestStoreMemoryRejectsEmptyContent(t *testing.T) {
	d := newTestDeps(newFakeStore())
	result := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "   "})
	if result["error"] == nil {
		t.Fatal("expected an error for blank content")
	}
}

func TestStoreMemoryAppliesJSONWorkaround(t *testing.T) {
	d := newTestDeps(newFakeStore())
	result := StoreMemory(context.Background(), d, StoreMemoryParams{
		Content: `{"content": "wrapped content", "labels": ["a", "b"]}`,
	})
	if result["error"] != nil {
		t.Fatalf("unexpected error: %+v", result)
	}
}

func TestStoreMemoryDuplicateWarningNamesExistingMemory(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)

	first := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "Hello world"})
	firstID := first["id"].(int64)

	existing, err := s.GetMemoryByID(context.Background(), firstID)
	if err != nil {
		t.Fatalf("GetMemoryByID: %v", err)
	}
	s.dupCandidates = []postgres.Scored{{Memory: *existing, Similarity: 1.0}}

	second := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "Hello world"})
	warnings, ok := second["warnings"].([]string)
	if !ok || len(warnings) == 0 {
		t.Fatalf("expected a duplicate warning, got %+v", second)
	}
	if !strings.Contains(warnings[0], "exact match") {
		t.Fatalf("expected highest-tier warning, got %q", warnings[0])
	}
	if !strings.Contains(warnings[0], fmt.Sprintf("memory %d", firstID)) {
		t.Fatalf("expected warning to reference memory %d, got %q", firstID, warnings[0])
	}
}

func TestStoreMemoryBelowThresholdYieldsNoWarning(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	s.dupCandidates = []postgres.Scored{{Memory: store.Memory{ID: 7}, Similarity: 0.42}}

	result := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "unrelated"})
	if _, ok := result["warnings"]; ok {
		t.Fatalf("expected no warnings below the lowest tier, got %+v", result)
	}
}

func TestNamespaceScopedIDsStartAtOnePerNamespace(t *testing.T) {
	s := newFakeStore()
	alice := newTestDeps(s)
	alice.Namespace = "alice"
	bob := newTestDeps(s)
	bob.Namespace = "bob"

	for i, d := range []*Deps{alice, alice, alice} {
		result := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "a"})
		if result["id"].(int64) != int64(i+1) {
			t.Fatalf("expected alice id %d, got %+v", i+1, result["id"])
		}
	}
	result := StoreMemory(context.Background(), bob, StoreMemoryParams{Content: "b"})
	if result["id"].(int64) != 1 {
		t.Fatalf("expected bob's first id to be 1, got %+v", result["id"])
	}
}

func TestAddLabelsIsIdempotent(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	stored := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "x", Labels: "a,b"})
	id := stored["id"].(int64)

	AddLabels(context.Background(), d, LabelsParams{MemoryID: id, Labels: "c"})
	again := AddLabels(context.Background(), d, LabelsParams{MemoryID: id, Labels: "c"})
	labels, _ := again["labels"].([]string)
	if len(labels) != 3 {
		t.Fatalf("expected adding the same label twice to be a no-op, got %v", labels)
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	d := newTestDeps(newFakeStore())
	result := GetMemory(context.Background(), d, GetMemoryParams{MemoryID: 999})
	if result["error"] == nil {
		t.Fatal("expected not-found error")
	}
}

func TestAddAndDelLabels(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)

	stored := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "x", Labels: "a,b"})
	id := stored["id"].(int64)

	added := AddLabels(context.Background(), d, LabelsParams{MemoryID: id, Labels: "c, a"})
	labels, _ := added["labels"].([]string)
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels after merge with one duplicate dropped, got %v", labels)
	}

	removed := DelLabels(context.Background(), d, LabelsParams{MemoryID: id, Labels: "a"})
	labels, _ = removed["labels"].([]string)
	for _, l := range labels {
		if l == "a" {
			t.Fatalf("expected label 'a' to be removed, got %v", labels)
		}
	}
}

func TestDeleteMemoryThenGetFails(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	stored := StoreMemory(context.Background(), d, StoreMemoryParams{Content: "x"})
	id := stored["id"].(int64)

	del := DeleteMemory(context.Background(), d, DeleteMemoryParams{MemoryID: id})
	if del["success"] != true {
		t.Fatalf("expected success, got %+v", del)
	}

	got := GetMemory(context.Background(), d, GetMemoryParams{MemoryID: id})
	if got["error"] == nil {
		t.Fatal("expected deleted memory to be unreadable")
	}
}

func TestMemoryStatsNoFiltersReturnsTotalOnly(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	StoreMemory(context.Background(), d, StoreMemoryParams{Content: "x"})
	StoreMemory(context.Background(), d, StoreMemoryParams{Content: "y"})

	result := MemoryStats(context.Background(), d, MemoryStatsParams{})
	if result["total_memories"] != int64(2) {
		t.Fatalf("expected total_memories=2, got %+v", result)
	}
	if _, ok := result["matching"]; ok {
		t.Fatalf("expected no 'matching' field with no filters, got %+v", result)
	}
}

func TestMemoryStatsWithFilterReturnsRatio(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	StoreMemory(context.Background(), d, StoreMemoryParams{Content: "x", Labels: "beer"})

	result := MemoryStats(context.Background(), d, MemoryStatsParams{Labels: "beer"})
	if _, ok := result["matching"]; !ok {
		t.Fatalf("expected 'matching' field when filters are present, got %+v", result)
	}
}

func TestRetrieveMemoriesWithoutQueryListsRecent(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	StoreMemory(context.Background(), d, StoreMemoryParams{Content: "x"})

	result := RetrieveMemories(context.Background(), d, RetrieveMemoriesParams{})
	if result["count"] != 1 {
		t.Fatalf("expected count=1, got %+v", result["count"])
	}
	if _, ok := result["current_embedding"]; ok {
		t.Fatal("expected no current_embedding field for a non-semantic listing")
	}
}

func TestRetrieveMemoriesWithQueryReportsSimilarity(t *testing.T) {
	s := newFakeStore()
	d := newTestDeps(s)
	StoreMemory(context.Background(), d, StoreMemoryParams{Content: "the cat sat"})

	result := RetrieveMemories(context.Background(), d, RetrieveMemoriesParams{Query: "feline"})
	if result["current_embedding"] != "fake-model" {
		t.Fatalf("expected current_embedding to be set, got %+v", result)
	}
	memories, ok := result["memories"].([]Result)
	if !ok || len(memories) != 1 {
		t.Fatalf("expected one memory, got %+v", result["memories"])
	}
	if memories[0]["similarity"] != 50 {
		t.Fatalf("expected similarity=50, got %+v", memories[0]["similarity"])
	}
}

func TestRandomMemoryEmptyStoreReturnsNotFound(t *testing.T) {
	d := newTestDeps(newFakeStore())
	result := RandomMemory(context.Background(), d, RandomMemoryParams{})
	if result["error"] == nil {
		t.Fatal("expected not-found error for an empty store")
	}
}

func TestTrendingLabelsEmptyLedgerYieldsEmptyList(t *testing.T) {
	d := newTestDeps(newFakeStore())
	result := TrendingLabels(context.Background(), d, TrendingLabelsParams{})
	if result["error"] != nil {
		t.Fatalf("unexpected error: %+v", result)
	}
}
