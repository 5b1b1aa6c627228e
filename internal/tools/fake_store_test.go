package tools

import (
	"context"
	"time"

	"github.com/chirino/memory-mcp/internal/memerr"
	"github.com/chirino/memory-mcp/internal/store"
	"github.com/chirino/memory-mcp/internal/store/postgres"
)

// fakeStore is an in-memory Store double for the tool-layer tests. It does
// not model namespacing beyond what the tests exercise.
type fakeStore struct {
	memories      map[int64]*store.Memory
	tokens        map[string]int64
	nextID        int64
	nextCID       map[string]int64
	dupCandidates []postgres.Scored
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories: map[int64]*store.Memory{},
		tokens:   map[string]int64{},
		nextCID:  map[string]int64{},
	}
}

func (f *fakeStore) InsertMemory(ctx context.Context, m *store.Memory, table string, row store.EmbeddingRow, dupProbe int) ([]postgres.Scored, error) {
	duplicates := f.dupCandidates
	if len(duplicates) > dupProbe {
		duplicates = duplicates[:dupProbe]
	}
	f.nextID++
	m.ID = f.nextID
	f.nextCID[m.Namespace]++
	m.ContentID = f.nextCID[m.Namespace]
	m.Timestamp = time.Now()
	cp := *m
	f.memories[m.ID] = &cp
	return duplicates, nil
}

func (f *fakeStore) GetMemoryByID(ctx context.Context, id int64) (*store.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return nil, memerr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) GetMemoryByContentID(ctx context.Context, namespace string, contentID int64) (*store.Memory, error) {
	for _, m := range f.memories {
		if m.Namespace == namespace && m.ContentID == contentID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, memerr.ErrNotFound
}

func (f *fakeStore) UpdateLabels(ctx context.Context, id int64, labels []string) error {
	m, ok := f.memories[id]
	if !ok {
		return memerr.ErrNotFound
	}
	m.Labels = labels
	return nil
}

func (f *fakeStore) DeleteMemory(ctx context.Context, id int64) error {
	if _, ok := f.memories[id]; !ok {
		return memerr.ErrNotFound
	}
	delete(f.memories, id)
	return nil
}

func (f *fakeStore) ListRecent(ctx context.Context, namespace string, flt store.Filter, want int) ([]store.Memory, error) {
	var out []store.Memory
	for _, m := range f.memories {
		if m.Namespace == namespace {
			out = append(out, *m)
		}
	}
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

func (f *fakeStore) RandomMemory(ctx context.Context, namespace string, flt store.Filter, want int) ([]store.Memory, error) {
	return f.ListRecent(ctx, namespace, flt, want)
}

func (f *fakeStore) CountStats(ctx context.Context, namespace string, flt store.Filter) (postgres.Stats, error) {
	var stats postgres.Stats
	for _, m := range f.memories {
		if m.Namespace != namespace {
			continue
		}
		stats.Total++
		stats.Matching++
	}
	return stats, nil
}

func (f *fakeStore) DecodedContent(m *store.Memory) (string, error) {
	return string(m.Content), nil
}

func (f *fakeStore) EncryptionEnabled() bool { return false }

func (f *fakeStore) EnsureEmbeddingTable(ctx context.Context, dims int) error { return nil }

func (f *fakeStore) UpsertLabelTokens(ctx context.Context, namespace string, tokens []string, now time.Time) error {
	for _, tok := range tokens {
		f.tokens[tok]++
	}
	return nil
}

func (f *fakeStore) SearchSimilar(ctx context.Context, namespace, table, model string, query []float32, flt store.Filter, want int) ([]postgres.Scored, error) {
	var out []postgres.Scored
	for _, m := range f.memories {
		if m.Namespace == namespace {
			out = append(out, postgres.Scored{Memory: *m, Similarity: 0.5})
		}
	}
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

func (f *fakeStore) ListLabelTokens(ctx context.Context, namespace string, since time.Time) ([]store.LabelToken, error) {
	return nil, nil
}

func (f *fakeStore) ListLabelsByNamespace(ctx context.Context, namespace string) (map[int64][]string, error) {
	out := map[int64][]string{}
	for id, m := range f.memories {
		if m.Namespace == namespace {
			out[id] = m.Labels
		}
	}
	return out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedder) Model() string { return "fake-model" }

func newTestDeps(s *fakeStore) *Deps {
	return &Deps{
		Store:          s,
		Embedder:       fakeEmbedder{},
		EmbeddingDims:  func() int { return 3 },
		EmbeddingTable: func(dims int) string { return "memory_3" },
		Namespace:      "default",
		Timezone:       "false",
	}
}
