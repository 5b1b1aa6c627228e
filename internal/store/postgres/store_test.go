package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-mcp/internal/crypto"
	"github.com/chirino/memory-mcp/internal/memerr"
	"github.com/chirino/memory-mcp/internal/migrate"
	"github.com/chirino/memory-mcp/internal/store"
	"github.com/chirino/memory-mcp/internal/store/postgres"
	"github.com/chirino/memory-mcp/internal/testutil/testpg"
)

func setupTestStore(t *testing.T, sealer *crypto.Sealer) (*postgres.Store, context.Context) {
	t.Helper()
	ctx := context.Background()

	dbURL := testpg.StartPostgres(t)

	s, err := postgres.Open(ctx, dbURL, sealer)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, migrate.Run(ctx, s.Pool()))
	require.NoError(t, s.EnsureEmbeddingTable(ctx, 4))

	return s, ctx
}

func vec(vs ...float32) []float32 { return vs }

func mustInsert(t *testing.T, ctx context.Context, s *postgres.Store, m *store.Memory, row store.EmbeddingRow) {
	t.Helper()
	_, err := s.InsertMemory(ctx, m, "memory_4", row, 0)
	require.NoError(t, err)
}

func TestInsertAndGetMemory(t *testing.T) {
	s, ctx := setupTestStore(t, nil)

	m := &store.Memory{
		Content:   []byte("the cat sat on the mat"),
		Namespace: "default",
		Labels:    []string{"animals", "poetry"},
		Source:    "unit-test",
	}
	row := store.EmbeddingRow{Embedding: vec(0.1, 0.2, 0.3, 0.4), EmbeddingModel: "test-model"}
	mustInsert(t, ctx, s, m, row)

	assert.NotZero(t, m.ID)
	assert.EqualValues(t, 1, m.ContentID)

	got, err := s.GetMemoryByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "the cat sat on the mat", string(got.Content))
	assert.ElementsMatch(t, []string{"animals", "poetry"}, got.Labels)
	assert.Equal(t, []string{"test-model"}, got.State.EmbeddingTables["memory_4"])

	byContentID, err := s.GetMemoryByContentID(ctx, "default", m.ContentID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byContentID.ID)
}

func TestContentIDScopedPerNamespace(t *testing.T) {
	s, ctx := setupTestStore(t, nil)
	row := store.EmbeddingRow{Embedding: vec(1, 0, 0, 0), EmbeddingModel: "test-model"}

	a1 := &store.Memory{Content: []byte("a1"), Namespace: "alpha"}
	mustInsert(t, ctx, s, a1, row)
	a2 := &store.Memory{Content: []byte("a2"), Namespace: "alpha"}
	mustInsert(t, ctx, s, a2, row)
	b1 := &store.Memory{Content: []byte("b1"), Namespace: "beta"}
	mustInsert(t, ctx, s, b1, row)

	assert.EqualValues(t, 1, a1.ContentID)
	assert.EqualValues(t, 2, a2.ContentID)
	assert.EqualValues(t, 1, b1.ContentID)
}

func TestUpdateLabelsAndDelete(t *testing.T) {
	s, ctx := setupTestStore(t, nil)
	row := store.EmbeddingRow{Embedding: vec(1, 1, 1, 1), EmbeddingModel: "test-model"}
	m := &store.Memory{Content: []byte("delete me"), Namespace: "default"}
	mustInsert(t, ctx, s, m, row)

	require.NoError(t, s.UpdateLabels(ctx, m.ID, []string{"updated"}))
	got, err := s.GetMemoryByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"updated"}, got.Labels)

	require.NoError(t, s.DeleteMemory(ctx, m.ID))
	_, err = s.GetMemoryByID(ctx, m.ID)
	assert.ErrorIs(t, err, memerr.ErrNotFound)

	var remaining int
	require.NoError(t, s.Pool().QueryRow(ctx, `SELECT count(*) FROM memory_4 WHERE memory_id = $1`, m.ID).Scan(&remaining))
	assert.Zero(t, remaining, "expected no embedding rows to survive the memory's deletion")
}

func TestCountStatsReportsMatchedLabels(t *testing.T) {
	s, ctx := setupTestStore(t, nil)
	row := store.EmbeddingRow{Embedding: vec(1, 0, 0, 0), EmbeddingModel: "m"}

	for _, labels := range [][]string{{"beer", "ale"}, {"wine", "red"}, {"beer", "stout"}} {
		m := &store.Memory{Content: []byte(labels[0]), Namespace: "default", Labels: labels}
		mustInsert(t, ctx, s, m, row)
	}

	stats, err := s.CountStats(ctx, "default", store.Filter{
		IncludeLabels: []string{"beer"},
		ExcludeLabels: []string{"stout"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.Matching)
	assert.Contains(t, stats.LabelsMatched, "beer")
}

func TestInsertMemoryProbesDuplicatesInSameTransaction(t *testing.T) {
	s, ctx := setupTestStore(t, nil)
	row := store.EmbeddingRow{Embedding: vec(1, 0, 0, 0), EmbeddingModel: "m"}

	first := &store.Memory{Content: []byte("hello world"), Namespace: "default"}
	duplicates, err := s.InsertMemory(ctx, first, "memory_4", row, 2)
	require.NoError(t, err)
	assert.Empty(t, duplicates, "an empty table has no duplicate candidates")

	second := &store.Memory{Content: []byte("hello world"), Namespace: "default"}
	duplicates, err = s.InsertMemory(ctx, second, "memory_4", row, 2)
	require.NoError(t, err)
	require.NotEmpty(t, duplicates)
	assert.Equal(t, first.ID, duplicates[0].Memory.ID)
	assert.InDelta(t, 1.0, duplicates[0].Similarity, 1e-6)
}

func TestSearchSimilarOrdersByDistance(t *testing.T) {
	s, ctx := setupTestStore(t, nil)

	near := &store.Memory{Content: []byte("near"), Namespace: "default"}
	mustInsert(t, ctx, s, near, store.EmbeddingRow{Embedding: vec(1, 0, 0, 0), EmbeddingModel: "m"})
	far := &store.Memory{Content: []byte("far"), Namespace: "default"}
	mustInsert(t, ctx, s, far, store.EmbeddingRow{Embedding: vec(0, 1, 0, 0), EmbeddingModel: "m"})

	results, err := s.SearchSimilar(ctx, "default", "memory_4", "m", vec(1, 0, 0, 0), store.Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near.ID, results[0].Memory.ID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestEncryptedContentSkippedOnReadFailure(t *testing.T) {
	sealer := crypto.New("correct horse battery staple")
	s, ctx := setupTestStore(t, sealer)

	blob, err := sealer.Seal([]byte("top secret"))
	require.NoError(t, err)
	m := &store.Memory{Content: blob, Enc: true, Namespace: "default"}
	mustInsert(t, ctx, s, m, store.EmbeddingRow{Embedding: vec(1, 2, 3, 4), EmbeddingModel: "m"})

	plain, err := s.DecodedContent(m)
	require.NoError(t, err)
	assert.Equal(t, "top secret", plain)

	noKeyStore, _ := setupTestStore(t, nil)
	_, err = noKeyStore.DecodedContent(m)
	assert.Error(t, err)
}

func TestLabelFilterFuzzyMatch(t *testing.T) {
	s, ctx := setupTestStore(t, nil)
	row := store.EmbeddingRow{Embedding: vec(1, 1, 0, 0), EmbeddingModel: "m"}

	a := &store.Memory{Content: []byte("a"), Namespace: "default", Labels: []string{"golang-tips"}}
	mustInsert(t, ctx, s, a, row)
	b := &store.Memory{Content: []byte("b"), Namespace: "default", Labels: []string{"python-tips"}}
	mustInsert(t, ctx, s, b, row)

	results, err := s.ListRecent(ctx, "default", store.Filter{IncludeLabels: []string{"golang"}}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].ID)
}
