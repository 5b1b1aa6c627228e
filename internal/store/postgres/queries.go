package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chirino/memory-mcp/internal/store"
)

// oversampleFactor controls how many extra rows are fetched to absorb
// decryption failures when content encryption is enabled.
const oversampleFactor = 2

func (s *Store) fetchLimit(want int) int {
	if s.EncryptionEnabled() {
		return want * oversampleFactor
	}
	return want
}

// Scored pairs a memory with its similarity score (populated for
// semantic-search results and duplicate-probe candidates).
type Scored struct {
	Memory     store.Memory
	Similarity float64 // cosine similarity in [-1, 1], set by SearchSimilar and nearestForDuplicateTx
}

// ListRecent returns memories ordered by timestamp descending, applying
// filter and oversampling to absorb decryption failures. The caller should
// decode content and stop once it has `want` decodable items.
func (s *Store) ListRecent(ctx context.Context, namespace string, f store.Filter, want int) ([]store.Memory, error) {
	args := []any{}
	where, args := filterClause("memories", namespace, f, args)
	args = append(args, s.fetchLimit(want))
	sql := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY timestamp DESC LIMIT $%d`,
		memoryColumns, where, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent: %w", err)
	}
	defer rows.Close()

	var out []store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SearchSimilar performs a semantic search: memories joined to the given
// embedding table on memory_id, filtered by embedding_model, namespace,
// encryption availability (encrypted rows are left out when no key is
// configured), and the label/source filter grammar, ordered by cosine
// similarity descending then timestamp descending.
func (s *Store) SearchSimilar(ctx context.Context, namespace, table, model string, query []float32, f store.Filter, want int) ([]Scored, error) {
	if !validTableName(table) {
		return nil, fmt.Errorf("postgres: invalid embedding table %q", table)
	}
	args := []any{pgvector.NewVector(query)}
	where, args := filterClause("m", namespace, f, args)
	if !s.EncryptionEnabled() {
		where += " AND NOT m.enc"
	}
	args = append(args, model)
	modelPlaceholder := len(args)
	args = append(args, s.fetchLimit(want))
	limitPlaceholder := len(args)

	sql := fmt.Sprintf(`
SELECT %s, 1 - (e.embedding <=> $1) AS similarity
FROM memories m
JOIN %s e ON e.memory_id = m.id
WHERE %s AND e.embedding_model = $%d
ORDER BY e.embedding <=> $1 ASC, m.timestamp DESC
LIMIT $%d`, prefixColumns("m"), table, where, modelPlaceholder, limitPlaceholder)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search similar: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var sc Scored
		var state []byte
		var source *string
		if err := rows.Scan(&sc.Memory.ID, &sc.Memory.ContentID, &sc.Memory.Content, &sc.Memory.Enc,
			&sc.Memory.Namespace, &sc.Memory.Labels, &source, &sc.Memory.Timestamp, &state, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan scored memory: %w", err)
		}
		if source != nil {
			sc.Memory.Source = *source
		}
		if err := decodeState(state, &sc.Memory.State); err != nil {
			return nil, fmt.Errorf("postgres: decode state: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// prefixColumns renders memoryColumns qualified by alias, e.g. "m.id, m.content_id, ...".
func prefixColumns(alias string) string {
	cols := []string{"id", "content_id", "content", "enc", "namespace", "labels", "source", "timestamp", "state"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// nearestForDuplicateTx returns up to k memories nearest to query in the
// same namespace/model, ordered by similarity descending, for store_memory's
// duplicate-detection probe. Runs on the caller's transaction so the probe
// and the pending insert share one consistent snapshot.
func nearestForDuplicateTx(ctx context.Context, tx pgx.Tx, namespace, table, model string, query []float32, k int) ([]Scored, error) {
	if !validTableName(table) {
		return nil, fmt.Errorf("postgres: invalid embedding table %q", table)
	}
	args := []any{pgvector.NewVector(query)}
	nsClause := "true"
	if namespace != "" {
		args = append(args, namespace)
		nsClause = fmt.Sprintf("m.namespace = $%d", len(args))
	}
	args = append(args, model, k)
	sql := fmt.Sprintf(`
SELECT %s, 1 - (e.embedding <=> $1) AS similarity
FROM memories m
JOIN %s e ON e.memory_id = m.id
WHERE %s AND e.embedding_model = $%d
ORDER BY e.embedding <=> $1 ASC
LIMIT $%d`, prefixColumns("m"), table, nsClause, len(args)-1, len(args))

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest for duplicate: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var sc Scored
		var state []byte
		var source *string
		if err := rows.Scan(&sc.Memory.ID, &sc.Memory.ContentID, &sc.Memory.Content, &sc.Memory.Enc,
			&sc.Memory.Namespace, &sc.Memory.Labels, &source, &sc.Memory.Timestamp, &state, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan duplicate candidate: %w", err)
		}
		if source != nil {
			sc.Memory.Source = *source
		}
		_ = decodeState(state, &sc.Memory.State)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RandomMemory returns up to `want` randomly ordered memories matching the
// filter, oversampled to absorb decryption failures.
func (s *Store) RandomMemory(ctx context.Context, namespace string, f store.Filter, want int) ([]store.Memory, error) {
	args := []any{}
	where, args := filterClause("memories", namespace, f, args)
	args = append(args, s.fetchLimit(want))
	sql := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY random() LIMIT $%d`,
		memoryColumns, where, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: random memory: %w", err)
	}
	defer rows.Close()

	var out []store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Stats holds memory_stats counting results.
type Stats struct {
	Matching      int64
	Total         int64
	LabelsMatched []string
	SourceMatched []string
}

// CountStats computes the matching/total counts and, when label or source
// include-filters are present, the distinct label/source values that
// matched an include pattern.
func (s *Store) CountStats(ctx context.Context, namespace string, f store.Filter) (Stats, error) {
	var stats Stats

	totalArgs := []any{}
	totalWhere, totalArgs := filterClause("memories", namespace, store.Filter{}, totalArgs)
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM memories WHERE %s`, totalWhere), totalArgs...).
		Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("postgres: count total: %w", err)
	}

	matchArgs := []any{}
	matchWhere, matchArgs := filterClause("memories", namespace, f, matchArgs)
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM memories WHERE %s`, matchWhere), matchArgs...).
		Scan(&stats.Matching); err != nil {
		return stats, fmt.Errorf("postgres: count matching: %w", err)
	}

	if len(f.IncludeLabels) > 0 {
		labels, err := s.matchedLabels(ctx, namespace, f.IncludeLabels)
		if err != nil {
			return stats, err
		}
		stats.LabelsMatched = labels
	}
	if f.Source != "" && !f.ExcludeSource {
		sources, err := s.matchedSources(ctx, namespace, f.Source)
		if err != nil {
			return stats, err
		}
		stats.SourceMatched = sources
	}
	return stats, nil
}

func (s *Store) matchedLabels(ctx context.Context, namespace string, includes []string) ([]string, error) {
	var args []any
	nsClause := "true"
	if namespace != "" {
		args = append(args, namespace)
		nsClause = fmt.Sprintf("m.namespace = $%d", len(args))
	}
	var ors []string
	for _, term := range includes {
		args = append(args, "%"+lower(term)+"%")
		ors = append(ors, fmt.Sprintf("lower(l) LIKE $%d", len(args)))
	}
	sql := fmt.Sprintf(`
SELECT DISTINCT l
FROM memories m, unnest(m.labels) AS l
WHERE %s AND (%s)`, nsClause, joinOR(ors))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: matched labels: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) matchedSources(ctx context.Context, namespace, term string) ([]string, error) {
	var args []any
	nsClause := "true"
	if namespace != "" {
		args = append(args, namespace)
		nsClause = fmt.Sprintf("namespace = $%d", len(args))
	}
	args = append(args, "%"+lower(term)+"%")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT DISTINCT source FROM memories
WHERE %s AND source IS NOT NULL AND lower(source) LIKE $%d`, nsClause, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: matched sources: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
