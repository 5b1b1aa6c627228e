package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chirino/memory-mcp/internal/store"
)

// UpsertLabelTokens batch-increments the count/last_seen for each token in
// the given namespace. Called fire-and-forget after store_memory commits;
// callers should log and swallow errors rather than fail the store.
func (s *Store) UpsertLabelTokens(ctx context.Context, namespace string, tokens []string, now time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, tok := range tokens {
			batch.Queue(`
INSERT INTO label_tokens (namespace, token, count, last_seen, last_decay)
VALUES ($1, $2, 1, $3, $3)
ON CONFLICT (namespace, token) DO UPDATE SET
	count = label_tokens.count + 1,
	last_seen = $3`, namespace, tok, now)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range tokens {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("postgres: upsert label token: %w", err)
			}
		}
		return nil
	})
}

// ListLabelTokens returns every label token seen in namespace since `since`.
// An empty namespace is the wildcard: tokens from every namespace.
func (s *Store) ListLabelTokens(ctx context.Context, namespace string, since time.Time) ([]store.LabelToken, error) {
	sql := `
SELECT namespace, token, count, last_seen, last_decay
FROM label_tokens
WHERE last_seen >= $1`
	args := []any{since}
	if namespace != "" {
		sql += ` AND namespace = $2`
		args = append(args, namespace)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list label tokens: %w", err)
	}
	defer rows.Close()

	var out []store.LabelToken
	for rows.Next() {
		var t store.LabelToken
		if err := rows.Scan(&t.Namespace, &t.Token, &t.Count, &t.LastSeen, &t.LastDecay); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListLabelsByNamespace returns every (memory_id, labels) pair currently
// stored for namespace, for the trending-labels reverse lookup. An empty
// namespace is the wildcard.
func (s *Store) ListLabelsByNamespace(ctx context.Context, namespace string) (map[int64][]string, error) {
	sql := `SELECT id, labels FROM memories`
	var args []any
	if namespace != "" {
		sql += ` WHERE namespace = $1`
		args = append(args, namespace)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list labels by namespace: %w", err)
	}
	defer rows.Close()

	out := map[int64][]string{}
	for rows.Next() {
		var id int64
		var labels []string
		if err := rows.Scan(&id, &labels); err != nil {
			return nil, err
		}
		out[id] = labels
	}
	return out, rows.Err()
}
