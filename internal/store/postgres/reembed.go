package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chirino/memory-mcp/internal/store"
)

// UpsertEmbeddingForMemory writes (or replaces) a memory's embedding row in
// table under model, and records the table/model pair in the memory's
// state.embedding_tables. Used by the admin re-embedding worker: each item
// is its own transaction so one failure doesn't abort the whole run.
func (s *Store) UpsertEmbeddingForMemory(ctx context.Context, memoryID int64, namespace, table, model string, vec []float32) error {
	if !validTableName(table) {
		return fmt.Errorf("postgres: invalid embedding table %q", table)
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		insert := fmt.Sprintf(`
INSERT INTO %s (memory_id, embedding, namespace, embedding_model)
VALUES ($1, $2, $3, $4)
ON CONFLICT (memory_id, embedding_model) DO UPDATE SET embedding = EXCLUDED.embedding`, table)
		if _, err := tx.Exec(ctx, insert, memoryID, pgvector.NewVector(vec), namespace, model); err != nil {
			return fmt.Errorf("postgres: upsert embedding: %w", err)
		}

		var raw []byte
		if err := tx.QueryRow(ctx, `SELECT state FROM memories WHERE id = $1 FOR UPDATE`, memoryID).Scan(&raw); err != nil {
			return fmt.Errorf("postgres: load state: %w", err)
		}
		var state store.State
		if err := decodeState(raw, &state); err != nil {
			return fmt.Errorf("postgres: decode state: %w", err)
		}
		state.AddEmbeddingTable(table, model)
		encoded, err := encodeState(state)
		if err != nil {
			return fmt.Errorf("postgres: encode state: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE memories SET state = $1 WHERE id = $2`, encoded, memoryID); err != nil {
			return fmt.Errorf("postgres: update state: %w", err)
		}
		return nil
	})
}

// MemoryIDsForReembed returns the internal IDs, in ascending order, of every memory
// matching namespace (empty = all namespaces), for the admin re-embed
// worker to iterate.
func (s *Store) MemoryIDsForReembed(ctx context.Context, namespace string) ([]int64, error) {
	var rows pgx.Rows
	var err error
	if namespace == "" {
		rows, err = s.pool.Query(ctx, `SELECT id FROM memories ORDER BY id`)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT id FROM memories WHERE namespace = $1 ORDER BY id`, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list memory ids for reembed: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
