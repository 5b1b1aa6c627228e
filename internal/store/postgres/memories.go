package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chirino/memory-mcp/internal/memerr"
	"github.com/chirino/memory-mcp/internal/store"
)

// InsertMemory inserts m and its first embedding row atomically. When
// dupProbe > 0, up to that many nearest existing memories under the same
// namespace/model are probed first, inside the same transaction as the
// insert, and returned for the caller's duplicate warnings. m.ID,
// m.ContentID and m.Timestamp are populated from the database on return.
// content_id is computed as MAX(content_id)+1 scoped to m.Namespace, in the
// same INSERT statement, so it is assigned under the transaction's isolation
// guarantees rather than via a separate read-then-write race window.
func (s *Store) InsertMemory(ctx context.Context, m *store.Memory, table string, row store.EmbeddingRow, dupProbe int) ([]Scored, error) {
	var duplicates []Scored
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if dupProbe > 0 {
			var err error
			duplicates, err = nearestForDuplicateTx(ctx, tx, m.Namespace, table, row.EmbeddingModel, row.Embedding, dupProbe)
			if err != nil {
				return err
			}
		}
		return s.insertMemoryTx(ctx, tx, m, table, row)
	})
	if err != nil {
		return nil, err
	}
	return duplicates, nil
}

func (s *Store) insertMemoryTx(ctx context.Context, tx pgx.Tx, m *store.Memory, table string, row store.EmbeddingRow) error {
	m.State.AddEmbeddingTable(table, row.EmbeddingModel)
	state, err := encodeState(m.State)
	if err != nil {
		return fmt.Errorf("postgres: encode state: %w", err)
	}

	content := m.Content
	m.Enc = s.sealer != nil && s.sealer.Enabled()
	if m.Enc {
		content, err = s.sealer.Seal(m.Content)
		if err != nil {
			return fmt.Errorf("postgres: seal content: %w", err)
		}
	}

	const insertMemory = `
INSERT INTO memories (content, enc, namespace, labels, source, content_id, state)
VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(content_id), 0) + 1 FROM memories WHERE namespace = $3), $6)
RETURNING id, content_id, timestamp`

	if err := tx.QueryRow(ctx, insertMemory, content, m.Enc, m.Namespace, m.Labels, nullableString(m.Source), state).
		Scan(&m.ID, &m.ContentID, &m.Timestamp); err != nil {
		return fmt.Errorf("postgres: insert memory: %w", err)
	}

	insertEmbedding := fmt.Sprintf(`
INSERT INTO %s (memory_id, embedding, namespace, embedding_model)
VALUES ($1, $2, $3, $4)
ON CONFLICT (memory_id, embedding_model) DO UPDATE SET embedding = EXCLUDED.embedding`, table)
	if _, err := tx.Exec(ctx, insertEmbedding, m.ID, pgvector.NewVector(row.Embedding), m.Namespace, row.EmbeddingModel); err != nil {
		return fmt.Errorf("postgres: insert embedding: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetMemoryByID fetches a memory by its internal ID.
func (s *Store) GetMemoryByID(ctx context.Context, id int64) (*store.Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get memory: %w", err)
	}
	return m, nil
}

// GetMemoryByContentID resolves a namespace-scoped content_id to its memory.
func (s *Store) GetMemoryByContentID(ctx context.Context, namespace string, contentID int64) (*store.Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE namespace = $1 AND content_id = $2`, namespace, contentID)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get memory by content_id: %w", err)
	}
	return m, nil
}

// UpdateLabels overwrites the labels for a memory.
func (s *Store) UpdateLabels(ctx context.Context, id int64, labels []string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memories SET labels = $1 WHERE id = $2`, labels, id)
	if err != nil {
		return fmt.Errorf("postgres: update labels: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memerr.ErrNotFound
	}
	return nil
}

// DeleteMemory removes a memory and every embedding row referencing it.
// Embedding tables are deleted from best-effort, by name, using the
// memory's recorded state.embedding_tables; the ON DELETE CASCADE on
// memory_<D> tables is a safety net for tables the state didn't list (e.g.
// a concurrent re-embed that hadn't updated state.embedding_tables yet).
func (s *Store) DeleteMemory(ctx context.Context, id int64) error {
	m, err := s.GetMemoryByID(ctx, id)
	if err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for table := range m.State.EmbeddingTables {
			if !validTableName(table) {
				continue
			}
			// Best-effort: a table referenced by an older memory's state may
			// have been dropped by an earlier migration.
			_, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE memory_id = $1`, table), id)
			if err != nil && !isMissingTable(err) {
				return fmt.Errorf("postgres: delete embeddings from %s: %w", table, err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("postgres: delete memory: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return memerr.ErrNotFound
		}
		return nil
	})
}

var tableNameRe = mustCompileTableName()

func validTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

func isMissingTable(err error) bool {
	return err != nil && pgErrCode(err) == "42P01"
}
