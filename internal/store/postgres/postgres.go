// Package postgres implements the storage layer over a pgxpool-pooled
// Postgres database with the pgvector extension installed. It owns the
// split-table schema described by the memory service: a single `memories`
// table for content and metadata, one `memory_<D>` table per observed
// embedding dimension, a `system_state` key-value table, and `label_tokens`
// for trending-label support.
package postgres

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chirino/memory-mcp/internal/crypto"
	"github.com/chirino/memory-mcp/internal/store"
)

// CurrentSchemaVersion is the schema version this binary expects. The
// migration engine brings any older database up to this version before the
// store begins serving requests.
const CurrentSchemaVersion = 7

// Store is the Postgres-backed implementation of the memory storage layer.
type Store struct {
	pool   *pgxpool.Pool
	sealer *crypto.Sealer
}

// Open connects to databaseURL and returns a Store. The caller is
// responsible for running migrations (see internal/migrate) before issuing
// requests against a fresh or legacy database.
func Open(ctx context.Context, databaseURL string, sealer *crypto.Sealer) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool, sealer: sealer}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pgxpool, used by the migration engine to open
// its own connection and advisory lock.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// EmbeddingTable returns the table name used for a given dimensionality.
func EmbeddingTable(dims int) string {
	return fmt.Sprintf("memory_%d", dims)
}

// EnsureEmbeddingTable creates the memory_<D> table and its indexes if they
// do not already exist. Safe to call repeatedly and concurrently.
func (s *Store) EnsureEmbeddingTable(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("postgres: invalid embedding dimension %d", dims)
	}
	table := EmbeddingTable(dims)
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	memory_id       BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	embedding       vector(%[2]d) NOT NULL,
	namespace       TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	PRIMARY KEY (memory_id, embedding_model)
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_namespace ON %[1]s (namespace);
CREATE INDEX IF NOT EXISTS idx_%[1]s_model ON %[1]s (embedding_model);
CREATE INDEX IF NOT EXISTS idx_%[1]s_memory_id ON %[1]s (memory_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_hnsw ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, table, dims)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: ensure embedding table %s: %w", table, err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.Error("postgres: rollback failed", "err", rbErr)
			}
			return
		}
		err = tx.Commit(ctx)
	}()
	err = fn(tx)
	return err
}

func scanMemory(row pgx.Row) (*store.Memory, error) {
	var m store.Memory
	var state []byte
	var source *string
	if err := row.Scan(&m.ID, &m.ContentID, &m.Content, &m.Enc, &m.Namespace, &m.Labels, &source, &m.Timestamp, &state); err != nil {
		return nil, err
	}
	if source != nil {
		m.Source = *source
	}
	if err := decodeState(state, &m.State); err != nil {
		return nil, fmt.Errorf("postgres: decode state: %w", err)
	}
	return &m, nil
}

const memoryColumns = `id, content_id, content, enc, namespace, labels, source, timestamp, state`
