package migrate

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
)

// createCurrentSchema builds the V7 schema directly, for a database with no
// system_state table and no legacy memory_<D> tables to migrate from.
func createCurrentSchema(ctx context.Context, conn *pgx.Conn) error {
	if err := ensureBaseTables(ctx, conn); err != nil {
		return err
	}
	return setVersion(ctx, conn, CurrentVersion)
}

// ensureBaseTables creates system_state, memories, and label_tokens if they
// don't already exist. Idempotent; safe to call after every migration step
// as a safety net.
func ensureBaseTables(ctx context.Context, conn *pgx.Conn) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS system_state (
	id         SERIAL PRIMARY KEY,
	key        TEXT UNIQUE NOT NULL,
	value      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS memories (
	id         BIGSERIAL PRIMARY KEY,
	content_id BIGINT NOT NULL,
	content    BYTEA NOT NULL,
	enc        BOOLEAN NOT NULL DEFAULT false,
	namespace  TEXT NOT NULL DEFAULT 'default',
	labels     TEXT[] NOT NULL DEFAULT '{}',
	source     TEXT,
	timestamp  TIMESTAMPTZ NOT NULL DEFAULT now(),
	state      JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories (namespace);
CREATE INDEX IF NOT EXISTS idx_memories_labels ON memories USING gin (labels);
CREATE INDEX IF NOT EXISTS idx_memories_source ON memories (source);
CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories (timestamp DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_namespace_content_id ON memories (namespace, content_id DESC);

CREATE TABLE IF NOT EXISTS label_tokens (
	namespace  TEXT NOT NULL DEFAULT 'default',
	token      TEXT NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0,
	last_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_decay TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, token)
);

CREATE INDEX IF NOT EXISTS idx_label_tokens_namespace ON label_tokens (namespace);
CREATE INDEX IF NOT EXISTS idx_label_tokens_last_seen ON label_tokens (last_seen);
`
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: ensure base tables: %w", err)
	}
	return nil
}

// legacyEmbeddingTables returns the names of memory_<D> tables that still
// carry a `content` column, i.e. the pre-split V1 layout.
func legacyEmbeddingTables(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `
SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_name ~ '^memory_[0-9]+$'`)
	if err != nil {
		return nil, fmt.Errorf("migrate: list memory_* tables: %w", err)
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		candidates = append(candidates, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var legacy []string
	for _, name := range candidates {
		hasContent, err := columnExists(ctx, conn, name, "content")
		if err != nil {
			return nil, err
		}
		if hasContent {
			legacy = append(legacy, name)
		}
	}
	return legacy, nil
}

func dropIndexIfExists(ctx context.Context, conn *pgx.Conn, name string) error {
	if _, err := conn.Exec(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, name)); err != nil {
		return fmt.Errorf("migrate: drop index %s: %w", name, err)
	}
	return nil
}

func logStep(version int, msg string, kv ...any) {
	args := append([]any{"to_version", version}, kv...)
	log.Info(msg, args...)
}
