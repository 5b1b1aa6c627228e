package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrateV3ToV4 replaces each embedding table's ivfflat index (capped at
// 2000 dimensions) with an HNSW index, which has no dimension limit.
func migrateV3ToV4(ctx context.Context, conn *pgx.Conn) error {
	rows, err := conn.Query(ctx, `
SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_name ~ '^memory_[0-9]+$'`)
	if err != nil {
		return fmt.Errorf("migrate v3->v4: list embedding tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range tables {
		dims, err := dimsFromTableName(table)
		if err != nil {
			return err
		}
		indexName := fmt.Sprintf("idx_embedding_%d", dims)
		if err := dropIndexIfExists(ctx, conn, indexName); err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, indexName, table)); err != nil {
			return fmt.Errorf("migrate v3->v4: create hnsw index on %s: %w", table, err)
		}
	}

	logStep(4, "migrate: switched embedding indexes to HNSW", "tables", len(tables))
	return setVersion(ctx, conn, 4)
}
