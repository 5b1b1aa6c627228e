package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// migrateV1ToV2 splits single-table memory_<D> layouts (content + embedding
// in one row) into the shared `memories` table plus embedding-only
// memory_<D> tables. Content is deduplicated across tables by SHA-256 so
// that a memory embedded under two models collapses to one memories row.
func migrateV1ToV2(ctx context.Context, conn *pgx.Conn, legacyTables []string) error {
	if err := ensureBaseTables(ctx, conn); err != nil {
		return err
	}
	if err := setVersion(ctx, conn, 1); err != nil {
		return err
	}

	contentToMemoryID := map[string]int64{}

	for _, table := range legacyTables {
		rows, err := conn.Query(ctx, fmt.Sprintf(`
SELECT content, namespace, labels, source, timestamp, enc
FROM %s ORDER BY id`, table))
		if err != nil {
			return fmt.Errorf("migrate v1->v2: read %s: %w", table, err)
		}
		type legacyRow struct {
			content   []byte
			namespace string
			labels    []string
			source    *string
			timestamp time.Time
			enc       bool
		}
		var legacyRows []legacyRow
		for rows.Next() {
			var r legacyRow
			if err := rows.Scan(&r.content, &r.namespace, &r.labels, &r.source, &r.timestamp, &r.enc); err != nil {
				rows.Close()
				return fmt.Errorf("migrate v1->v2: scan %s: %w", table, err)
			}
			legacyRows = append(legacyRows, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range legacyRows {
			hash := sha256.Sum256(r.content)
			key := hex.EncodeToString(hash[:])
			if _, ok := contentToMemoryID[key]; ok {
				continue
			}
			namespace := r.namespace
			if namespace == "" {
				namespace = "default"
			}
			var memoryID int64
			err := conn.QueryRow(ctx, `
INSERT INTO memories (content, namespace, labels, source, timestamp, enc, content_id, state)
VALUES ($1, $2, $3, $4, $5, $6,
	(SELECT COALESCE(MAX(content_id), 0) + 1 FROM memories WHERE namespace = $2),
	$7)
RETURNING id`, r.content, namespace, r.labels, r.source, r.timestamp, r.enc,
				[]byte(fmt.Sprintf(`{"embedding_tables":["%s"]}`, table))).Scan(&memoryID)
			if err != nil {
				return fmt.Errorf("migrate v1->v2: insert memory from %s: %w", table, err)
			}
			contentToMemoryID[key] = memoryID
		}
	}

	for _, table := range legacyTables {
		dims, err := dimsFromTableName(table)
		if err != nil {
			return err
		}

		type embRow struct {
			content []byte
			vec     pgvector.Vector
			ns      string
			model   string
		}
		rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT content, embedding, namespace, embedding_model FROM %s`, table))
		if err != nil {
			return fmt.Errorf("migrate v1->v2: read embeddings %s: %w", table, err)
		}
		var embRows []embRow
		for rows.Next() {
			var r embRow
			if err := rows.Scan(&r.content, &r.vec, &r.ns, &r.model); err != nil {
				rows.Close()
				return fmt.Errorf("migrate v1->v2: scan embeddings %s: %w", table, err)
			}
			embRows = append(embRows, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)); err != nil {
			return fmt.Errorf("migrate v1->v2: drop legacy table %s: %w", table, err)
		}
		if err := createEmbeddingTable(ctx, conn, table, dims); err != nil {
			return err
		}

		for _, r := range embRows {
			hash := sha256.Sum256(r.content)
			key := hex.EncodeToString(hash[:])
			memoryID, ok := contentToMemoryID[key]
			if !ok {
				continue
			}
			namespace := r.ns
			if namespace == "" {
				namespace = "default"
			}
			if _, err := conn.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (memory_id, embedding, namespace, embedding_model)
VALUES ($1, $2, $3, $4)
ON CONFLICT (memory_id, embedding_model) DO NOTHING`, table), memoryID, r.vec, namespace, r.model); err != nil {
				return fmt.Errorf("migrate v1->v2: reinsert embedding into %s: %w", table, err)
			}
		}
	}

	logStep(2, "migrate: split single-table layout into memories + embedding tables", "memories", len(contentToMemoryID))
	return setVersion(ctx, conn, 2)
}

// migrateV1ToV2Noop advances an already-split (V1 system_state but no legacy
// tables found) database straight to V2 with no data movement.
func migrateV1ToV2Noop(ctx context.Context, conn *pgx.Conn) error {
	return setVersion(ctx, conn, 2)
}

func dimsFromTableName(table string) (int, error) {
	var dims int
	if _, err := fmt.Sscanf(table, "memory_%d", &dims); err != nil {
		return 0, fmt.Errorf("migrate: parse dims from table name %q: %w", table, err)
	}
	return dims, nil
}

func createEmbeddingTable(ctx context.Context, conn *pgx.Conn, table string, dims int) error {
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
CREATE INDEX IF NOT EXISTS idx_embedding_%[2]d ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, table, dims)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: create embedding table %s: %w", table, err)
	}
	return nil
}
