package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrateV5ToV6 adds the namespace-scoped content_id column to memories,
// back-filling existing rows with content_id = id so that pre-existing
// references remain stable.
func migrateV5ToV6(ctx context.Context, conn *pgx.Conn) error {
	exists, err := tableExists(ctx, conn, "memories")
	if err != nil {
		return err
	}
	if !exists {
		return setVersion(ctx, conn, 6)
	}

	hasContentID, err := columnExists(ctx, conn, "memories", "content_id")
	if err != nil {
		return err
	}
	if hasContentID {
		return setVersion(ctx, conn, 6)
	}

	if _, err := conn.Exec(ctx, `ALTER TABLE memories ADD COLUMN content_id BIGINT`); err != nil {
		return fmt.Errorf("migrate v5->v6: add content_id column: %w", err)
	}
	tag, err := conn.Exec(ctx, `UPDATE memories SET content_id = id`)
	if err != nil {
		return fmt.Errorf("migrate v5->v6: backfill content_id: %w", err)
	}
	if _, err := conn.Exec(ctx, `ALTER TABLE memories ALTER COLUMN content_id SET NOT NULL`); err != nil {
		return fmt.Errorf("migrate v5->v6: set content_id not null: %w", err)
	}
	if _, err := conn.Exec(ctx, `
CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_namespace_content_id ON memories (namespace, content_id DESC)`); err != nil {
		return fmt.Errorf("migrate v5->v6: create namespace/content_id index: %w", err)
	}

	logStep(6, "migrate: added content_id for namespace-scoped numbering", "rows", tag.RowsAffected())
	return setVersion(ctx, conn, 6)
}
