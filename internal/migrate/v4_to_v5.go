package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrateV4ToV5 collapses a fixed-column system_state table (id, db_version,
// ...) into the flexible key-value schema used from V5 onward.
func migrateV4ToV5(ctx context.Context, conn *pgx.Conn) error {
	hasKeyColumn, err := columnExists(ctx, conn, "system_state", "key")
	if err != nil {
		return err
	}
	if hasKeyColumn {
		return setVersion(ctx, conn, 5)
	}

	if _, err := conn.Exec(ctx, `DROP TABLE IF EXISTS system_state`); err != nil {
		return fmt.Errorf("migrate v4->v5: drop legacy system_state: %w", err)
	}
	if err := ensureBaseTables(ctx, conn); err != nil {
		return err
	}

	logStep(5, "migrate: collapsed system_state into key-value schema")
	return setVersion(ctx, conn, 5)
}
