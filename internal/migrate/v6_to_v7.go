package migrate

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// migrateV6ToV7 adds the label_tokens table backing the trending-labels
// feature.
func migrateV6ToV7(ctx context.Context, conn *pgx.Conn) error {
	exists, err := tableExists(ctx, conn, "label_tokens")
	if err != nil {
		return err
	}
	if !exists {
		if err := ensureBaseTables(ctx, conn); err != nil {
			return err
		}
		logStep(7, "migrate: created label_tokens table")
	}
	return setVersion(ctx, conn, 7)
}
