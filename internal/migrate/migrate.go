// Package migrate brings a Postgres database hosting the memory service's
// schema from any previously supported version up to the current one. It is
// coordinated by a named advisory lock so that multiple service instances
// starting simultaneously don't race each other: exactly one instance runs
// the chain while the rest log and move on.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CurrentVersion is the schema version a freshly migrated database ends up
// at. Keep in sync with postgres.CurrentSchemaVersion.
const CurrentVersion = 7

// lockID is an arbitrary, stable 64-bit identifier for the migration
// advisory lock. Any integer works as long as every process agrees on it.
const lockID = 123456789

// Run acquires the migration advisory lock and, if it wins the race, brings
// the database up to CurrentVersion. If another process already holds the
// lock, Run logs and returns nil without doing anything; the other process
// is responsible for the work.
func Run(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("migrate: acquire connection: %w", err)
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, int64(lockID)).Scan(&acquired); err != nil {
		return fmt.Errorf("migrate: try advisory lock: %w", err)
	}
	if !acquired {
		log.Info("migrate: another process is running migrations, skipping")
		return nil
	}
	defer func() {
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, int64(lockID)); err != nil {
			log.Error("migrate: release advisory lock failed", "err", err)
		}
	}()

	log.Info("migrate: advisory lock acquired")
	return runLocked(ctx, conn.Conn())
}

func runLocked(ctx context.Context, conn *pgx.Conn) error {
	stateExists, err := tableExists(ctx, conn, "system_state")
	if err != nil {
		return err
	}

	if !stateExists {
		legacyTables, err := legacyEmbeddingTables(ctx, conn)
		if err != nil {
			return err
		}
		if len(legacyTables) > 0 {
			log.Info("migrate: detected pre-V2 schema", "tables", legacyTables)
			if err := migrateV1ToV2(ctx, conn, legacyTables); err != nil {
				return err
			}
		} else {
			log.Info("migrate: fresh install, creating current schema directly")
			if err := createCurrentSchema(ctx, conn); err != nil {
				return err
			}
			return nil
		}
	}

	version, err := readVersion(ctx, conn)
	if err != nil {
		return err
	}
	log.Info("migrate: detected schema version", "version", version)

	steps := []struct {
		from int
		run  func(context.Context, *pgx.Conn) error
	}{
		{1, migrateV1ToV2Noop},
		{2, migrateV2ToV3},
		{3, migrateV3ToV4},
		{4, migrateV4ToV5},
		{5, migrateV5ToV6},
		{6, migrateV6ToV7},
	}
	for _, step := range steps {
		if version > step.from {
			continue
		}
		if err := step.run(ctx, conn); err != nil {
			return fmt.Errorf("migrate: step from v%d failed: %w", step.from, err)
		}
		version = step.from + 1
		log.Info("migrate: advanced schema", "version", version)
	}

	// Idempotent safety net: ensure base tables exist even if every
	// migration step above was a no-op because they already did.
	if err := ensureBaseTables(ctx, conn); err != nil {
		return err
	}
	return nil
}

func tableExists(ctx context.Context, conn *pgx.Conn, name string) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("migrate: check table %s exists: %w", name, err)
	}
	return exists, nil
}

func columnExists(ctx context.Context, conn *pgx.Conn, table, column string) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM information_schema.columns
	WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
)`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("migrate: check column %s.%s exists: %w", table, column, err)
	}
	return exists, nil
}

func readVersion(ctx context.Context, conn *pgx.Conn) (int, error) {
	exists, err := columnExists(ctx, conn, "system_state", "key")
	if err != nil {
		return 0, err
	}
	if !exists {
		// Fixed-column (pre-V5) system_state: db_version lives in its own column.
		var version int
		err := conn.QueryRow(ctx, `SELECT db_version FROM system_state WHERE id = 1`).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return 1, nil
		}
		if err != nil {
			return 0, fmt.Errorf("migrate: read legacy db_version: %w", err)
		}
		return version, nil
	}

	var raw []byte
	err = conn.QueryRow(ctx, `SELECT value FROM system_state WHERE key = 'db_version'`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 4, nil // key-value table exists but no version recorded: assume just-created V4→V5 boundary
	}
	if err != nil {
		return 0, fmt.Errorf("migrate: read db_version: %w", err)
	}
	version, err := parseJSONInt(raw)
	if err != nil {
		return 0, fmt.Errorf("migrate: parse db_version: %w", err)
	}
	return version, nil
}

func setVersion(ctx context.Context, conn *pgx.Conn, version int) error {
	kv, err := columnExists(ctx, conn, "system_state", "key")
	if err != nil {
		return err
	}
	if !kv {
		// Fixed-column (pre-V5) system_state: db_version lives in its own column.
		if _, err := conn.Exec(ctx, `UPDATE system_state SET db_version = $1 WHERE id = 1`, version); err != nil {
			return fmt.Errorf("migrate: set legacy db_version to %d: %w", version, err)
		}
		return nil
	}
	_, err = conn.Exec(ctx, `
INSERT INTO system_state (key, value, created_at, updated_at)
VALUES ('db_version', $1, now(), now())
ON CONFLICT (key) DO UPDATE SET value = $1, updated_at = now()`, encodeJSONInt(version))
	if err != nil {
		return fmt.Errorf("migrate: set db_version to %d: %w", version, err)
	}
	return nil
}

func parseJSONInt(raw []byte) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func encodeJSONInt(n int) []byte {
	b, _ := json.Marshal(n)
	return b
}
