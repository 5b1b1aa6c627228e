package migrate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrateV2ToV3 rewrites state.embedding_tables from a list of table names
// into a mapping of table name to the list of embedding models actually
// present in that table for each memory.
func migrateV2ToV3(ctx context.Context, conn *pgx.Conn) error {
	rows, err := conn.Query(ctx, `
SELECT id, state->'embedding_tables'
FROM memories
WHERE state->'embedding_tables' IS NOT NULL
AND jsonb_typeof(state->'embedding_tables') = 'array'`)
	if err != nil {
		return fmt.Errorf("migrate v2->v3: find array-format memories: %w", err)
	}
	type pending struct {
		id     int64
		tables []string
	}
	var work []pending
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("migrate v2->v3: scan: %w", err)
		}
		var tables []string
		if err := json.Unmarshal(raw, &tables); err != nil {
			rows.Close()
			return fmt.Errorf("migrate v2->v3: decode embedding_tables for memory %d: %w", id, err)
		}
		work = append(work, pending{id: id, tables: tables})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range work {
		newStructure := map[string][]string{}
		for _, table := range p.tables {
			exists, err := tableExists(ctx, conn, table)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			modelRows, err := conn.Query(ctx, fmt.Sprintf(`SELECT DISTINCT embedding_model FROM %s WHERE memory_id = $1`, table), p.id)
			if err != nil {
				return fmt.Errorf("migrate v2->v3: query models in %s: %w", table, err)
			}
			var models []string
			for modelRows.Next() {
				var model string
				if err := modelRows.Scan(&model); err != nil {
					modelRows.Close()
					return err
				}
				models = append(models, model)
			}
			modelRows.Close()
			if len(models) > 0 {
				newStructure[table] = models
			}
		}
		encoded, err := json.Marshal(newStructure)
		if err != nil {
			return fmt.Errorf("migrate v2->v3: encode new structure for memory %d: %w", p.id, err)
		}
		if _, err := conn.Exec(ctx, `
UPDATE memories SET state = jsonb_set(COALESCE(state, '{}'::jsonb), '{embedding_tables}', $1::jsonb, true)
WHERE id = $2`, encoded, p.id); err != nil {
			return fmt.Errorf("migrate v2->v3: update memory %d: %w", p.id, err)
		}
	}

	logStep(3, "migrate: rewrote embedding_tables from array to object", "memories", len(work))
	return setVersion(ctx, conn, 3)
}
