package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/chirino/memory-mcp/internal/memerr"
)

// GetSystemState reads a single key from the system_state table and
// unmarshals its JSON value into out. Returns memerr.ErrNotFound if absent.
func (s *Store) GetSystemState(ctx context.Context, key string, out any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM system_state WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return memerr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: get system_state %s: %w", key, err)
	}
	return json.Unmarshal(raw, out)
}

// SetSystemState upserts key with the JSON-encoded value.
func (s *Store) SetSystemState(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: encode system_state %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO system_state (key, value, created_at, updated_at)
VALUES ($1, $2, now(), now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, raw)
	if err != nil {
		return fmt.Errorf("postgres: set system_state %s: %w", key, err)
	}
	return nil
}

// DeleteSystemState removes a key. Deleting an absent key is not an error.
func (s *Store) DeleteSystemState(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM system_state WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres: delete system_state %s: %w", key, err)
	}
	return nil
}

// ListSystemStatePrefix returns every key/value pair whose key starts with
// prefix, used to bulk-load persisted OAuth tokens at startup.
func (s *Store) ListSystemStatePrefix(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	escaped := strings.ReplaceAll(strings.ReplaceAll(prefix, "\\", "\\\\"), "%", "\\%")
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM system_state WHERE key LIKE $1 ESCAPE '\'`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("postgres: list system_state prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	out := map[string]json.RawMessage{}
	for rows.Next() {
		var key string
		var raw json.RawMessage
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		out[key] = raw
	}
	return out, rows.Err()
}
