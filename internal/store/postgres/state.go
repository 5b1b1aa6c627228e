package postgres

import (
	"encoding/json"

	"github.com/chirino/memory-mcp/internal/store"
)

func encodeState(s store.State) ([]byte, error) {
	if s.EmbeddingTables == nil {
		s.EmbeddingTables = map[string][]string{}
	}
	return json.Marshal(s)
}

func decodeState(raw []byte, out *store.State) error {
	if len(raw) == 0 {
		out.EmbeddingTables = map[string][]string{}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	if out.EmbeddingTables == nil {
		out.EmbeddingTables = map[string][]string{}
	}
	return nil
}
