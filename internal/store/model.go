// Package store defines the data model shared by the storage layer and the
// tool layer, independent of the concrete backend (Postgres+pgvector).
package store

import (
	"strings"
	"time"
)

// Memory is the canonical stored record.
type Memory struct {
	ID        int64
	ContentID int64
	Content   []byte
	Enc       bool
	Namespace string
	Labels    []string
	Source    string
	Timestamp time.Time
	State     State
}

// State is a memory's structured metadata.
type State struct {
	// EmbeddingTables maps table name (e.g. "memory_768") to the list of
	// embedding model names that populated it for this memory.
	EmbeddingTables map[string][]string `json:"embedding_tables"`
}

// AddEmbeddingTable records that table/model now has an embedding row for
// this memory, without introducing a duplicate entry.
func (s *State) AddEmbeddingTable(table, model string) {
	if s.EmbeddingTables == nil {
		s.EmbeddingTables = map[string][]string{}
	}
	for _, m := range s.EmbeddingTables[table] {
		if m == model {
			return
		}
	}
	s.EmbeddingTables[table] = append(s.EmbeddingTables[table], model)
}

// EmbeddingRow is one row in a per-dimension memory_<D> table.
type EmbeddingRow struct {
	MemoryID       int64
	Embedding      []float32
	Namespace      string
	EmbeddingModel string
}

// LabelToken is a trending-label score accumulator.
type LabelToken struct {
	Namespace string
	Token     string
	Count     int64
	LastSeen  time.Time
	LastDecay time.Time
}

// Filter describes the include/exclude label and source grammar shared by
// retrieve_memories, random_memory, and memory_stats.
type Filter struct {
	IncludeLabels []string
	ExcludeLabels []string
	Source        string
	ExcludeSource bool
}

// ParseLabels splits a comma-separated labels parameter into include and
// exclude terms; a leading '!' marks a term as an exclusion.
func ParseLabels(raw string) (include, exclude []string) {
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if strings.HasPrefix(term, "!") {
			if rest := strings.TrimPrefix(term, "!"); rest != "" {
				exclude = append(exclude, rest)
			}
			continue
		}
		include = append(include, term)
	}
	return include, exclude
}

// ParseSource splits a source filter term into its value and whether it is negated.
func ParseSource(raw string) (value string, negate bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "!") {
		return strings.TrimPrefix(raw, "!"), true
	}
	return raw, false
}
