package tools

import (
	"github.com/chirino/memory-mcp/internal/store"
)

// memoryView decodes m's content and renders the common memory shape shared
// by retrieve_memories, get_memory, and random_memory. A decryption failure
// propagates rather than silently substituting garbage; the caller decides
// whether to skip (listings) or fail (singleton lookups).
func memoryView(d *Deps, m *store.Memory) (Result, error) {
	content, err := d.Store.DecodedContent(m)
	if err != nil {
		return nil, err
	}
	return Result{
		"id":        clientFacingID(d.Namespace, m),
		"content":   content,
		"labels":    labelsOrEmpty(m.Labels),
		"source":    m.Source,
		"timestamp": m.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

func labelsOrEmpty(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
