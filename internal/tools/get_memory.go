package tools

import (
	"context"
	"errors"
	"time"

	"github.com/chirino/memory-mcp/internal/memerr"
)

// GetMemoryParams are the raw inputs to get_memory.
type GetMemoryParams struct {
	MemoryID int64
}

// GetMemory fetches a single memory by its client-facing ID. Unlike the
// listing tools, a decryption failure here is reported to the caller rather
// than silently skipped.
func GetMemory(ctx context.Context, d *Deps, p GetMemoryParams) Result {
	start := time.Now()
	var t timing

	var view Result
	if err := t.trackDB(func() error {
		m, err := resolveID(ctx, d.Store, d.Namespace, p.MemoryID)
		if err != nil {
			return err
		}
		view, err = memoryView(d, m)
		return err
	}); err != nil {
		if errors.Is(err, memerr.ErrDecryptionFailure) {
			return d.wrapResult(errorResult("decryption failure", err.Error()), &t, time.Since(start))
		}
		return d.wrapResult(errorResult("not found", err.Error()), &t, time.Since(start))
	}
	return d.wrapResult(view, &t, time.Since(start))
}
