package tools

import (
	"context"
	"time"
)

// DeleteMemoryParams are the raw inputs to delete_memory.
type DeleteMemoryParams struct {
	MemoryID int64
}

// DeleteMemory removes a memory and its embedding rows.
func DeleteMemory(ctx context.Context, d *Deps, p DeleteMemoryParams) Result {
	start := time.Now()
	var t timing

	if err := t.trackDB(func() error {
		m, err := resolveID(ctx, d.Store, d.Namespace, p.MemoryID)
		if err != nil {
			return err
		}
		return d.Store.DeleteMemory(ctx, m.ID)
	}); err != nil {
		return d.wrapResult(errorResult("not found", err.Error()), &t, time.Since(start))
	}

	return d.wrapResult(Result{
		"success": true,
		"message": "Memory deleted successfully",
	}, &t, time.Since(start))
}
