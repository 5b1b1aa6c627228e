package tools

import (
	"context"
	"strings"
	"time"
)

// LabelsParams are the raw inputs shared by add_labels and del_labels.
type LabelsParams struct {
	MemoryID int64
	Labels   string
}

func splitLabels(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, ",") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// AddLabels merges the given labels into a memory's label set, appending
// new ones and dropping exact duplicates.
func AddLabels(ctx context.Context, d *Deps, p LabelsParams) Result {
	start := time.Now()
	var t timing

	toAdd := splitLabels(p.Labels)
	var updated []string
	if err := t.trackDB(func() error {
		m, err := resolveID(ctx, d.Store, d.Namespace, p.MemoryID)
		if err != nil {
			return err
		}
		updated = mergeLabels(m.Labels, toAdd)
		return d.Store.UpdateLabels(ctx, m.ID, updated)
	}); err != nil {
		return d.wrapResult(errorResult("not found", err.Error()), &t, time.Since(start))
	}

	return d.wrapResult(Result{
		"labels":  labelsOrEmpty(updated),
		"message": "Labels updated successfully",
	}, &t, time.Since(start))
}

// DelLabels removes the given labels from a memory's label set. Labels not
// currently present are ignored silently.
func DelLabels(ctx context.Context, d *Deps, p LabelsParams) Result {
	start := time.Now()
	var t timing

	toRemove := splitLabels(p.Labels)
	var remaining []string
	if err := t.trackDB(func() error {
		m, err := resolveID(ctx, d.Store, d.Namespace, p.MemoryID)
		if err != nil {
			return err
		}
		remaining = subtractLabels(m.Labels, toRemove)
		return d.Store.UpdateLabels(ctx, m.ID, remaining)
	}); err != nil {
		return d.wrapResult(errorResult("not found", err.Error()), &t, time.Since(start))
	}

	return d.wrapResult(Result{
		"labels":  labelsOrEmpty(remaining),
		"message": "Labels removed successfully",
	}, &t, time.Since(start))
}

func mergeLabels(current, add []string) []string {
	seen := make(map[string]bool, len(current))
	out := append([]string{}, current...)
	for _, l := range current {
		seen[l] = true
	}
	for _, l := range add {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func subtractLabels(current, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, l := range remove {
		drop[l] = true
	}
	var out []string
	for _, l := range current {
		if !drop[l] {
			out = append(out, l)
		}
	}
	return out
}
