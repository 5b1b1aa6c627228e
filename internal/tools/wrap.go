package tools

import (
	"fmt"
	"time"
)

// timing accumulates the embedding and database time spent inside one tool
// call, reported back as the `performance` field when enabled.
type timing struct {
	embed time.Duration
	db    time.Duration
}

func (t *timing) trackEmbed(fn func() error) error {
	start := time.Now()
	err := fn()
	t.embed += time.Since(start)
	return err
}

func (t *timing) trackDB(fn func() error) error {
	start := time.Now()
	err := fn()
	t.db += time.Since(start)
	return err
}

// wrapResult applies the shared response envelope: current_time/timezone
// prepended when configured, and a performance string appended when enabled.
// total is the wall-clock duration of the whole tool call, measured by the
// caller around both validation and execution.
func (d *Deps) wrapResult(r Result, t *timing, total time.Duration) Result {
	if r == nil {
		r = Result{}
	}
	if d.Timezone != "false" {
		loc := time.UTC
		zoneName := "UTC"
		if d.Timezone != "" {
			if l, err := time.LoadLocation(d.Timezone); err == nil {
				loc = l
				zoneName = d.Timezone
			}
		}
		now := time.Now().In(loc)
		r["current_time"] = formatOrdinal(now)
		r["timezone"] = zoneName
	}
	if d.PerformanceMetrics {
		r["performance"] = fmt.Sprintf("%.3f %.3f %.3f", t.embed.Seconds(), t.db.Seconds(), total.Seconds())
	}
	return r
}

// formatOrdinal renders a human-friendly timestamp with an ordinal day and
// abbreviated zone, e.g. "January 3rd, 2026 at 2:04 PM MST".
func formatOrdinal(t time.Time) string {
	day := t.Day()
	suffix := "th"
	switch day % 10 {
	case 1:
		if day != 11 {
			suffix = "st"
		}
	case 2:
		if day != 12 {
			suffix = "nd"
		}
	case 3:
		if day != 13 {
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%s %d%s, %d at %s", t.Format("January"), day, suffix, t.Year(), t.Format("3:04 PM MST"))
}
