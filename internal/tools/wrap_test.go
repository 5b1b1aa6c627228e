package tools

import (
	"strings"
	"testing"
	"time"
)

func TestWrapResultTimezoneDisabled(t *testing.T) {
	d := &Deps{Timezone: "false"}
	r := d.wrapResult(Result{"x": 1}, &timing{}, time.Millisecond)
	if _, ok := r["current_time"]; ok {
		t.Fatal("expected no current_time when timezone is disabled")
	}
	if _, ok := r["timezone"]; ok {
		t.Fatal("expected no timezone field when disabled")
	}
}

func TestWrapResultDefaultsToUTC(t *testing.T) {
	d := &Deps{Timezone: ""}
	r := d.wrapResult(Result{}, &timing{}, time.Millisecond)
	if r["timezone"] != "UTC" {
		t.Fatalf("expected UTC default, got %+v", r["timezone"])
	}
	if _, ok := r["current_time"].(string); !ok {
		t.Fatalf("expected a formatted current_time, got %+v", r["current_time"])
	}
}

func TestWrapResultPerformanceFormat(t *testing.T) {
	d := &Deps{Timezone: "false", PerformanceMetrics: true}
	tm := &timing{embed: 1500 * time.Millisecond, db: 250 * time.Millisecond}
	r := d.wrapResult(Result{}, tm, 2*time.Second)

	perf, ok := r["performance"].(string)
	if !ok {
		t.Fatalf("expected performance string, got %+v", r["performance"])
	}
	if perf != "1.500 0.250 2.000" {
		t.Fatalf("unexpected performance format: %q", perf)
	}
	if parts := strings.Fields(perf); len(parts) != 3 {
		t.Fatalf("expected three space-separated durations, got %q", perf)
	}
}

func TestFormatOrdinal(t *testing.T) {
	cases := map[time.Time]string{
		time.Date(2026, 1, 1, 9, 5, 0, 0, time.UTC):   "January 1st, 2026 at 9:05 AM UTC",
		time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC): "March 2nd, 2026 at 2:30 PM UTC",
		time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC):   "July 3rd, 2026 at 12:00 AM UTC",
		time.Date(2026, 11, 11, 8, 0, 0, 0, time.UTC): "November 11th, 2026 at 8:00 AM UTC",
		time.Date(2026, 12, 13, 8, 0, 0, 0, time.UTC): "December 13th, 2026 at 8:00 AM UTC",
		time.Date(2026, 5, 21, 8, 0, 0, 0, time.UTC):  "May 21st, 2026 at 8:00 AM UTC",
		time.Date(2026, 6, 24, 8, 0, 0, 0, time.UTC):  "June 24th, 2026 at 8:00 AM UTC",
	}
	for in, want := range cases {
		if got := formatOrdinal(in); got != want {
			t.Errorf("formatOrdinal(%v) = %q, want %q", in, got, want)
		}
	}
}
