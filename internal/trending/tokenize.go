// Package trending implements the synaptic-decay trending-labels algorithm:
// label tokens are tracked as they're written, scored by a mix of frequency
// and recency, then matched back against current memory labels.
package trending

import (
	"regexp"
	"strings"
	"time"
)

var tokenSplit = regexp.MustCompile(`[-_\s]+`)

// Tokenize splits labels on hyphen, underscore, and whitespace, lowercases
// each fragment, and returns per-token counts. Date-shaped labels are
// dropped before tokenization so that e.g. "jan-2026" doesn't flood the
// token table with "jan" and "2026" entries that swamp genuine topics.
func Tokenize(labels []string) map[string]int {
	counts := map[string]int{}
	for _, label := range labels {
		if IsDateLabel(label) {
			continue
		}
		for _, tok := range tokenSplit.Split(strings.ToLower(label), -1) {
			if tok == "" {
				continue
			}
			counts[tok]++
		}
	}
	return counts
}

var dateLayouts = []string{
	"2006-01-02",
	"01-02-2006",
	"02-01-2006",
	"2006-01",
	"01-2006",
	"Jan-2006",
	"January-2006",
	"Jan-2-2006",
	"2-Jan-2006",
	"Jan-02-2006",
	"02-Jan-2006",
}

// IsDateLabel reports whether label parses as a recognizable date shape
// under any of a handful of common layouts. Single bare month names (no
// year) intentionally do not match, so topics like "january" (a band name,
// say) survive.
func IsDateLabel(label string) bool {
	normalized := strings.TrimSpace(label)
	if normalized == "" {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, normalized); err == nil {
			return true
		}
	}
	return false
}
