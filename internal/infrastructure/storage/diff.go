package storage

import (
	"strings"

	"github.com/codefix/backend/internal/domain"
)

// DiffStats summarizes line-level churn between the original and the fixed
// content. Lines are compared as multisets so moved lines count once on
// each side.
func DiffStats(original, fixed string) domain.JSONB {
	origLines := splitLines(original)
	fixedLines := splitLines(fixed)

	counts := make(map[string]int, len(origLines))
	for _, line := range origLines {
		counts[line]++
	}

	added := 0
	for _, line := range fixedLines {
		if counts[line] > 0 {
			counts[line]--
		} else {
			added++
		}
	}

	removed := 0
	for _, remaining := range counts {
		removed += remaining
	}

	return domain.JSONB{
		"lines_before":  len(origLines),
		"lines_after":   len(fixedLines),
		"lines_added":   added,
		"lines_removed": removed,
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
