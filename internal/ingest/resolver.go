package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseCell coerces raw cell text to a score. An empty or whitespace-only
// cell is absent (nil, invalid=false); non-empty text that does not parse to
// a finite number is also nil but flagged invalid so the caller can warn.
func parseCell(raw string) (val *float64, invalid bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, true
	}
	return &f, false
}

// PreviousResolver is one strategy for locating a subject's prior-period
// score. row is the current-sheet row and prevRow the name-matched row from
// the previous sheet (nil when that sheet or row is absent). Resolvers are
// tried in fixed order; the first non-nil result wins.
type PreviousResolver func(subject string, row, prevRow map[string]string) *float64

// suffixPatterns are the alternate same-row header spellings checked for a
// subject's previous score, e.g. "Math (Prev)" for subject "Math".
var suffixPatterns = []string{"%s (Prev)", "%s (Previous)", "%s_prev", "%s_previous"}

// resolveBySuffix reads the previous score from a same-row suffix column.
// The first pattern with a non-empty cell is coerced; an unparseable value
// yields nil without falling through to later patterns, matching the
// first-match-wins contract.
func resolveBySuffix(subject string, row, _ map[string]string) *float64 {
	for _, pattern := range suffixPatterns {
		raw, ok := row[fmt.Sprintf(pattern, subject)]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		val, _ := parseCell(raw)
		return val
	}
	return nil
}

// resolveByPreviousSheet reads the same-named subject column from the
// name-matched previous-sheet row.
func resolveByPreviousSheet(subject string, _, prevRow map[string]string) *float64 {
	if prevRow == nil {
		return nil
	}
	val, _ := parseCell(prevRow[subject])
	return val
}

// defaultResolvers returns the resolver chain in precedence order: same-row
// suffix column first, then the secondary sheet. When a suffix column holds
// a value the sheet lookup is never consulted.
func defaultResolvers() []PreviousResolver {
	return []PreviousResolver{resolveBySuffix, resolveByPreviousSheet}
}

func resolvePrevious(resolvers []PreviousResolver, subject string, row, prevRow map[string]string) *float64 {
	for _, resolve := range resolvers {
		if val := resolve(subject, row, prevRow); val != nil {
			return val
		}
	}
	return nil
}
