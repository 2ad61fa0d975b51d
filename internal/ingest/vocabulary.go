package ingest

import (
	"fmt"
	"strings"
)

// Category is the classification of a column header in the primary sheet.
type Category int

const (
	// CategoryName marks the student-name column.
	CategoryName Category = iota
	// CategoryMeta marks identity and administrative columns excluded from
	// the subject set.
	CategoryMeta
	// CategorySubject marks a scored subject column.
	CategorySubject
)

// Vocabulary holds the header and sheet-name word lists used by the
// classifier. Matching is always case-insensitive on trimmed strings, so
// entries should be lower case. The zero value is unusable; start from
// DefaultVocabulary and override fields through config.
type Vocabulary struct {
	// NameHeaders are headers recognized as the student-name column.
	NameHeaders []string
	// MetaHeaders are identity/administrative headers excluded from the
	// subject set. The name column is always excluded as well.
	MetaHeaders []string
	// CurrentSheets are preferred names for the primary data sheet, in
	// priority order. When none match, the first sheet is used.
	CurrentSheets []string
	// PreviousSheets are recognized names for the optional prior-period
	// sheet. Absence of a match disables the secondary lookup path.
	PreviousSheets []string
}

// DefaultVocabulary returns the built-in English vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		NameHeaders: []string{"name", "student name", "student", "full name"},
		MetaHeaders: []string{
			"roll", "roll no", "roll number",
			"id", "student id",
			"sr no", "sr",
			"gender", "class", "division",
		},
		CurrentSheets:  []string{"current", "curr", "this semester", "sem1"},
		PreviousSheets: []string{"previous", "prev"},
	}
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func (v Vocabulary) isNameHeader(h string) bool {
	n := normalizeHeader(h)
	for _, want := range v.NameHeaders {
		if n == want {
			return true
		}
	}
	return false
}

// Classify maps a header to its category. Headers are compared
// case-insensitively after trimming; anything not in the name or meta
// vocabularies is a subject.
func (v Vocabulary) Classify(header string) Category {
	if v.isNameHeader(header) {
		return CategoryName
	}
	n := normalizeHeader(header)
	for _, meta := range v.MetaHeaders {
		if n == meta {
			return CategoryMeta
		}
	}
	return CategorySubject
}

// PickNameColumn selects the student-name column from an ordered header
// list. Exact vocabulary matches win; otherwise the first header whose
// normalized form contains "name" is used. Returns false when no column
// qualifies.
func (v Vocabulary) PickNameColumn(headers []string) (string, bool) {
	for _, h := range headers {
		if v.isNameHeader(h) {
			return h, true
		}
	}
	for _, h := range headers {
		if strings.Contains(normalizeHeader(h), "name") {
			return h, true
		}
	}
	return "", false
}

// DetectSubjects returns every header that is neither the name column, a
// meta column, nor a previous-suffix column of another header, preserving
// the source column order. Subject keys are the header strings exactly as
// written in the sheet. A suffixed header whose base column is absent is
// kept as a subject in its own right.
func (v Vocabulary) DetectSubjects(headers []string) []string {
	subjects := make([]string, 0, len(headers))
	for _, h := range headers {
		if v.Classify(h) != CategorySubject {
			continue
		}
		if isPreviousColumn(h, headers) {
			continue
		}
		subjects = append(subjects, h)
	}
	return subjects
}

// isPreviousColumn reports whether header spells a previous-suffix column
// for some other header in the same sheet. Matching is exact-case, the same
// way the suffix resolver addresses these columns.
func isPreviousColumn(header string, headers []string) bool {
	for _, base := range headers {
		if base == header {
			continue
		}
		for _, pattern := range suffixPatterns {
			if header == fmt.Sprintf(pattern, base) {
				return true
			}
		}
	}
	return false
}

// pickSheet returns the first sheet whose lower-cased name appears in
// wanted, scanning wanted in priority order.
func pickSheet(names []string, wanted []string) (string, bool) {
	byLower := make(map[string]string, len(names))
	for _, n := range names {
		if _, exists := byLower[strings.ToLower(n)]; !exists {
			byLower[strings.ToLower(n)] = n
		}
	}
	for _, w := range wanted {
		if n, ok := byLower[w]; ok {
			return n, true
		}
	}
	return "", false
}
