// Package ingest implements the spreadsheet ingestion and reconciliation
// engine: it takes an arbitrary tabular workbook, classifies headers into
// identity, meta and subject columns, reconciles current and prior-period
// scores from up to three sources, and produces a normalized upload payload
// with advisory warnings. Malformed input degrades to warnings wherever
// possible; only an empty primary sheet or a missing name column abort.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"classpulse/pkg/contracts/domain"
)

// Fatal ingestion errors. Everything else is reported through the payload's
// warning list.
var (
	// ErrNoData means the primary data sheet yielded zero rows.
	ErrNoData = errors.New("no data found in workbook")
	// ErrNoNameColumn means no column could be classified as the
	// student-name column.
	ErrNoNameColumn = errors.New("could not locate a name column")
)

// Config controls engine behavior. Zero-value fields fall back to defaults.
type Config struct {
	Vocabulary Vocabulary
	// MinScore and MaxScore bound the valid score range, inclusive.
	// Values outside the range are retained but generate a warning.
	MinScore float64
	MaxScore float64
}

// DefaultConfig returns the built-in vocabulary with the 0-100 score range.
func DefaultConfig() Config {
	return Config{
		Vocabulary: DefaultVocabulary(),
		MinScore:   0,
		MaxScore:   100,
	}
}

// Engine performs workbook ingestion. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	vocab     Vocabulary
	resolvers []PreviousResolver
	minScore  float64
	maxScore  float64
	logger    *slog.Logger
}

// NewEngine creates an ingestion engine. A nil logger falls back to
// slog.Default; empty vocabulary lists fall back to the built-in vocabulary
// per field, so config may override just one list.
func NewEngine(logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultVocabulary()
	if len(cfg.Vocabulary.NameHeaders) == 0 {
		cfg.Vocabulary.NameHeaders = defaults.NameHeaders
	}
	if len(cfg.Vocabulary.MetaHeaders) == 0 {
		cfg.Vocabulary.MetaHeaders = defaults.MetaHeaders
	}
	if len(cfg.Vocabulary.CurrentSheets) == 0 {
		cfg.Vocabulary.CurrentSheets = defaults.CurrentSheets
	}
	if len(cfg.Vocabulary.PreviousSheets) == 0 {
		cfg.Vocabulary.PreviousSheets = defaults.PreviousSheets
	}
	if cfg.MaxScore == 0 && cfg.MinScore == 0 {
		cfg.MaxScore = 100
	}
	return &Engine{
		vocab:     cfg.Vocabulary,
		resolvers: defaultResolvers(),
		minScore:  cfg.MinScore,
		maxScore:  cfg.MaxScore,
		logger:    logger.With(slog.String("component", "ingest")),
	}
}

// Ingest reads a workbook and produces the normalized payload. The reader is
// consumed exactly once; the pass is synchronous and performs no external
// I/O beyond decoding the workbook bytes.
func (e *Engine) Ingest(ctx context.Context, r io.Reader, opts domain.ExamOptions) (*domain.UploadPayload, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	currentName, previousName, ok := e.vocab.selectSheets(f.GetSheetList())
	if !ok {
		return nil, ErrNoData
	}

	current, err := readSheetTable(f, currentName)
	if err != nil {
		return nil, err
	}
	if len(current.rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no data rows", ErrNoData, currentName)
	}

	var previous *sheetTable
	if previousName != "" {
		previous, err = readSheetTable(f, previousName)
		if err != nil {
			return nil, err
		}
	}

	e.logger.DebugContext(ctx, "sheets selected",
		slog.String("current", currentName),
		slog.Bool("has_previous", previousName != ""),
		slog.Int("data_rows", len(current.rows)))

	nameCol, ok := e.vocab.PickNameColumn(current.headers)
	if !ok {
		return nil, ErrNoNameColumn
	}
	subjects := e.vocab.DetectSubjects(current.headers)

	prevByName := e.indexPreviousRows(previous)

	var warnings []string
	records := make([]domain.StudentRecord, 0, len(current.rows))
	seenNames := make(map[string]bool, len(current.rows))

	for i, row := range current.rows {
		// 1-based spreadsheet row, offset past the header row.
		rowNum := i + 2

		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			warnings = append(warnings, fmt.Sprintf("Row %d: Missing student name", rowNum))
			continue
		}

		nameKey := strings.ToLower(name)
		if seenNames[nameKey] {
			warnings = append(warnings, fmt.Sprintf("Row %d: Duplicate student name %q", rowNum, name))
		}
		seenNames[nameKey] = true

		prevRow := prevByName[nameKey]

		scores := make(map[string]domain.SubjectScore, len(subjects))
		totalCurrent := 0.0
		totalPrevious := 0.0
		hasPrevious := false

		for _, subject := range subjects {
			raw := row[subject]
			cur, invalid := parseCell(raw)
			if invalid {
				warnings = append(warnings, fmt.Sprintf("Row %d [%s] %s: Invalid number %q", rowNum, name, subject, raw))
			}
			prev := resolvePrevious(e.resolvers, subject, row, prevRow)

			if cur != nil && (*cur < e.minScore || *cur > e.maxScore) {
				warnings = append(warnings, fmt.Sprintf("Row %d [%s] %s: Out of range (%s) expected %s-%s",
					rowNum, name, subject, formatScore(*cur), formatScore(e.minScore), formatScore(e.maxScore)))
			}
			if prev != nil && (*prev < e.minScore || *prev > e.maxScore) {
				warnings = append(warnings, fmt.Sprintf("Row %d [%s] %s: Previous out of range (%s) expected %s-%s",
					rowNum, name, subject, formatScore(*prev), formatScore(e.minScore), formatScore(e.maxScore)))
			}

			scores[subject] = domain.SubjectScore{Current: cur, Previous: prev}

			if cur != nil {
				totalCurrent += *cur
			}
			if prev != nil {
				hasPrevious = true
				totalPrevious += *prev
			}
		}

		rec := domain.StudentRecord{
			ID:           recordID(i, name),
			Name:         name,
			Scores:       scores,
			TotalCurrent: totalCurrent,
		}
		if hasPrevious {
			delta := totalCurrent - totalPrevious
			rec.TotalPrevious = &totalPrevious
			rec.Delta = &delta
		}
		records = append(records, rec)
	}

	payload := &domain.UploadPayload{
		Meta: domain.UploadMeta{
			ID:           uuid.NewString(),
			Teacher:      opts.Teacher,
			ClassName:    opts.ClassName,
			Subject:      opts.Subject,
			ExamName:     opts.ExamName,
			TotalMarks:   opts.TotalMarks,
			PassingMarks: opts.PassingMarks,
			ExamDate:     opts.ExamDate,
			CreatedAt:    time.Now().UTC(),
			Subjects:     subjects,
			StudentCount: len(records),
			Warnings:     warnings,
			FileName:     opts.FileName,
		},
		Records: records,
	}

	e.logger.InfoContext(ctx, "workbook ingested",
		slog.String("upload_id", payload.Meta.ID),
		slog.String("sheet", currentName),
		slog.Int("students", len(records)),
		slog.Int("subjects", len(subjects)),
		slog.Int("warnings", len(warnings)))

	return payload, nil
}

// indexPreviousRows builds the by-name index over the previous sheet. Names
// are matched by case-insensitive exact string only; on duplicates the last
// row wins.
func (e *Engine) indexPreviousRows(previous *sheetTable) map[string]map[string]string {
	if previous == nil || len(previous.rows) == 0 {
		return nil
	}
	nameCol, ok := e.vocab.PickNameColumn(previous.headers)
	if !ok {
		return nil
	}
	byName := make(map[string]map[string]string, len(previous.rows))
	for _, row := range previous.rows {
		name := strings.TrimSpace(row[nameCol])
		if name != "" {
			byName[strings.ToLower(name)] = row
		}
	}
	return byName
}

// recordID builds the synthetic identifier from the row ordinal and the
// normalized name. Unique within one payload only.
func recordID(ordinal int, name string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(name)), "-")
	return fmt.Sprintf("%d-%s", ordinal, slug)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
