package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"classpulse/pkg/contracts/domain"
)

type testSheet struct {
	name string
	rows [][]interface{}
}

// buildWorkbook writes the given sheets into an in-memory xlsx workbook.
// Sheet order is preserved so first-sheet fallback can be exercised.
func buildWorkbook(t *testing.T, sheets []testSheet) *bytes.Buffer {
	t.Helper()
	require.NotEmpty(t, sheets)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", sheets[0].name))
	for _, s := range sheets[1:] {
		_, err := f.NewSheet(s.name)
		require.NoError(t, err)
	}
	for _, s := range sheets {
		for i, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(s.name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return buf
}

func testOptions() domain.ExamOptions {
	return domain.ExamOptions{
		Teacher:   "R. Joshi",
		ClassName: "7B",
		Subject:   "All Subjects",
		ExamName:  "Mid-Term 2026",
		ExamDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		FileName:  "marks.xlsx",
	}
}

func newTestEngine() *Engine {
	return NewEngine(slog.Default(), DefaultConfig())
}

func TestIngest_SingleSheet(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math", "Science"},
			{"Asha", 85, 40},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	require.Len(t, payload.Records, 1)
	rec := payload.Records[0]
	assert.Equal(t, "Asha", rec.Name)
	assert.Equal(t, "0-asha", rec.ID)
	assert.Equal(t, []string{"Math", "Science"}, payload.Meta.Subjects)

	require.NotNil(t, rec.Scores["Math"].Current)
	assert.Equal(t, 85.0, *rec.Scores["Math"].Current)
	assert.Nil(t, rec.Scores["Math"].Previous)
	require.NotNil(t, rec.Scores["Science"].Current)
	assert.Equal(t, 40.0, *rec.Scores["Science"].Current)

	assert.Equal(t, 125.0, rec.TotalCurrent)
	assert.Nil(t, rec.TotalPrevious)
	assert.Nil(t, rec.Delta)

	assert.Equal(t, 1, payload.Meta.StudentCount)
	assert.Empty(t, payload.Meta.Warnings)
	assert.Equal(t, "R. Joshi", payload.Meta.Teacher)
	assert.Equal(t, "marks.xlsx", payload.Meta.FileName)
	assert.NotEmpty(t, payload.Meta.ID)
}

func TestIngest_PreviousSheet(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math", "Science"},
			{"Asha", 85, 40},
		}},
		{name: "Previous", rows: [][]interface{}{
			{"Name", "Math", "Science"},
			{"Asha", 70, 35},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	require.Len(t, payload.Records, 1)
	rec := payload.Records[0]
	require.NotNil(t, rec.Scores["Math"].Previous)
	assert.Equal(t, 70.0, *rec.Scores["Math"].Previous)

	require.NotNil(t, rec.TotalPrevious)
	assert.Equal(t, 105.0, *rec.TotalPrevious)
	require.NotNil(t, rec.Delta)
	assert.Equal(t, 20.0, *rec.Delta)
	assert.Empty(t, payload.Meta.Warnings)
}

func TestIngest_PreviousSheetNameMatchIsCaseInsensitive(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math"},
			{"ASHA", 85},
		}},
		{name: "prev", rows: [][]interface{}{
			{"Name", "Math"},
			{"asha", 70},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	rec := payload.Records[0]
	require.NotNil(t, rec.TotalPrevious)
	assert.Equal(t, 70.0, *rec.TotalPrevious)
}

func TestIngest_InvalidNumberWarns(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math", "Science"},
			{"Asha", "abc", 40},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	rec := payload.Records[0]
	assert.Nil(t, rec.Scores["Math"].Current)
	assert.Equal(t, 40.0, rec.TotalCurrent)

	require.Len(t, payload.Meta.Warnings, 1)
	warning := payload.Meta.Warnings[0]
	assert.Contains(t, warning, "Row 2")
	assert.Contains(t, warning, "Asha")
	assert.Contains(t, warning, "Math")
	assert.Contains(t, warning, `"abc"`)
}

func TestIngest_MissingNameSkipsRow(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math"},
			{"Asha", 85},
			{"   ", 60},
			{"Bilal", 72},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	require.Len(t, payload.Records, 2)
	assert.Equal(t, "Asha", payload.Records[0].Name)
	assert.Equal(t, "Bilal", payload.Records[1].Name)
	assert.Equal(t, 2, payload.Meta.StudentCount)

	require.Len(t, payload.Meta.Warnings, 1)
	assert.Equal(t, "Row 3: Missing student name", payload.Meta.Warnings[0])
}

func TestIngest_OutOfRangeRetainsValue(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math"},
			{"Asha", 150},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	rec := payload.Records[0]
	require.NotNil(t, rec.Scores["Math"].Current)
	assert.Equal(t, 150.0, *rec.Scores["Math"].Current)
	assert.Equal(t, 150.0, rec.TotalCurrent)

	require.Len(t, payload.Meta.Warnings, 1)
	assert.Contains(t, payload.Meta.Warnings[0], "Out of range (150)")
}

func TestIngest_SuffixColumnBeatsPreviousSheet(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math", "Math (Prev)"},
			{"Asha", 85, 60},
		}},
		{name: "Previous", rows: [][]interface{}{
			{"Name", "Math"},
			{"Asha", 70},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	rec := payload.Records[0]
	require.NotNil(t, rec.Scores["Math"].Previous)
	assert.Equal(t, 60.0, *rec.Scores["Math"].Previous)
}

func TestIngest_SuffixSpellings(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"paren prev", "Math (Prev)"},
		{"paren previous", "Math (Previous)"},
		{"underscore prev", "Math_prev"},
		{"underscore previous", "Math_previous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := buildWorkbook(t, []testSheet{
				{name: "Current", rows: [][]interface{}{
					{"Name", "Math", tt.header},
					{"Asha", 85, 60},
				}},
			})

			payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
			require.NoError(t, err)

			rec := payload.Records[0]
			require.NotNil(t, rec.Scores["Math"].Previous)
			assert.Equal(t, 60.0, *rec.Scores["Math"].Previous)
			require.NotNil(t, rec.Delta)
			assert.Equal(t, 25.0, *rec.Delta)
		})
	}
}

func TestIngest_FirstSheetFallback(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Term 1 Marks", rows: [][]interface{}{
			{"Name", "Math"},
			{"Asha", 85},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)
	require.Len(t, payload.Records, 1)
}

func TestIngest_MetaColumnsExcluded(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Roll No", "Name", "Gender", "Math", "Science", "Division"},
			{1, "Asha", "F", 85, 40, "A"},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Math", "Science"}, payload.Meta.Subjects)
}

func TestIngest_NameColumnSubstringFallback(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Learner Name", "Math"},
			{"Asha", 85},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "Asha", payload.Records[0].Name)
	// The fallback column is not in the exact name vocabulary, so it stays a
	// subject as well.
	assert.Contains(t, payload.Meta.Subjects, "Learner Name")
}

func TestIngest_DuplicateNamesWarn(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math"},
			{"Asha", 85},
			{"asha", 60},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	require.Len(t, payload.Records, 2)
	require.Len(t, payload.Meta.Warnings, 1)
	assert.Contains(t, payload.Meta.Warnings[0], "Duplicate student name")
}

func TestIngest_EmptySheetFails(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math"},
		}},
	})

	_, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.ErrorIs(t, err, ErrNoData)
}

func TestIngest_NoNameColumnFails(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Roll No", "Math"},
			{1, 85},
		}},
	})

	_, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.ErrorIs(t, err, ErrNoNameColumn)
}

func TestIngest_NotAWorkbook(t *testing.T) {
	_, err := newTestEngine().Ingest(context.Background(), bytes.NewBufferString("not a workbook"), testOptions())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestIngest_CustomVocabulary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vocabulary.NameHeaders = []string{"vidyarthi"}
	cfg.Vocabulary.MetaHeaders = []string{"kaksha"}
	engine := NewEngine(slog.Default(), cfg)

	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Vidyarthi", "Kaksha", "Math"},
			{"Asha", "7B", 85},
		}},
	})

	payload, err := engine.Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Math"}, payload.Meta.Subjects)
	assert.Equal(t, "Asha", payload.Records[0].Name)
}

func TestIngest_TotalsSumNonNilCurrents(t *testing.T) {
	buf := buildWorkbook(t, []testSheet{
		{name: "Current", rows: [][]interface{}{
			{"Name", "Math", "Science", "English"},
			{"Asha", 85, "", 30},
		}},
	})

	payload, err := newTestEngine().Ingest(context.Background(), buf, testOptions())
	require.NoError(t, err)

	rec := payload.Records[0]
	assert.Nil(t, rec.Scores["Science"].Current)
	assert.Equal(t, 115.0, rec.TotalCurrent)
	assert.Empty(t, payload.Meta.Warnings)
}
