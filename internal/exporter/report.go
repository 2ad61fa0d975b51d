package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"classpulse/pkg/contracts/domain"
)

const reportSheet = "Report"

// utf8BOM helps Excel recognize UTF-8 encoded CSV files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReportWriter renders one upload payload into tabular report formats.
// Columns are Student, one per detected subject in sheet order, Total and
// Change; subject cells carry the previous score in parentheses when one
// was resolved.
type ReportWriter struct{}

// NewReportWriter creates a report writer.
func NewReportWriter() *ReportWriter {
	return &ReportWriter{}
}

// WriteCSV streams the report as CSV prefixed with a UTF-8 BOM.
func (rw *ReportWriter) WriteCSV(w io.Writer, payload *domain.UploadPayload) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(headerRow(payload.Meta)); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for i, rec := range payload.Records {
		if err := writer.Write(recordRow(payload.Meta, rec)); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX streams the report as a single-sheet workbook with a styled
// header row and frozen top pane.
func (rw *ReportWriter) WriteXLSX(w io.Writer, payload *domain.UploadPayload) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", reportSheet)

	header := headerRow(payload.Meta)
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(reportSheet, "A1", &cells); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(header), 1)
		f.SetCellStyle(reportSheet, "A1", endCell, headerStyle)
	}

	for i, rec := range payload.Records {
		row := recordRow(payload.Meta, rec)
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(reportSheet, cell, &cells); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}

	f.SetPanes(reportSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName builds a download file name from the upload metadata.
func FileName(meta domain.UploadMeta, ext string) string {
	base := meta.ClassName
	if base == "" {
		base = "class"
	}
	if meta.ExamName != "" {
		base += "-" + meta.ExamName
	}
	return fmt.Sprintf("%s-report.%s", base, ext)
}

func headerRow(meta domain.UploadMeta) []string {
	header := make([]string, 0, len(meta.Subjects)+3)
	header = append(header, "Student")
	header = append(header, meta.Subjects...)
	header = append(header, "Total", "Change")
	return header
}

func recordRow(meta domain.UploadMeta, rec domain.StudentRecord) []string {
	row := make([]string, 0, len(meta.Subjects)+3)
	row = append(row, rec.Name)
	for _, subject := range meta.Subjects {
		row = append(row, scoreCell(rec.Scores[subject]))
	}
	row = append(row, formatNumber(rec.TotalCurrent))
	if rec.Delta != nil {
		row = append(row, formatDelta(*rec.Delta))
	} else {
		row = append(row, "")
	}
	return row
}

// scoreCell renders one subject score, appending the previous-period value
// in parentheses when present. A missing current score shows as a dash so
// the gap stays visible next to a known previous value.
func scoreCell(score domain.SubjectScore) string {
	switch {
	case score.Current == nil && score.Previous == nil:
		return ""
	case score.Previous == nil:
		return formatNumber(*score.Current)
	case score.Current == nil:
		return fmt.Sprintf("- (%s)", formatNumber(*score.Previous))
	default:
		return fmt.Sprintf("%s (%s)", formatNumber(*score.Current), formatNumber(*score.Previous))
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDelta(v float64) string {
	if v > 0 {
		return "+" + formatNumber(v)
	}
	return formatNumber(v)
}
