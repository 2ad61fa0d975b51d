// Package exporter renders stored uploads as downloadable class reports,
// either CSV (UTF-8 with BOM for Excel) or a styled XLSX workbook.
package exporter
