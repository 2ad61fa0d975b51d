package services

import "errors"

// Upload errors
var (
	ErrUploadNotFound  = errors.New("upload not found")
	ErrInvalidOptions  = errors.New("invalid exam options")
	ErrIngestionFailed = errors.New("workbook ingestion failed")
)

// Summary errors
var (
	ErrSummaryUnavailable = errors.New("summary service not configured")
	ErrSummaryFailed      = errors.New("summary generation failed")
)
