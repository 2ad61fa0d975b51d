package http

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "classpulse/internal/errors"
	"classpulse/internal/exporter"
	"classpulse/internal/services"
	"classpulse/pkg/contracts/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// UploadHandler handles workbook uploads, history, export and summary
// requests.
type UploadHandler struct {
	uploads        *services.UploadService
	summaries      *services.SummaryService
	reports        *exporter.ReportWriter
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(
	uploads *services.UploadService,
	summaries *services.SummaryService,
	logger *slog.Logger,
	errorHandler *apierrors.ErrorHandler,
	maxUploadBytes int64,
) *UploadHandler {
	return &UploadHandler{
		uploads:        uploads,
		summaries:      summaries,
		reports:        exporter.NewReportWriter(),
		logger:         logger.With(slog.String("component", "upload_handler")),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the upload routes.
func (h *UploadHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateUpload)
	r.Get("/", h.ListUploads)

	r.Route("/{uploadID}", func(r chi.Router) {
		r.Use(h.UploadCtx)
		r.Get("/", h.GetUpload)
		r.Delete("/", h.DeleteUpload)
		r.Get("/export", h.ExportUpload)
		r.Get("/summary", h.SummarizeUpload)
	})

	return r
}

// UploadCtx validates the uploadID parameter.
func (h *UploadHandler) UploadCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "uploadID")
		if id == "" || strings.ContainsAny(id, "/\\") {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("uploadID", "Upload ID is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateUpload handles POST /api/uploads. The request is multipart form
// data with the workbook in the "file" part and the exam options as plain
// form fields.
func (h *UploadHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := h.workbookFile(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", err.Error()))
		return
	}
	defer file.Close()

	opts, err := parseExamOptions(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("options", err.Error()))
		return
	}
	opts.FileName = header.Filename

	payload, err := h.uploads.Ingest(r.Context(), file, opts)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, payload)
}

// ListUploads handles GET /api/uploads.
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	history, err := h.uploads.History(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"uploads": history,
		"count":   len(history),
	})
}

// GetUpload handles GET /api/uploads/{uploadID}.
func (h *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.uploads.Get(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, payload)
}

// DeleteUpload handles DELETE /api/uploads/{uploadID}.
func (h *UploadHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.uploads.Delete(r.Context(), chi.URLParam(r, "uploadID")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// ExportUpload handles GET /api/uploads/{uploadID}/export?format=csv|xlsx.
// CSV is the default format.
func (h *UploadHandler) ExportUpload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.uploads.Get(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", exporter.FileName(payload.Meta, "csv")))
		err = h.reports.WriteCSV(w, payload)
	case "xlsx":
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", exporter.FileName(payload.Meta, "xlsx")))
		err = h.reports.WriteXLSX(w, payload)
	default:
		h.errorHandler.HandleError(w, r,
			apierrors.ErrValidation("format", fmt.Sprintf("Unsupported export format: %s", format)))
		return
	}

	if err != nil {
		// Headers are already on the wire, log and give up.
		h.logger.ErrorContext(r.Context(), "export failed",
			slog.String("upload_id", payload.Meta.ID),
			slog.String("format", format),
			slog.String("error", err.Error()),
		)
	}
}

// SummarizeUpload handles GET /api/uploads/{uploadID}/summary.
func (h *UploadHandler) SummarizeUpload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.uploads.Get(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	result, err := h.summaries.Summarize(r.Context(), payload)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (h *UploadHandler) workbookFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("a workbook file is required: %v", err)
	}
	return file, header, nil
}

// handleServiceError translates service errors into API errors before
// rendering.
func (h *UploadHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUploadNotFound):
		h.errorHandler.HandleError(w, r, apierrors.ErrUploadNotFound)
	case errors.Is(err, services.ErrInvalidOptions):
		h.errorHandler.HandleError(w, r,
			apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error()))
	case errors.Is(err, services.ErrIngestionFailed):
		h.errorHandler.HandleError(w, r, apierrors.IngestionError(err))
	case errors.Is(err, services.ErrSummaryUnavailable):
		h.errorHandler.HandleError(w, r, apierrors.ErrSummaryUnavailable)
	case errors.Is(err, services.ErrSummaryFailed):
		h.errorHandler.HandleError(w, r, apierrors.ErrSummaryFailed)
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}

// parseExamOptions reads the exam option form fields. exam_date accepts
// either RFC 3339 or a plain date.
func parseExamOptions(r *http.Request) (domain.ExamOptions, error) {
	opts := domain.ExamOptions{
		Teacher:   strings.TrimSpace(r.FormValue("teacher")),
		ClassName: strings.TrimSpace(r.FormValue("class_name")),
		Subject:   strings.TrimSpace(r.FormValue("subject")),
		ExamName:  strings.TrimSpace(r.FormValue("exam_name")),
	}

	if raw := r.FormValue("total_marks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("total_marks must be a number: %q", raw)
		}
		opts.TotalMarks = n
	}
	if raw := r.FormValue("passing_marks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("passing_marks must be a number: %q", raw)
		}
		opts.PassingMarks = n
	}
	if raw := r.FormValue("exam_date"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ts, err = time.Parse("2006-01-02", raw)
		}
		if err != nil {
			return opts, fmt.Errorf("exam_date must be RFC 3339 or YYYY-MM-DD: %q", raw)
		}
		opts.ExamDate = ts
	}

	return opts, nil
}
