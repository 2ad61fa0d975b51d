package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"classpulse/internal/ingest"
	"classpulse/internal/store"
	"classpulse/pkg/contracts/domain"
)

// UploadService orchestrates workbook ingestion and persistence. It owns
// the validation of exam options, delegates parsing to the ingest engine
// and keeps the resulting payloads in the upload store.
type UploadService struct {
	engine   *ingest.Engine
	store    *store.Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewUploadService creates a new upload service.
func NewUploadService(engine *ingest.Engine, st *store.Store, logger *slog.Logger) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{
		engine:   engine,
		store:    st,
		validate: validator.New(),
		logger:   logger.With(slog.String("service", "upload")),
	}
}

// ValidateOptions checks the teacher-supplied exam options. Beyond the
// struct tags it enforces that passing marks never exceed total marks when
// both are given.
func (s *UploadService) ValidateOptions(opts domain.ExamOptions) error {
	if err := s.validate.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: field %q failed %q validation", ErrInvalidOptions, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if opts.TotalMarks > 0 && opts.PassingMarks > opts.TotalMarks {
		return fmt.Errorf("%w: passing marks (%d) cannot exceed total marks (%d)", ErrInvalidOptions, opts.PassingMarks, opts.TotalMarks)
	}
	return nil
}

// Ingest parses the workbook, stamps identity and timestamps onto the
// payload and persists it. The returned payload is the saved one.
func (s *UploadService) Ingest(ctx context.Context, r io.Reader, opts domain.ExamOptions) (*domain.UploadPayload, error) {
	if err := s.ValidateOptions(opts); err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := s.engine.Ingest(ctx, r, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}

	payload.Meta.ID = uuid.New().String()
	payload.Meta.CreatedAt = time.Now().UTC()

	if err := s.store.Save(payload); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s.logger.InfoContext(ctx, "workbook ingested",
		slog.String("upload_id", payload.Meta.ID),
		slog.String("class", payload.Meta.ClassName),
		slog.Int("students", payload.Meta.StudentCount),
		slog.Int("subjects", len(payload.Meta.Subjects)),
		slog.Int("warnings", len(payload.Meta.Warnings)),
		slog.Duration("duration", time.Since(start)),
	)

	return payload, nil
}

// Get returns one stored upload by ID.
func (s *UploadService) Get(ctx context.Context, id string) (*domain.UploadPayload, error) {
	payload, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	return payload, nil
}

// History returns the stored upload metadata, most recent first.
func (s *UploadService) History(ctx context.Context) ([]domain.UploadMeta, error) {
	return s.store.History()
}

// Delete removes one stored upload.
func (s *UploadService) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUploadNotFound
	}
	if err == nil {
		s.logger.InfoContext(ctx, "upload deleted", slog.String("upload_id", id))
	}
	return err
}
