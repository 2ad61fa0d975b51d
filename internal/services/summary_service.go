package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"classpulse/internal/config"
	"classpulse/pkg/contracts/domain"
)

// textGenerator abstracts the single text-generation call so the service
// can be tested without a live API.
type textGenerator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

// genaiGenerator calls the Gemini API through google.golang.org/genai.
type genaiGenerator struct {
	client *genai.Client
	model  string
}

func newGenaiGenerator(ctx context.Context, apiKey, model string) (*genaiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiGenerator{client: client, model: model}, nil
}

func (g *genaiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", g.model)
	}
	return text, nil
}

// ClassStats is the aggregate view of one upload used both as the API
// response and as the grounding data for the generated narrative.
type ClassStats struct {
	StudentCount    int                     `json:"student_count"`
	SubjectAverages []domain.SubjectAverage `json:"subject_averages"`
	ClassAverage    *float64                `json:"class_average"`
	Students        []domain.StudentSummary `json:"students"`
}

// SummaryResult pairs the generated narrative with the stats it was
// grounded on.
type SummaryResult struct {
	UploadID    string     `json:"upload_id"`
	Summary     string     `json:"summary"`
	Stats       ClassStats `json:"stats"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// SummaryService generates short natural-language class summaries from an
// upload's aggregate statistics. Without an API key the service still
// computes stats but Summarize returns ErrSummaryUnavailable.
type SummaryService struct {
	generator   textGenerator
	maxStudents int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewSummaryService creates a summary service from configuration. A missing
// API key is not an error; it produces a service without a generator.
func NewSummaryService(ctx context.Context, cfg config.SummaryConfig, logger *slog.Logger) (*SummaryService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &SummaryService{
		maxStudents: cfg.MaxStudents,
		timeout:     cfg.Timeout,
		logger:      logger.With(slog.String("service", "summary")),
	}
	if cfg.APIKey == "" {
		svc.logger.Info("summary generation disabled, no API key configured")
		return svc, nil
	}

	gen, err := newGenaiGenerator(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	svc.generator = gen
	return svc, nil
}

// Enabled reports whether a generator is configured.
func (s *SummaryService) Enabled() bool {
	return s.generator != nil
}

// Aggregate computes the class statistics for one upload. Subject averages
// cover only students with a score in that subject and are rounded to one
// decimal; subjects nobody scored in get a nil average.
func (s *SummaryService) Aggregate(payload *domain.UploadPayload) ClassStats {
	stats := ClassStats{
		StudentCount:    len(payload.Records),
		SubjectAverages: make([]domain.SubjectAverage, 0, len(payload.Meta.Subjects)),
	}

	for _, subject := range payload.Meta.Subjects {
		var sum float64
		var n int
		for _, rec := range payload.Records {
			if score, ok := rec.Scores[subject]; ok && score.Current != nil {
				sum += *score.Current
				n++
			}
		}
		avg := domain.SubjectAverage{Subject: subject}
		if n > 0 {
			v := roundOne(sum / float64(n))
			avg.Average = &v
		}
		stats.SubjectAverages = append(stats.SubjectAverages, avg)
	}

	if len(payload.Records) > 0 {
		var sum float64
		for _, rec := range payload.Records {
			sum += rec.TotalCurrent
		}
		v := roundOne(sum / float64(len(payload.Records)))
		stats.ClassAverage = &v
	}

	limit := len(payload.Records)
	if s.maxStudents > 0 && limit > s.maxStudents {
		limit = s.maxStudents
	}
	stats.Students = make([]domain.StudentSummary, 0, limit)
	for _, rec := range payload.Records[:limit] {
		stats.Students = append(stats.Students, domain.StudentSummary{
			Name:          rec.Name,
			TotalCurrent:  rec.TotalCurrent,
			TotalPrevious: rec.TotalPrevious,
			Delta:         rec.Delta,
		})
	}

	return stats
}

// Summarize builds the prompt from the upload's stats and makes a single
// generation call. There is no retry; a failed call surfaces as
// ErrSummaryFailed and the caller decides whether to try again.
func (s *SummaryService) Summarize(ctx context.Context, payload *domain.UploadPayload) (*SummaryResult, error) {
	stats := s.Aggregate(payload)

	if s.generator == nil {
		return nil, ErrSummaryUnavailable
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.generator.generate(ctx, buildPrompt(payload.Meta, stats))
	if err != nil {
		s.logger.ErrorContext(ctx, "summary generation failed",
			slog.String("upload_id", payload.Meta.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrSummaryFailed, err)
	}

	s.logger.InfoContext(ctx, "summary generated",
		slog.String("upload_id", payload.Meta.ID),
		slog.Int("chars", len(text)),
		slog.Duration("duration", time.Since(start)),
	)

	return &SummaryResult{
		UploadID:    payload.Meta.ID,
		Summary:     strings.TrimSpace(text),
		Stats:       stats,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// buildPrompt renders the aggregate stats as a compact plain-text briefing
// for the model.
func buildPrompt(meta domain.UploadMeta, stats ClassStats) string {
	var b strings.Builder
	b.WriteString("You are an assistant for school teachers. Write a short, plain-language ")
	b.WriteString("summary (3 to 5 sentences) of this class's exam performance. Mention overall ")
	b.WriteString("trends, the strongest and weakest subjects, and notable changes versus the ")
	b.WriteString("previous period if data is present. Do not invent facts.\n\n")

	fmt.Fprintf(&b, "Class: %s\n", meta.ClassName)
	fmt.Fprintf(&b, "Teacher: %s\n", meta.Teacher)
	if meta.ExamName != "" {
		fmt.Fprintf(&b, "Exam: %s\n", meta.ExamName)
	}
	fmt.Fprintf(&b, "Students: %d\n", stats.StudentCount)
	if stats.ClassAverage != nil {
		fmt.Fprintf(&b, "Class average total: %.1f\n", *stats.ClassAverage)
	}

	b.WriteString("\nSubject averages:\n")
	for _, avg := range stats.SubjectAverages {
		if avg.Average != nil {
			fmt.Fprintf(&b, "- %s: %.1f\n", avg.Subject, *avg.Average)
		} else {
			fmt.Fprintf(&b, "- %s: no scores\n", avg.Subject)
		}
	}

	b.WriteString("\nStudents (total, previous total, change):\n")
	for _, st := range stats.Students {
		if st.TotalPrevious != nil && st.Delta != nil {
			fmt.Fprintf(&b, "- %s: %.1f, %.1f, %+.1f\n", st.Name, st.TotalCurrent, *st.TotalPrevious, *st.Delta)
		} else {
			fmt.Fprintf(&b, "- %s: %.1f\n", st.Name, st.TotalCurrent)
		}
	}

	return b.String()
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
