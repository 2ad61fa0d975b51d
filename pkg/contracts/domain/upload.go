package domain

import (
	"time"
)

// SubjectScore holds one subject's marks for one student in one reporting
// period. A nil Current means the primary sheet had no mark for the subject;
// a nil Previous means no prior-period value was found by any lookup path.
type SubjectScore struct {
	Current  *float64 `json:"current"`
	Previous *float64 `json:"previous"`
}

// StudentRecord is the normalized per-student result of one ingestion.
// Scores is keyed by the detected subject set; column order is carried by
// UploadMeta.Subjects. TotalPrevious and Delta are both present or both
// absent, depending on whether any subject had a previous value.
type StudentRecord struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Scores        map[string]SubjectScore `json:"scores"`
	TotalCurrent  float64                 `json:"total_current"`
	TotalPrevious *float64                `json:"total_previous,omitempty"`
	Delta         *float64                `json:"delta,omitempty"`
}

// HasPrevious reports whether the record carries prior-period totals.
func (r *StudentRecord) HasPrevious() bool {
	return r.TotalPrevious != nil
}

// UploadMeta describes one upload. Subjects is the same ordered list used
// as keys in every record's score map, and StudentCount always equals the
// number of records in the payload.
type UploadMeta struct {
	ID           string    `json:"id" validate:"required,uuid"`
	Teacher      string    `json:"teacher" validate:"required"`
	ClassName    string    `json:"class_name" validate:"required"`
	Subject      string    `json:"subject" validate:"required"`
	ExamName     string    `json:"exam_name,omitempty"`
	TotalMarks   int       `json:"total_marks,omitempty"`
	PassingMarks int       `json:"passing_marks,omitempty"`
	ExamDate     time.Time `json:"exam_date,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Subjects     []string  `json:"subjects"`
	StudentCount int       `json:"student_count"`
	Warnings     []string  `json:"warnings"`
	FileName     string    `json:"file_name,omitempty"`
}

// UploadPayload is the complete normalized output of one ingestion call and
// the unit passed across every boundary (store, transport, export, summary).
// Once constructed it is never mutated; a re-upload produces a new payload
// with a new identifier.
type UploadPayload struct {
	Meta    UploadMeta      `json:"meta"`
	Records []StudentRecord `json:"records"`
}

// ExamOptions carries the teacher-supplied metadata for an ingestion call.
// TotalMarks and PassingMarks are optional; when both are positive, passing
// must not exceed total (enforced by the upload service).
type ExamOptions struct {
	Teacher      string    `json:"teacher" validate:"required,min=1,max=200"`
	ClassName    string    `json:"class_name" validate:"required,min=1,max=200"`
	Subject      string    `json:"subject" validate:"required,min=1,max=200"`
	ExamName     string    `json:"exam_name,omitempty" validate:"max=200"`
	TotalMarks   int       `json:"total_marks,omitempty" validate:"min=0"`
	PassingMarks int       `json:"passing_marks,omitempty" validate:"min=0"`
	ExamDate     time.Time `json:"exam_date,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
}

// SubjectAverage is the per-subject mean of non-nil current scores,
// rounded to one decimal. Nil when no student had a score for the subject.
type SubjectAverage struct {
	Subject string   `json:"subject"`
	Average *float64 `json:"average"`
}

// StudentSummary is the compact per-student view sent to the summary
// service. TotalPrevious and Delta mirror the record's both-or-neither rule.
type StudentSummary struct {
	Name          string   `json:"name"`
	TotalCurrent  float64  `json:"total_current"`
	TotalPrevious *float64 `json:"total_previous"`
	Delta         *float64 `json:"delta"`
}
