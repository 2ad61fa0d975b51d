// Package store persists upload payloads as plain JSON under a data
// directory: one file per payload plus a bounded, most-recent-first history
// list of upload metadata. There is a single writer in practice; a mutex
// keeps the history file consistent under concurrent test access.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"classpulse/pkg/contracts/domain"
)

const (
	historyFile = "history.json"
	uploadsDir  = "uploads"

	// DefaultHistoryCap bounds the history list; inserting past the cap
	// evicts the oldest entry.
	DefaultHistoryCap = 20
)

// ErrNotFound is returned when no payload exists for an identifier.
var ErrNotFound = errors.New("upload not found")

// Store is a keyed JSON store for upload payloads.
type Store struct {
	dir        string
	historyCap int
	logger     *slog.Logger

	mu sync.Mutex
}

// New creates a store rooted at dir, creating the directory layout if
// needed. A historyCap <= 0 falls back to DefaultHistoryCap.
func New(logger *slog.Logger, dir string, historyCap int) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	if err := os.MkdirAll(filepath.Join(dir, uploadsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{
		dir:        dir,
		historyCap: historyCap,
		logger:     logger.With(slog.String("component", "store")),
	}, nil
}

// Save persists the payload and prepends its metadata to the history list,
// evicting the oldest entry past the cap. Evicted entries lose their history
// row only; the payload file stays until deleted by identifier.
func (s *Store) Save(payload *domain.UploadPayload) error {
	if payload == nil || payload.Meta.ID == "" {
		return errors.New("payload has no identifier")
	}
	if err := validateID(payload.Meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.payloadPath(payload.Meta.ID), payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	history, err := s.readHistory()
	if err != nil {
		return err
	}
	history = append([]domain.UploadMeta{payload.Meta}, history...)
	if len(history) > s.historyCap {
		history = history[:s.historyCap]
	}
	if err := writeJSON(s.historyPath(), history); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	s.logger.Info("upload saved",
		slog.String("upload_id", payload.Meta.ID),
		slog.Int("students", payload.Meta.StudentCount),
		slog.Int("history_size", len(history)))
	return nil
}

// Get loads one payload by identifier.
func (s *Store) Get(id string) (*domain.UploadPayload, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.payloadPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	var payload domain.UploadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload %s: %w", id, err)
	}
	return &payload, nil
}

// History returns the metadata list, most recent first.
func (s *Store) History() ([]domain.UploadMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistory()
}

// Delete removes the payload and its history entry.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.payloadPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to remove payload: %w", err)
	}

	history, err := s.readHistory()
	if err != nil {
		return err
	}
	kept := history[:0]
	for _, meta := range history {
		if meta.ID != id {
			kept = append(kept, meta)
		}
	}
	if err := writeJSON(s.historyPath(), kept); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	s.logger.Info("upload deleted", slog.String("upload_id", id))
	return nil
}

func (s *Store) historyPath() string {
	return filepath.Join(s.dir, historyFile)
}

func (s *Store) payloadPath(id string) string {
	return filepath.Join(s.dir, uploadsDir, id+".json")
}

func (s *Store) readHistory() ([]domain.UploadMeta, error) {
	data, err := os.ReadFile(s.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.UploadMeta{}, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var history []domain.UploadMeta
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return history, nil
}

// writeJSON writes through a temp file and renames, so readers never see a
// partial document.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// validateID rejects identifiers that could escape the uploads directory.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid upload id %q", id)
	}
	return nil
}
