package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultListLimit = 50

// Service handles activity log operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record logs an activity entry with the current timestamp if missing.
func (s *Service) Record(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Type == "" {
		return ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("activity recorded", "type", entry.Type, "summary", entry.Summary)
	}
	return nil
}

// Recent lists activity entries with filtering, newest first.
func (s *Service) Recent(ctx context.Context, opts ListOptions) ([]Entry, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	return s.repo.List(ctx, opts)
}
