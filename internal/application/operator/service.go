// Package operator is the human-override surface: everything the
// automated pass could not settle on its own gets resolved here, and
// every resolution lands in the same attempt log the pass writes to.
package operator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// Service exposes the operator operations over the repository.
type Service struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewService creates an operator service.
func NewService(repo storage.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListAttempts returns a filtered page of the attempt log.
func (s *Service) ListAttempts(f storage.AttemptFilters) (*storage.AttemptListResult, error) {
	return s.repo.ListAttempts(f)
}

// GetAttempt returns one attempt.
func (s *Service) GetAttempt(id int64) (*storage.PaymentAttempt, error) {
	return s.repo.GetAttempt(id)
}

// ArchiveAttempt hides an attempt from the default list view. The row
// stays in the log; archiving also releases its source message id so
// a corrected redelivery can be processed fresh.
func (s *Service) ArchiveAttempt(id int64) error {
	if err := s.repo.SetAttemptArchived(id, true); err != nil {
		return err
	}
	s.logger.Info("Attempt archived", "attempt_id", id)
	return nil
}

// UnarchiveAttempt restores an archived attempt to the live view.
// Refused when a newer live attempt has since claimed the same source
// message id.
func (s *Service) UnarchiveAttempt(id int64) error {
	if err := s.repo.SetAttemptArchived(id, false); err != nil {
		if errors.Is(err, storage.ErrDuplicateMessage) {
			return fmt.Errorf("attempt %d: a newer attempt holds this message: %w", id, err)
		}
		return err
	}
	s.logger.Info("Attempt unarchived", "attempt_id", id)
	return nil
}

// ManualMatch credits a passport the matcher did not pick, on the
// operator's authority. The attempt becomes MANUAL_PROCESSED and the
// note records who decided what.
func (s *Service) ManualMatch(attemptID, passportID int64, note string) error {
	if err := s.repo.ManualMatch(attemptID, passportID, note, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info("Manual match applied",
		"attempt_id", attemptID,
		"passport_id", passportID)
	return nil
}

// ReopenPassport reverses a credit, archiving the attempt that
// produced it. Used when a match turns out to be wrong.
func (s *Service) ReopenPassport(id int64) error {
	if err := s.repo.ReopenPassport(id); err != nil {
		return err
	}
	s.logger.Info("Passport reopened", "passport_id", id)
	return nil
}

// GetPassport returns one passport.
func (s *Service) GetPassport(id int64) (*storage.Passport, error) {
	return s.repo.FindPassport(id)
}

// Stats aggregates the log for the dashboard.
func (s *Service) Stats() (*storage.Stats, error) {
	return s.repo.GetStats()
}

// ListScanRuns returns recent pipeline passes.
func (s *Service) ListScanRuns(limit int) ([]storage.ScanRun, error) {
	return s.repo.ListScanRuns(limit)
}
