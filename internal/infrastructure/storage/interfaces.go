package storage

import (
	"errors"
	"time"
)

// Sentinel errors callers branch on. Everything else is a transient
// storage failure and propagates up to abort the pass.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateMessage means a non-archived attempt already exists
	// for the source message id.
	ErrDuplicateMessage = errors.New("storage: duplicate source message id")

	// ErrPassportAlreadyPaid means the target passport was credited by
	// another writer first.
	ErrPassportAlreadyPaid = errors.New("storage: passport already paid")

	// ErrPassportNotPaid means a reopen was requested for a passport
	// that holds no credit.
	ErrPassportNotPaid = errors.New("storage: passport not paid")

	// ErrAttemptAlreadyMatched means a manual match was requested for
	// an attempt that already credited a passport.
	ErrAttemptAlreadyMatched = errors.New("storage: attempt already matched")
)

// Repository is the complete storage surface the pipeline and the
// operator service depend on. Splitting it per concern keeps mocks
// small and lets tests implement only what they exercise.
type Repository interface {
	PassportRepository
	AttemptRepository
	ScanRunRepository
	Close() error
}

// PassportRepository reads passports and mutates only their paid
// state. amount filtering is exact cents equality; the matcher never
// receives candidates of the wrong amount.
type PassportRepository interface {
	// FindUnpaidByAmount returns unpaid passports whose amount due is
	// exactly amountCents, oldest first.
	FindUnpaidByAmount(amountCents int64) ([]*Passport, error)

	// FindPassport returns the passport or ErrNotFound.
	FindPassport(id int64) (*Passport, error)

	// MarkPassportPaid flips an unpaid passport to paid. A lost race
	// surfaces as WasAlreadyPaid, never as a second transition.
	MarkPassportPaid(id int64, at time.Time) (CreditOutcome, error)

	// CreditPassport atomically marks the passport paid and records
	// the MATCHED attempt in one transaction. When the passport is
	// already paid nothing is written and WasAlreadyPaid is returned;
	// the caller records its own DUPLICATE attempt.
	CreditPassport(passportID int64, at time.Time, attempt *PaymentAttempt) (CreditOutcome, error)

	// ReopenPassport reverses a credit. The linked MATCHED or
	// MANUAL_PROCESSED attempt is archived in the same transaction;
	// reopening an unpaid passport is ErrPassportNotPaid.
	ReopenPassport(id int64) error

	// ManualMatch credits a passport the automated matcher did not
	// choose and rewrites the attempt to MANUAL_PROCESSED. Rejected
	// with ErrAttemptAlreadyMatched or ErrPassportAlreadyPaid.
	ManualMatch(attemptID, passportID int64, note string, at time.Time) error
}

// AttemptRepository is the append-only payment-attempt log.
type AttemptRepository interface {
	// RecordAttempt inserts one attempt. A non-archived row with the
	// same source message id makes this ErrDuplicateMessage.
	RecordAttempt(a *PaymentAttempt) error

	// GetAttempt returns the attempt or ErrNotFound.
	GetAttempt(id int64) (*PaymentAttempt, error)

	// FindAttemptByMessageID returns the non-archived attempt for the
	// source message id, or ErrNotFound. This is the duplicate check.
	FindAttemptByMessageID(sourceMessageID string) (*PaymentAttempt, error)

	// SetAttemptArchived toggles the archived flag. Unarchiving is
	// ErrDuplicateMessage when a newer non-archived attempt exists for
	// the same source message id.
	SetAttemptArchived(id int64, archived bool) error

	// ListAttempts returns a filtered, paged view of the log, newest
	// first.
	ListAttempts(f AttemptFilters) (*AttemptListResult, error)

	// GetStats aggregates the log for the operator dashboard.
	GetStats() (*Stats, error)
}

// ScanRunRepository tracks pipeline passes.
type ScanRunRepository interface {
	// StartScanRun records the start of a pass and returns the run id.
	StartScanRun(passID, account string) (int64, error)

	// CompleteScanRun records the end of a pass.
	CompleteScanRun(runID int64, seen, matched, skipped, errored int) error

	// ListScanRuns returns recent runs, newest first.
	ListScanRuns(limit int) ([]ScanRun, error)
}
