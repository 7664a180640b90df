package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Storage provides SQLite access for passports, the payment-attempt
// log and scan runs. It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository.
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath and runs
// all pending migrations.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Credit transactions take a write lock; give concurrent readers a
	// grace period instead of failing immediately.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Storage{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. Constraint violations on the live-attempt index are treated
// as duplicates, not as storage failures.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// ---- passports ----

const passportColumns = `id, owner_name, linked_user_name, amount_due_cents, paid, paid_at, created_at`

func scanPassport(row interface{ Scan(...any) error }) (*Passport, error) {
	p := &Passport{}
	var linked sql.NullString
	var paidAt sql.NullTime
	if err := row.Scan(&p.ID, &p.OwnerName, &linked, &p.AmountDueCents, &p.Paid, &paidAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	if linked.Valid {
		p.LinkedUserName = &linked.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return p, nil
}

// FindUnpaidByAmount returns unpaid passports at exactly amountCents,
// oldest first so first-in-first-out holds on score ties.
func (s *Storage) FindUnpaidByAmount(amountCents int64) ([]*Passport, error) {
	rows, err := s.db.Query(`
	SELECT `+passportColumns+` FROM passports
	WHERE amount_due_cents = ? AND paid = 0
	ORDER BY created_at ASC, id ASC`, amountCents)
	if err != nil {
		return nil, fmt.Errorf("query unpaid passports: %w", err)
	}
	defer rows.Close()

	var passports []*Passport
	for rows.Next() {
		p, err := scanPassport(rows)
		if err != nil {
			return nil, err
		}
		passports = append(passports, p)
	}
	return passports, rows.Err()
}

// FindPassport retrieves a passport by id.
func (s *Storage) FindPassport(id int64) (*Passport, error) {
	row := s.db.QueryRow(`SELECT `+passportColumns+` FROM passports WHERE id = ?`, id)
	p, err := scanPassport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// InsertPassport seeds a passport row. Production rows are created by
// the surrounding system; this exists for tests and ops tooling.
func (s *Storage) InsertPassport(p *Passport) (int64, error) {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
	INSERT INTO passports (owner_name, linked_user_name, amount_due_cents, paid, paid_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		p.OwnerName, p.LinkedUserName, p.AmountDueCents, p.Paid, p.PaidAt, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert passport: %w", err)
	}
	return res.LastInsertId()
}

// markPaidTx flips an unpaid passport to paid inside tx. The guarded
// UPDATE is the whole race story: whoever runs it first wins, everyone
// else sees zero rows.
func markPaidTx(tx *sql.Tx, id int64, at time.Time) (CreditOutcome, error) {
	res, err := tx.Exec(`UPDATE passports SET paid = 1, paid_at = ? WHERE id = ? AND paid = 0`, at, id)
	if err != nil {
		return CreditOutcome{}, fmt.Errorf("mark passport %d paid: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CreditOutcome{}, err
	}
	if n == 1 {
		return CreditOutcome{OK: true}, nil
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM passports WHERE id = ?)`, id).Scan(&exists); err != nil {
		return CreditOutcome{}, err
	}
	if !exists {
		return CreditOutcome{}, ErrNotFound
	}
	return CreditOutcome{WasAlreadyPaid: true}, nil
}

// MarkPassportPaid flips an unpaid passport to paid.
func (s *Storage) MarkPassportPaid(id int64, at time.Time) (CreditOutcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return CreditOutcome{}, err
	}
	outcome, err := markPaidTx(tx, id, at)
	if err != nil {
		_ = tx.Rollback()
		return CreditOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreditOutcome{}, err
	}
	return outcome, nil
}

// CreditPassport atomically marks the passport paid and records the
// attempt. Either both writes commit or neither does; this is the
// invariant "every paid passport has exactly one MATCHED attempt".
func (s *Storage) CreditPassport(passportID int64, at time.Time, attempt *PaymentAttempt) (CreditOutcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return CreditOutcome{}, err
	}

	outcome, err := markPaidTx(tx, passportID, at)
	if err != nil {
		_ = tx.Rollback()
		return CreditOutcome{}, err
	}
	if outcome.WasAlreadyPaid {
		_ = tx.Rollback()
		return outcome, nil
	}

	attempt.MatchedPassportID = &passportID
	id, err := insertAttempt(tx, attempt)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return CreditOutcome{}, ErrDuplicateMessage
		}
		return CreditOutcome{}, fmt.Errorf("record matched attempt: %w", err)
	}
	attempt.ID = id

	if err := tx.Commit(); err != nil {
		return CreditOutcome{}, err
	}
	return outcome, nil
}

// ReopenPassport reverses a credit, archiving the linked attempt in
// the same transaction so the message becomes re-processable.
func (s *Storage) ReopenPassport(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	res, err := tx.Exec(`UPDATE passports SET paid = 0, paid_at = NULL WHERE id = ? AND paid = 1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reopen passport %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		_ = tx.Rollback()
		var exists bool
		if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM passports WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrPassportNotPaid
	}

	// Archive whichever live attempt holds the credit.
	if _, err := tx.Exec(`
	UPDATE payment_attempts SET archived = 1
	WHERE matched_passport_id = ? AND archived = 0 AND result IN (?, ?)`,
		id, ResultMatched, ResultManualProcessed); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("archive linked attempt: %w", err)
	}

	return tx.Commit()
}

// ManualMatch credits a passport chosen by an operator and rewrites
// the attempt to MANUAL_PROCESSED.
func (s *Storage) ManualMatch(attemptID, passportID int64, note string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	var result Result
	err = tx.QueryRow(`SELECT result FROM payment_attempts WHERE id = ?`, attemptID).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return ErrNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if result == ResultMatched || result == ResultManualProcessed {
		_ = tx.Rollback()
		return ErrAttemptAlreadyMatched
	}

	outcome, err := markPaidTx(tx, passportID, at)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if outcome.WasAlreadyPaid {
		_ = tx.Rollback()
		return ErrPassportAlreadyPaid
	}

	if _, err := tx.Exec(`
	UPDATE payment_attempts SET result = ?, matched_passport_id = ?, note = ?
	WHERE id = ?`, ResultManualProcessed, passportID, note, attemptID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rewrite attempt %d: %w", attemptID, err)
	}

	return tx.Commit()
}

// ---- payment attempts ----

const attemptColumns = `id, received_at, payer_name_raw, amount_cents, currency, result,
	matched_passport_id, score, runner_up_score, candidate_count, note,
	source_message_id, archived, created_at`

func scanAttempt(row interface{ Scan(...any) error }) (*PaymentAttempt, error) {
	a := &PaymentAttempt{}
	var passportID sql.NullInt64
	var score, runnerUp sql.NullInt64
	if err := row.Scan(&a.ID, &a.ReceivedAt, &a.PayerNameRaw, &a.AmountCents, &a.Currency,
		&a.Result, &passportID, &score, &runnerUp, &a.CandidateCount, &a.Note,
		&a.SourceMessageID, &a.Archived, &a.CreatedAt); err != nil {
		return nil, err
	}
	if passportID.Valid {
		v := passportID.Int64
		a.MatchedPassportID = &v
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	if runnerUp.Valid {
		v := int(runnerUp.Int64)
		a.RunnerUpScore = &v
	}
	return a, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertAttempt(e execer, a *PaymentAttempt) (int64, error) {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := e.Exec(`
	INSERT INTO payment_attempts
	(received_at, payer_name_raw, amount_cents, currency, result,
	 matched_passport_id, score, runner_up_score, candidate_count, note,
	 source_message_id, archived, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ReceivedAt, a.PayerNameRaw, a.AmountCents, a.Currency, a.Result,
		a.MatchedPassportID, a.Score, a.RunnerUpScore, a.CandidateCount, a.Note,
		a.SourceMessageID, a.Archived, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordAttempt appends one attempt to the log.
func (s *Storage) RecordAttempt(a *PaymentAttempt) error {
	id, err := insertAttempt(s.db, a)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("record attempt: %w", err)
	}
	a.ID = id
	return nil
}

// GetAttempt retrieves an attempt by id.
func (s *Storage) GetAttempt(id int64) (*PaymentAttempt, error) {
	row := s.db.QueryRow(`SELECT `+attemptColumns+` FROM payment_attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindAttemptByMessageID returns the live attempt for a source message
// id. At most one exists by construction.
func (s *Storage) FindAttemptByMessageID(sourceMessageID string) (*PaymentAttempt, error) {
	row := s.db.QueryRow(`
	SELECT `+attemptColumns+` FROM payment_attempts
	WHERE source_message_id = ? AND archived = 0`, sourceMessageID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetAttemptArchived toggles the archived flag on an attempt.
func (s *Storage) SetAttemptArchived(id int64, archived bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	var msgID string
	var current bool
	err = tx.QueryRow(`SELECT source_message_id, archived FROM payment_attempts WHERE id = ?`, id).Scan(&msgID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return ErrNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if !archived && current {
		// Unarchive must not resurrect a second live attempt for the
		// same message.
		var clash bool
		if err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM payment_attempts
		WHERE source_message_id = ? AND archived = 0 AND id != ?)`, msgID, id).Scan(&clash); err != nil {
			_ = tx.Rollback()
			return err
		}
		if clash {
			_ = tx.Rollback()
			return ErrDuplicateMessage
		}
	}

	if _, err := tx.Exec(`UPDATE payment_attempts SET archived = ? WHERE id = ?`, archived, id); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return err
	}
	return tx.Commit()
}

// ListAttempts returns a filtered page of the attempt log.
func (s *Storage) ListAttempts(f AttemptFilters) (*AttemptListResult, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.Result != "" {
		where = append(where, "result = ?")
		args = append(args, f.Result)
	}
	if f.Archived != nil {
		where = append(where, "archived = ?")
		args = append(args, *f.Archived)
	}
	if f.DaysBack > 0 {
		where = append(where, "received_at >= ?")
		args = append(args, time.Now().UTC().AddDate(0, 0, -f.DaysBack))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM payment_attempts WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	pageArgs := append(args, limit, f.Offset)

	rows, err := s.db.Query(`
	SELECT `+attemptColumns+` FROM payment_attempts
	WHERE `+clause+`
	ORDER BY received_at DESC, id DESC
	LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	result := &AttemptListResult{
		Attempts:   []*PaymentAttempt{},
		TotalCount: total,
		Limit:      limit,
		Offset:     f.Offset,
	}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		result.Attempts = append(result.Attempts, a)
	}
	return result, rows.Err()
}

// GetStats aggregates attempt and passport counts.
func (s *Storage) GetStats() (*Stats, error) {
	stats := &Stats{ByResult: make(map[string]int)}

	rows, err := s.db.Query(`SELECT result, COUNT(*) FROM payment_attempts GROUP BY result`)
	if err != nil {
		return nil, fmt.Errorf("aggregate attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var result string
		var count int
		if err := rows.Scan(&result, &count); err != nil {
			return nil, err
		}
		stats.ByResult[result] = count
		stats.TotalAttempts += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM payment_attempts WHERE archived = 1`).Scan(&stats.ArchivedCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM passports WHERE paid = 0`).Scan(&stats.UnpaidPassports); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM passports WHERE paid = 1`).Scan(&stats.PaidPassports); err != nil {
		return nil, err
	}

	return stats, nil
}

// ---- scan runs ----

// StartScanRun records the start of a pipeline pass.
func (s *Storage) StartScanRun(passID, account string) (int64, error) {
	res, err := s.db.Exec(`
	INSERT INTO scan_runs (pass_id, account, started_at, status)
	VALUES (?, ?, ?, 'running')`, passID, account, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("start scan run: %w", err)
	}
	return res.LastInsertId()
}

// CompleteScanRun records the end of a pipeline pass.
func (s *Storage) CompleteScanRun(runID int64, seen, matched, skipped, errored int) error {
	status := "completed"
	if errored > 0 {
		status = "completed_with_errors"
	}
	_, err := s.db.Exec(`
	UPDATE scan_runs
	SET completed_at = ?, messages_seen = ?, messages_matched = ?,
	    messages_skipped = ?, messages_errored = ?, status = ?
	WHERE id = ?`, time.Now().UTC(), seen, matched, skipped, errored, status, runID)
	if err != nil {
		return fmt.Errorf("complete scan run %d: %w", runID, err)
	}
	return nil
}

// ListScanRuns returns recent scan runs, newest first.
func (s *Storage) ListScanRuns(limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
	SELECT id, pass_id, account, started_at, completed_at,
	       messages_seen, messages_matched, messages_skipped, messages_errored, status
	FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var r ScanRun
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.PassID, &r.Account, &r.StartedAt, &completed,
			&r.MessagesSeen, &r.MessagesMatched, &r.MessagesSkipped, &r.MessagesErrored, &r.Status); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
