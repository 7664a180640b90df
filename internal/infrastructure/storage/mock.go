package storage

import (
	"sort"
	"time"
)

// MockRepository is an in-memory Repository for tests. Data lives in
// maps; hooks and error injection mirror how the SQLite implementation
// is exercised.
type MockRepository struct {
	passports map[int64]*Passport
	attempts  map[int64]*PaymentAttempt
	scanRuns  map[int64]*ScanRun

	nextPassportID int64
	nextAttemptID  int64
	nextRunID      int64

	// Hooks for test assertions
	RecordAttemptCalled  bool
	LastRecordedAttempt  *PaymentAttempt
	CreditPassportCalled bool
	LastCreditedPassport int64

	// Error injection for failure paths
	FindUnpaidErr     error
	RecordAttemptErr  error
	CreditPassportErr error
	StartScanRunErr   error
}

// Compile-time check that MockRepository implements Repository.
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty in-memory repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		passports:      make(map[int64]*Passport),
		attempts:       make(map[int64]*PaymentAttempt),
		scanRuns:       make(map[int64]*ScanRun),
		nextPassportID: 1,
		nextAttemptID:  1,
		nextRunID:      1,
	}
}

// Close is a no-op for the mock.
func (m *MockRepository) Close() error { return nil }

// AddPassport seeds a passport and returns its id.
func (m *MockRepository) AddPassport(p *Passport) int64 {
	if p.ID == 0 {
		p.ID = m.nextPassportID
	}
	if p.ID >= m.nextPassportID {
		m.nextPassportID = p.ID + 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.passports[p.ID] = p
	return p.ID
}

// Attempts returns all recorded attempts ordered by id, for
// assertions.
func (m *MockRepository) Attempts() []*PaymentAttempt {
	out := make([]*PaymentAttempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockRepository) FindUnpaidByAmount(amountCents int64) ([]*Passport, error) {
	if m.FindUnpaidErr != nil {
		return nil, m.FindUnpaidErr
	}
	var out []*Passport
	for _, p := range m.passports {
		if !p.Paid && p.AmountDueCents == amountCents {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockRepository) FindPassport(id int64) (*Passport, error) {
	p, ok := m.passports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *MockRepository) MarkPassportPaid(id int64, at time.Time) (CreditOutcome, error) {
	p, ok := m.passports[id]
	if !ok {
		return CreditOutcome{}, ErrNotFound
	}
	if p.Paid {
		return CreditOutcome{WasAlreadyPaid: true}, nil
	}
	p.Paid = true
	t := at
	p.PaidAt = &t
	return CreditOutcome{OK: true}, nil
}

func (m *MockRepository) CreditPassport(passportID int64, at time.Time, attempt *PaymentAttempt) (CreditOutcome, error) {
	m.CreditPassportCalled = true
	m.LastCreditedPassport = passportID
	if m.CreditPassportErr != nil {
		return CreditOutcome{}, m.CreditPassportErr
	}
	outcome, err := m.MarkPassportPaid(passportID, at)
	if err != nil || outcome.WasAlreadyPaid {
		return outcome, err
	}
	attempt.MatchedPassportID = &passportID
	if err := m.RecordAttempt(attempt); err != nil {
		// Undo the credit so the pair stays atomic.
		p := m.passports[passportID]
		p.Paid = false
		p.PaidAt = nil
		return CreditOutcome{}, err
	}
	return outcome, nil
}

func (m *MockRepository) ReopenPassport(id int64) error {
	p, ok := m.passports[id]
	if !ok {
		return ErrNotFound
	}
	if !p.Paid {
		return ErrPassportNotPaid
	}
	p.Paid = false
	p.PaidAt = nil
	for _, a := range m.attempts {
		if a.MatchedPassportID != nil && *a.MatchedPassportID == id && !a.Archived &&
			(a.Result == ResultMatched || a.Result == ResultManualProcessed) {
			a.Archived = true
		}
	}
	return nil
}

func (m *MockRepository) ManualMatch(attemptID, passportID int64, note string, at time.Time) error {
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	if a.Result == ResultMatched || a.Result == ResultManualProcessed {
		return ErrAttemptAlreadyMatched
	}
	outcome, err := m.MarkPassportPaid(passportID, at)
	if err != nil {
		return err
	}
	if outcome.WasAlreadyPaid {
		return ErrPassportAlreadyPaid
	}
	a.Result = ResultManualProcessed
	a.MatchedPassportID = &passportID
	a.Note = note
	return nil
}

func (m *MockRepository) RecordAttempt(a *PaymentAttempt) error {
	m.RecordAttemptCalled = true
	m.LastRecordedAttempt = a
	if m.RecordAttemptErr != nil {
		return m.RecordAttemptErr
	}
	if !a.Archived {
		for _, existing := range m.attempts {
			if !existing.Archived && existing.SourceMessageID == a.SourceMessageID {
				return ErrDuplicateMessage
			}
		}
	}
	a.ID = m.nextAttemptID
	m.nextAttemptID++
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *MockRepository) GetAttempt(id int64) (*PaymentAttempt, error) {
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *MockRepository) FindAttemptByMessageID(sourceMessageID string) (*PaymentAttempt, error) {
	for _, a := range m.attempts {
		if !a.Archived && a.SourceMessageID == sourceMessageID {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockRepository) SetAttemptArchived(id int64, archived bool) error {
	a, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if !archived && a.Archived {
		for _, other := range m.attempts {
			if other.ID != id && !other.Archived && other.SourceMessageID == a.SourceMessageID {
				return ErrDuplicateMessage
			}
		}
	}
	a.Archived = archived
	return nil
}

func (m *MockRepository) ListAttempts(f AttemptFilters) (*AttemptListResult, error) {
	var all []*PaymentAttempt
	for _, a := range m.attempts {
		if f.Result != "" && string(a.Result) != f.Result {
			continue
		}
		if f.Archived != nil && a.Archived != *f.Archived {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ReceivedAt.Equal(all[j].ReceivedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].ReceivedAt.After(all[j].ReceivedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	total := len(all)
	start := f.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &AttemptListResult{
		Attempts:   all[start:end],
		TotalCount: total,
		Limit:      limit,
		Offset:     f.Offset,
	}, nil
}

func (m *MockRepository) GetStats() (*Stats, error) {
	stats := &Stats{ByResult: make(map[string]int)}
	for _, a := range m.attempts {
		stats.ByResult[string(a.Result)]++
		stats.TotalAttempts++
		if a.Archived {
			stats.ArchivedCount++
		}
	}
	for _, p := range m.passports {
		if p.Paid {
			stats.PaidPassports++
		} else {
			stats.UnpaidPassports++
		}
	}
	return stats, nil
}

func (m *MockRepository) StartScanRun(passID, account string) (int64, error) {
	if m.StartScanRunErr != nil {
		return 0, m.StartScanRunErr
	}
	id := m.nextRunID
	m.nextRunID++
	m.scanRuns[id] = &ScanRun{
		ID:        id,
		PassID:    passID,
		Account:   account,
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	return id, nil
}

func (m *MockRepository) CompleteScanRun(runID int64, seen, matched, skipped, errored int) error {
	r, ok := m.scanRuns[runID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.MessagesSeen = seen
	r.MessagesMatched = matched
	r.MessagesSkipped = skipped
	r.MessagesErrored = errored
	r.Status = "completed"
	if errored > 0 {
		r.Status = "completed_with_errors"
	}
	return nil
}

func (m *MockRepository) ListScanRuns(limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []ScanRun
	for _, r := range m.scanRuns {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
