package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/minipass/reconciler/internal/domain/money"
)

// Result classifies the outcome of one processed notification.
type Result string

const (
	ResultMatched         Result = "MATCHED"
	ResultNoMatch         Result = "NO_MATCH"
	ResultAmbiguous       Result = "AMBIGUOUS"
	ResultManualProcessed Result = "MANUAL_PROCESSED"
	ResultDuplicate       Result = "DUPLICATE"
	ResultParseError      Result = "PARSE_ERROR"
)

// Passport is a prepaid admission token. Rows are created and priced
// by the surrounding system; this core only toggles Paid and PaidAt.
type Passport struct {
	ID             int64      `json:"id"`
	OwnerName      string     `json:"owner_name"`
	LinkedUserName *string    `json:"linked_user_name,omitempty"`
	AmountDueCents int64      `json:"amount_due_cents"`
	Paid           bool       `json:"paid"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AmountDue returns the fixed-point amount owed on this passport.
func (p *Passport) AmountDue() decimal.Decimal {
	return money.FromCents(p.AmountDueCents)
}

// MatchName is the name the matcher scores against: the linked user
// name when the surrounding system has one, else the owner name.
func (p *Passport) MatchName() string {
	if p.LinkedUserName != nil && *p.LinkedUserName != "" {
		return *p.LinkedUserName
	}
	return p.OwnerName
}

// PaymentAttempt is the append-only record of one email's journey
// through the pipeline, whatever the outcome. Archive toggles
// presentation; rows are never deleted.
type PaymentAttempt struct {
	ID                int64     `json:"id"`
	ReceivedAt        time.Time `json:"received_at"`
	PayerNameRaw      string    `json:"payer_name_raw"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	Result            Result    `json:"result"`
	MatchedPassportID *int64    `json:"matched_passport_id,omitempty"`
	Score             *int      `json:"score,omitempty"`
	RunnerUpScore     *int      `json:"runner_up_score,omitempty"`
	CandidateCount    int       `json:"candidate_count"`
	Note              string    `json:"note,omitempty"`
	SourceMessageID   string    `json:"source_message_id"`
	Archived          bool      `json:"archived"`
	CreatedAt         time.Time `json:"created_at"`
}

// Amount returns the fixed-point amount the bank reported.
func (a *PaymentAttempt) Amount() decimal.Decimal {
	return money.FromCents(a.AmountCents)
}

// CreditOutcome reports what happened when crediting a passport.
// WasAlreadyPaid means another writer won the race; the passport keeps
// its first credit and the caller downgrades the attempt to DUPLICATE.
type CreditOutcome struct {
	OK             bool
	WasAlreadyPaid bool
}

// AttemptFilters narrows and pages ListAttempts.
type AttemptFilters struct {
	Result   string // empty = all
	Archived *bool  // nil = both
	DaysBack int    // 0 = all time
	Limit    int    // 0 = default 50
	Offset   int
}

// AttemptListResult is one page of attempts plus the unpaged total.
type AttemptListResult struct {
	Attempts   []*PaymentAttempt `json:"attempts"`
	TotalCount int               `json:"total_count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// ScanRun records one pipeline pass over a mailbox account.
type ScanRun struct {
	ID              int64      `json:"id"`
	PassID          string     `json:"pass_id"`
	Account         string     `json:"account"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	MessagesSeen    int        `json:"messages_seen"`
	MessagesMatched int        `json:"messages_matched"`
	MessagesSkipped int        `json:"messages_skipped"`
	MessagesErrored int        `json:"messages_errored"`
	Status          string     `json:"status"`
}

// Stats aggregates the attempt log for the operator dashboard.
type Stats struct {
	TotalAttempts   int            `json:"total_attempts"`
	ByResult        map[string]int `json:"by_result"`
	ArchivedCount   int            `json:"archived_count"`
	UnpaidPassports int            `json:"unpaid_passports"`
	PaidPassports   int            `json:"paid_passports"`
}
