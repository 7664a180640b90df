package dto

import "time"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// AttemptResponse represents a payment attempt in API responses.
// Amounts are fixed-point strings; float64 loses cents.
type AttemptResponse struct {
	ID                int64     `json:"id"`
	ReceivedAt        time.Time `json:"received_at"`
	PayerName         string    `json:"payer_name"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Result            string    `json:"result"`
	MatchedPassportID *int64    `json:"matched_passport_id,omitempty"`
	Score             *int      `json:"score,omitempty"`
	RunnerUpScore     *int      `json:"runner_up_score,omitempty"`
	CandidateCount    int       `json:"candidate_count"`
	Note              string    `json:"note,omitempty"`
	SourceMessageID   string    `json:"source_message_id"`
	Archived          bool      `json:"archived"`
	CreatedAt         time.Time `json:"created_at"`
}

// AttemptListResponse is returned when listing attempts.
type AttemptListResponse struct {
	Attempts   []AttemptResponse `json:"attempts"`
	TotalCount int               `json:"total_count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// PassportResponse represents a passport in API responses.
type PassportResponse struct {
	ID             int64      `json:"id"`
	OwnerName      string     `json:"owner_name"`
	LinkedUserName *string    `json:"linked_user_name,omitempty"`
	AmountDue      string     `json:"amount_due"`
	Paid           bool       `json:"paid"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ScanRunResponse represents one pipeline pass.
type ScanRunResponse struct {
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

// ScanRunListResponse is returned when listing scan runs.
type ScanRunListResponse struct {
	Runs  []ScanRunResponse `json:"runs"`
	Count int               `json:"count"`
}

// StatsResponse is returned by the stats endpoint.
type StatsResponse struct {
	TotalAttempts   int            `json:"total_attempts"`
	ByResult        map[string]int `json:"by_result"`
	ArchivedCount   int            `json:"archived_count"`
	UnpaidPassports int            `json:"unpaid_passports"`
	PaidPassports   int            `json:"paid_passports"`
}
