// Package scan runs the reconciliation pass: pull candidate
// notifications from the mailbox, parse, match, credit, record, and
// move each message aside exactly once.
package scan

import (
	"errors"
	"log/slog"
	"time"

	"github.com/minipass/reconciler/internal/adapters/mailbox"
	"github.com/minipass/reconciler/internal/domain/matcher"
	"github.com/minipass/reconciler/internal/domain/parser"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// ErrAlreadyRunning means a pass for this account is still in flight.
// Passes never overlap; the caller just waits for the next cycle.
var ErrAlreadyRunning = errors.New("scan: pass already running")

// Options wires an orchestrator.
type Options struct {
	Dialer  mailbox.Dialer
	Repo    storage.Repository
	Parser  *parser.Parser
	Matcher *matcher.Matcher
	Logger  *slog.Logger

	// Account labels scan runs, usually the mailbox username.
	Account string

	// AllowedSenders, when non-empty, restricts processing to messages
	// whose From address matches one of these exactly. Anything else is
	// left untouched in the inbox.
	AllowedSenders []string

	// PassTimeout bounds one whole pass. Zero means no deadline beyond
	// the caller's context.
	PassTimeout time.Duration
}

// PassSummary reports what one pass did.
type PassSummary struct {
	PassID   string        `json:"pass_id"`
	Seen     int           `json:"seen"`
	Matched  int           `json:"matched"`
	Skipped  int           `json:"skipped"`
	Errored  int           `json:"errored"`
	Duration time.Duration `json:"duration"`
}
