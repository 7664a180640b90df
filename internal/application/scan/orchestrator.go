package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minipass/reconciler/internal/adapters/mailbox"
	"github.com/minipass/reconciler/internal/domain/money"
	"github.com/minipass/reconciler/internal/domain/parser"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// Orchestrator runs reconciliation passes. One orchestrator per
// mailbox account; the internal lock guarantees passes never overlap.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	mu     sync.Mutex
}

// NewOrchestrator validates the wiring and returns an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Dialer == nil || opts.Repo == nil || opts.Parser == nil || opts.Matcher == nil {
		return nil, errors.New("scan: dialer, repo, parser and matcher are all required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, logger: logger}, nil
}

// outcome classifies what processMessage did with one message.
type outcome int

const (
	outcomeMatched outcome = iota
	outcomeSkipped
	outcomeErrored
	// outcomeRecorded covers NO_MATCH and AMBIGUOUS: logged for the
	// operator, counted as seen only.
	outcomeRecorded
)

// RunPass executes one full pass: dial, list, process each message,
// record the run. A transient mailbox or storage failure aborts the
// pass mid-way; everything already moved stays moved and the rest is
// picked up next cycle.
func (o *Orchestrator) RunPass(ctx context.Context) (*PassSummary, error) {
	if !o.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer o.mu.Unlock()

	if o.opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PassTimeout)
		defer cancel()
	}

	start := time.Now()
	summary := &PassSummary{PassID: uuid.NewString()}
	logger := o.logger.With("pass_id", summary.PassID)

	runID, err := o.opts.Repo.StartScanRun(summary.PassID, o.opts.Account)
	if err != nil {
		return nil, fmt.Errorf("start scan run: %w", err)
	}

	passErr := o.runPass(ctx, logger, summary)
	if passErr != nil {
		summary.Errored++
	}
	summary.Duration = time.Since(start)

	if err := o.opts.Repo.CompleteScanRun(runID, summary.Seen, summary.Matched, summary.Skipped, summary.Errored); err != nil {
		logger.Error("Failed to record scan run completion", "error", err)
	}

	logger.Info("Pass finished",
		"seen", summary.Seen,
		"matched", summary.Matched,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"duration", summary.Duration.Round(time.Millisecond))

	if passErr != nil {
		return summary, passErr
	}
	return summary, nil
}

func (o *Orchestrator) runPass(ctx context.Context, logger *slog.Logger, summary *PassSummary) error {
	session, err := o.opts.Dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("open mailbox: %w", err)
	}
	defer session.Logout()

	messages, err := session.Messages(ctx)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	logger.Info("Pass started", "account", o.opts.Account, "candidates", len(messages))

	for _, msg := range messages {
		summary.Seen++

		result, err := o.processMessage(ctx, logger, session, msg)
		if err != nil {
			// Transient failure: stop here, leave the remaining
			// messages untouched for the next pass.
			return fmt.Errorf("message %s: %w", msg.MessageID, err)
		}

		switch result {
		case outcomeMatched:
			summary.Matched++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeErrored:
			summary.Errored++
		}
	}

	return nil
}

func (o *Orchestrator) processMessage(ctx context.Context, logger *slog.Logger, session mailbox.Session, msg mailbox.Message) (outcome, error) {
	logger = logger.With("message_id", msg.MessageID, "uid", msg.UID)

	if !o.senderAllowed(msg.From) {
		logger.Warn("Sender not on allow-list, leaving message untouched", "from", msg.From)
		return outcomeSkipped, nil
	}

	// Redelivery check before parsing: the first attempt row, whatever
	// its result, already settled this message.
	original, err := o.opts.Repo.FindAttemptByMessageID(msg.MessageID)
	switch {
	case err == nil:
		logger.Info("Duplicate delivery", "original_attempt", original.ID)
		dup := duplicateAttempt(msg, original)
		if err := o.opts.Repo.RecordAttempt(dup); err != nil {
			return 0, fmt.Errorf("record duplicate: %w", err)
		}
		if err := session.MoveToProcessed(ctx, msg.UID); err != nil {
			return 0, err
		}
		return outcomeSkipped, nil
	case errors.Is(err, storage.ErrNotFound):
		// First sighting, continue.
	default:
		return 0, fmt.Errorf("duplicate check: %w", err)
	}

	payment, err := o.opts.Parser.Parse(msg.Subject)
	if err != nil {
		var perr *parser.ParseError
		if !errors.As(err, &perr) {
			return 0, fmt.Errorf("parse: %w", err)
		}
		logger.Warn("Unparseable subject", "reason", perr.Reason)
		if err := o.record(parseErrorAttempt(msg, perr)); err != nil {
			return 0, err
		}
		if err := session.MoveToProcessed(ctx, msg.UID); err != nil {
			return 0, err
		}
		return outcomeErrored, nil
	}
	payment.ReceivedAt = msg.ReceivedAt
	payment.SourceMessageID = msg.MessageID

	candidates, err := o.opts.Repo.FindUnpaidByAmount(money.Cents(payment.Amount))
	if err != nil {
		return 0, fmt.Errorf("find candidates: %w", err)
	}

	match := o.opts.Matcher.Match(payment, candidates)
	attempt := attemptFromMatch(msg, payment, match)

	out := outcomeRecorded
	if match.Classification == storage.ResultMatched {
		credit, err := o.opts.Repo.CreditPassport(match.Best.PassportID, msg.ReceivedAt, attempt)
		switch {
		case errors.Is(err, storage.ErrDuplicateMessage):
			// Another pass recorded this message between our duplicate
			// check and now. The move below is still safe.
			logger.Info("Lost record race, treating as duplicate")
			out = outcomeSkipped
		case err != nil:
			return 0, fmt.Errorf("credit passport %d: %w", match.Best.PassportID, err)
		case credit.WasAlreadyPaid:
			logger.Warn("Passport already paid, downgrading to duplicate",
				"passport_id", match.Best.PassportID)
			attempt.ID = 0
			attempt.Result = storage.ResultDuplicate
			attempt.MatchedPassportID = nil
			attempt.Note = fmt.Sprintf("passport %d was already paid; %s", match.Best.PassportID, match.Reason)
			if err := o.record(attempt); err != nil {
				return 0, err
			}
			out = outcomeSkipped
		default:
			logger.Info("Passport credited",
				"passport_id", match.Best.PassportID,
				"payer", payment.PayerNameRaw,
				"amount", payment.Amount.StringFixed(2),
				"score", match.Best.Score)
			out = outcomeMatched
		}
	} else {
		logger.Info("No automatic credit",
			"result", string(match.Classification),
			"payer", payment.PayerNameRaw,
			"amount", payment.Amount.StringFixed(2),
			"reason", match.Reason)
		if err := o.record(attempt); err != nil {
			return 0, err
		}
	}

	if err := session.MoveToProcessed(ctx, msg.UID); err != nil {
		return 0, err
	}
	return out, nil
}

// record inserts an attempt, tolerating a lost uniqueness race.
func (o *Orchestrator) record(attempt *storage.PaymentAttempt) error {
	err := o.opts.Repo.RecordAttempt(attempt)
	if err != nil && !errors.Is(err, storage.ErrDuplicateMessage) {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (o *Orchestrator) senderAllowed(from string) bool {
	if len(o.opts.AllowedSenders) == 0 {
		return true
	}
	for _, allowed := range o.opts.AllowedSenders {
		if from == allowed {
			return true
		}
	}
	return false
}
