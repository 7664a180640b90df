package scan

import (
	"fmt"

	"github.com/minipass/reconciler/internal/adapters/mailbox"
	"github.com/minipass/reconciler/internal/domain/matcher"
	"github.com/minipass/reconciler/internal/domain/money"
	"github.com/minipass/reconciler/internal/domain/parser"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// attemptFromMatch builds the log row for a parsed and matched payment.
// Every field the ranking produced is preserved so an operator can
// reconstruct the decision later.
func attemptFromMatch(msg mailbox.Message, payment *parser.ParsedPayment, result matcher.MatchResult) *storage.PaymentAttempt {
	attempt := &storage.PaymentAttempt{
		ReceivedAt:      msg.ReceivedAt,
		PayerNameRaw:    payment.PayerNameRaw,
		AmountCents:     money.Cents(payment.Amount),
		Currency:        payment.Currency,
		Result:          result.Classification,
		CandidateCount:  result.Considered,
		Note:            result.Reason,
		SourceMessageID: msg.MessageID,
	}

	if result.Best != nil {
		score := result.Best.Score
		attempt.Score = &score
		if result.Classification == storage.ResultMatched {
			id := result.Best.PassportID
			attempt.MatchedPassportID = &id
		}
	}
	if result.RunnerUp != nil {
		runnerUp := result.RunnerUp.Score
		attempt.RunnerUpScore = &runnerUp
	}

	return attempt
}

// parseErrorAttempt builds the log row for a subject no pattern
// recognized. The subject itself goes in the note so nothing is lost.
func parseErrorAttempt(msg mailbox.Message, perr *parser.ParseError) *storage.PaymentAttempt {
	return &storage.PaymentAttempt{
		ReceivedAt:      msg.ReceivedAt,
		Result:          storage.ResultParseError,
		Note:            fmt.Sprintf("%s: %q", perr.Reason, perr.Subject),
		SourceMessageID: msg.MessageID,
	}
}

// duplicateAttempt builds an archived log row for a redelivered
// message. Archived rows sit outside the live-uniqueness constraint,
// so the redelivery is auditable without displacing the original.
func duplicateAttempt(msg mailbox.Message, original *storage.PaymentAttempt) *storage.PaymentAttempt {
	return &storage.PaymentAttempt{
		ReceivedAt:      msg.ReceivedAt,
		PayerNameRaw:    original.PayerNameRaw,
		AmountCents:     original.AmountCents,
		Currency:        original.Currency,
		Result:          storage.ResultDuplicate,
		Note:            fmt.Sprintf("redelivery of attempt %d", original.ID),
		SourceMessageID: msg.MessageID,
		Archived:        true,
	}
}
