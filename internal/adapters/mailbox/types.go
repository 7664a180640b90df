// Package mailbox wraps the IMAP account the bank notifications land
// in. All IMAP calls in the repository live behind the Session
// interface; the orchestrator acquires a session at pass start and
// releases it on every exit path.
package mailbox

import (
	"context"
	"fmt"
	"time"
)

// Config carries everything needed to open the mailbox.
type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	ProcessedFolder string
	// SenderFilter restricts the server-side search to the bank's
	// notification address (e.g. notify@payments.interac.ca).
	SenderFilter string
	// SubjectFilter additionally narrows the search by subject prefix.
	SubjectFilter string
	DialTimeout   time.Duration
}

// Message is the header-level view of one candidate email. Only what
// the parser needs is fetched; bodies never leave the server.
type Message struct {
	UID        uint32
	MessageID  string
	From       string
	Subject    string
	ReceivedAt time.Time
}

// TransientError marks an IMAP failure worth retrying on the next
// cycle. The orchestrator aborts the pass without recording anything
// for the affected message.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Session is one authenticated connection with INBOX selected.
type Session interface {
	// Messages returns candidate messages in receipt order.
	Messages(ctx context.Context) ([]Message, error)

	// MoveToProcessed copies the message to the processed folder and
	// expunges the original. Moving an already-moved UID is a no-op,
	// which is what makes crash recovery safe.
	MoveToProcessed(ctx context.Context, uid uint32) error

	// Logout closes the session. Safe to call on all exit paths.
	Logout() error
}

// Dialer opens sessions. The orchestrator holds a Dialer so tests can
// hand it scripted sessions instead of a live server.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}
