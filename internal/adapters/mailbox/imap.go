package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPDialer opens TLS IMAP sessions against the configured account.
type IMAPDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewIMAPDialer creates a dialer for the given account.
func NewIMAPDialer(cfg Config, logger *slog.Logger) *IMAPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &IMAPDialer{cfg: cfg, logger: logger}
}

// Dial connects, authenticates and selects INBOX.
func (d *IMAPDialer) Dial(ctx context.Context) (Session, error) {
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)

	dialer := &net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: d.cfg.Host})
	if err != nil {
		return nil, &TransientError{Op: "dial", Err: err}
	}

	client := imapclient.New(conn, &imapclient.Options{
		// Subjects arrive MIME-encoded (=?UTF-8?Q?...?=); decode them
		// before the parser sees them.
		WordDecoder: &mime.WordDecoder{},
	})

	if err := client.Login(d.cfg.Username, d.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &TransientError{Op: "login", Err: err}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &TransientError{Op: "select inbox", Err: err}
	}

	d.logger.Debug("Mailbox session opened", "host", d.cfg.Host, "user", d.cfg.Username)

	return &imapSession{cfg: d.cfg, client: client, logger: d.logger}, nil
}

type imapSession struct {
	cfg           Config
	client        *imapclient.Client
	logger        *slog.Logger
	folderChecked bool
}

var _ Session = (*imapSession)(nil)

// searchCriteria narrows the server-side SEARCH so the orchestrator is
// never handed arbitrary mail.
func (s *imapSession) searchCriteria() *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if s.cfg.SenderFilter != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "From", Value: s.cfg.SenderFilter,
		})
	}
	if s.cfg.SubjectFilter != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "Subject", Value: s.cfg.SubjectFilter,
		})
	}
	return criteria
}

// Messages searches INBOX and fetches headers only (BODY.PEEK
// semantics: envelope data never sets \Seen).
func (s *imapSession) Messages(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.UIDSearch(s.searchCriteria(), nil).Wait()
	if err != nil {
		return nil, &TransientError{Op: "search", Err: err}
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetched, err := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
	}).Collect()
	if err != nil {
		return nil, &TransientError{Op: "fetch headers", Err: err}
	}

	messages := make([]Message, 0, len(fetched))
	for _, buf := range fetched {
		if buf.Envelope == nil {
			continue
		}
		msg := Message{
			UID:        uint32(buf.UID),
			MessageID:  buf.Envelope.MessageID,
			Subject:    buf.Envelope.Subject,
			ReceivedAt: buf.Envelope.Date,
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = buf.InternalDate
		}
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		if msg.MessageID == "" {
			// Some relays strip Message-ID; the UID is stable within
			// the account and serves as the idempotence key instead.
			msg.MessageID = fmt.Sprintf("<uid-%d@%s>", msg.UID, s.cfg.Username)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// MoveToProcessed copies the message to the processed folder, then
// flag-deletes and expunges the original.
func (s *imapSession) MoveToProcessed(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.ensureProcessedFolder(); err != nil {
		return err
	}

	// The UID may have been moved by a previous, interrupted pass.
	uidSet := imap.UIDSetNum(imap.UID(uid))
	data, err := s.client.UIDSearch(&imap.SearchCriteria{UID: []imap.UIDSet{uidSet}}, nil).Wait()
	if err != nil {
		return &TransientError{Op: "locate message", Err: err}
	}
	if len(data.AllUIDs()) == 0 {
		s.logger.Debug("Message already moved", "uid", uid)
		return nil
	}

	if _, err := s.client.Copy(uidSet, s.cfg.ProcessedFolder).Wait(); err != nil {
		return &TransientError{Op: "copy to processed", Err: err}
	}

	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}
	if err := s.client.Store(uidSet, storeFlags, nil).Close(); err != nil {
		return &TransientError{Op: "flag deleted", Err: err}
	}

	if err := s.client.Expunge().Close(); err != nil {
		return &TransientError{Op: "expunge", Err: err}
	}

	return nil
}

// ensureProcessedFolder creates and subscribes the side folder on
// first need. Checked once per session.
func (s *imapSession) ensureProcessedFolder() error {
	if s.folderChecked {
		return nil
	}

	folders, err := s.client.List("", s.cfg.ProcessedFolder, nil).Collect()
	if err != nil {
		return &TransientError{Op: "list folders", Err: err}
	}

	if len(folders) == 0 {
		s.logger.Info("Creating processed folder", "folder", s.cfg.ProcessedFolder)
		if err := s.client.Create(s.cfg.ProcessedFolder, nil).Wait(); err != nil {
			return &TransientError{Op: "create folder", Err: err}
		}
		if err := s.client.Subscribe(s.cfg.ProcessedFolder).Wait(); err != nil {
			return &TransientError{Op: "subscribe folder", Err: err}
		}
	}

	s.folderChecked = true
	return nil
}

// Logout ends the session. Errors are logged, not returned as fatal:
// by the time we log out all durable work is done.
func (s *imapSession) Logout() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Warn("IMAP logout failed", "error", err)
		return &TransientError{Op: "logout", Err: err}
	}
	return nil
}
