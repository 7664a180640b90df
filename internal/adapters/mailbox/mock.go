package mailbox

import (
	"context"
	"sync"
)

// MockSession is a scripted Session for orchestrator tests.
type MockSession struct {
	mu sync.Mutex

	// Inbox is returned by Messages in order.
	Inbox []Message

	// Moved records every UID handed to MoveToProcessed.
	Moved []uint32

	// MessagesErr, if set, is returned by Messages.
	MessagesErr error

	// MoveErr maps UID to the error MoveToProcessed should return for
	// that UID. Missing entries succeed.
	MoveErr map[uint32]error

	LoggedOut bool
}

var _ Session = (*MockSession)(nil)

func (m *MockSession) Messages(ctx context.Context) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MessagesErr != nil {
		return nil, m.MessagesErr
	}
	out := make([]Message, len(m.Inbox))
	copy(out, m.Inbox)
	return out, nil
}

func (m *MockSession) MoveToProcessed(ctx context.Context, uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.MoveErr[uid]; ok {
		return err
	}
	m.Moved = append(m.Moved, uid)
	return nil
}

func (m *MockSession) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoggedOut = true
	return nil
}

// MovedUIDs returns a copy of the moved UID list.
func (m *MockSession) MovedUIDs() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint32, len(m.Moved))
	copy(out, m.Moved)
	return out
}

// MockDialer hands out a fixed session, or fails.
type MockDialer struct {
	Session *MockSession
	DialErr error

	DialCount int
}

var _ Dialer = (*MockDialer)(nil)

func (d *MockDialer) Dial(ctx context.Context) (Session, error) {
	d.DialCount++
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Session, nil
}
