package mailer

import (
	"context"
	"sync"
)

// SentMessage records one delivery made through a MockSender.
type SentMessage struct {
	Recipients []string
	Subject    string
	Body       string
}

// MockSender records deliveries for tests.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage

	// Err, when set, is returned by Send without recording.
	Err error
}

// NewMock creates an empty MockSender.
func NewMock() *MockSender {
	return &MockSender{}
}

// Send records the message.
func (m *MockSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{
		Recipients: append([]string(nil), recipients...),
		Subject:    subject,
		Body:       body,
	})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
