package mailer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pagepulse/pagepulse/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSMTPSender_Configured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host string
		from string
		want bool
	}{
		{"fully configured", "smtp.example.com", "reports@example.com", true},
		{"missing host", "", "reports@example.com", false},
		{"missing from", "smtp.example.com", "", false},
		{"unconfigured", "", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := model.DefaultReportConfig()
			cfg.SMTPHost = tt.host
			cfg.SMTPFrom = tt.from

			s := NewSMTPSender(cfg, discardLogger())
			if got := s.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSMTPSender_SkipsWhenUnconfigured(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender(model.DefaultReportConfig(), discardLogger())

	// No host configured: must return nil without dialing anything.
	err := s.Send(context.Background(), []string{"ops@example.com"}, "Daily report", "body")
	if err != nil {
		t.Errorf("Send() error = %v, want nil for unconfigured sender", err)
	}
}

func TestSMTPSender_SkipsWithoutRecipients(t *testing.T) {
	t.Parallel()

	cfg := model.DefaultReportConfig()
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPFrom = "reports@example.com"

	s := NewSMTPSender(cfg, discardLogger())

	if err := s.Send(context.Background(), nil, "Daily report", "body"); err != nil {
		t.Errorf("Send() error = %v, want nil when no recipients", err)
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg := string(buildMessage(
		"reports@example.com",
		[]string{"a@example.com", "b@example.com"},
		"Daily KPI Report",
		"Unique visitors: 42",
	))

	for _, want := range []string{
		"From: reports@example.com\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Subject: Daily KPI Report\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"Unique visitors: 42",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Message missing %q:\n%s", want, msg)
		}
	}

	headerEnd := strings.Index(msg, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("Message has no header/body separator")
	}
}

func TestMockSender_Records(t *testing.T) {
	t.Parallel()

	m := NewMock()
	if err := m.Send(context.Background(), []string{"ops@example.com"}, "subj", "body"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := m.Sent()
	if len(sent) != 1 {
		t.Fatalf("Sent() length = %d, want 1", len(sent))
	}
	if sent[0].Subject != "subj" || sent[0].Body != "body" {
		t.Errorf("Recorded message = %+v", sent[0])
	}
}
