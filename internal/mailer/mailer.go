// Package mailer delivers report and alert emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

// DefaultTimeout bounds one SMTP delivery end to end.
const DefaultTimeout = 30 * time.Second

// Sender delivers a plain-text email to a set of recipients.
type Sender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// SMTPSender implements Sender over net/smtp. A single message is sent per
// call with one RCPT per recipient, so delivery is all-or-nothing.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	implicit bool
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSMTPSender creates a sender from the stored report configuration.
func NewSMTPSender(cfg model.ReportConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		implicit: cfg.SMTPImplicit,
		timeout:  DefaultTimeout,
		logger:   logger.With("component", "mailer"),
	}
}

// Configured reports whether the sender has enough settings to deliver.
func (s *SMTPSender) Configured() bool {
	return s.host != "" && s.from != ""
}

// Send delivers one message to every recipient. When the sender is not
// configured it logs the skip and returns nil so reporting keeps running
// without an SMTP server.
func (s *SMTPSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	if !s.Configured() {
		s.logger.Warn("smtp not configured, skipping delivery", "subject", subject)
		return nil
	}
	if len(recipients) == 0 {
		s.logger.Warn("no recipients configured, skipping delivery", "subject", subject)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	message := buildMessage(s.from, recipients, subject, body)

	start := time.Now()
	var err error
	if s.implicit {
		err = s.sendImplicitTLS(ctx, addr, recipients, message)
	} else {
		err = s.sendSTARTTLS(ctx, addr, recipients, message)
	}
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	s.logger.Info("email delivered",
		"subject", subject,
		"recipients", len(recipients),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// sendSTARTTLS delivers over a plain connection upgraded via STARTTLS when
// the server offers it (port 587/25).
func (s *SMTPSender) sendSTARTTLS(ctx context.Context, addr string, recipients []string, message []byte) error {
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	return s.transact(client, recipients, message)
}

// sendImplicitTLS delivers over a TLS connection from the first byte (port 465).
func (s *SMTPSender) sendImplicitTLS(ctx context.Context, addr string, recipients []string, message []byte) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.timeout},
		Config:    &tls.Config{ServerName: s.host},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tls: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	return s.transact(client, recipients, message)
}

func (s *SMTPSender) transact(client *smtp.Client, recipients []string, message []byte) error {
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles an RFC 5322 plain-text message.
func buildMessage(from string, recipients []string, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
