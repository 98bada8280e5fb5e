package integrations

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether a host and sender are configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

func (c SMTPConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// NewMailer returns an SMTP mailer when cfg is enabled, a log-only mailer
// otherwise.
func NewMailer(cfg SMTPConfig, log *logger.Logger) Mailer {
	if cfg.Enabled() {
		return &SMTPMailer{cfg: cfg, log: log.With("client", "SMTPMailer")}
	}
	return &LogMailer{log: log.With("client", "LogMailer")}
}

// SMTPMailer sends mail through an SMTP relay using PLAIN auth when a
// username is set.
type SMTPMailer struct {
	cfg SMTPConfig
	log *logger.Logger
}

// Send transmits msg. net/smtp has no context support, so cancellation is
// only observed before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	recipients := splitAddresses(msg.To)
	recipients = append(recipients, splitAddresses(msg.Cc)...)

	start := time.Now()
	if err := smtp.SendMail(m.cfg.addr(), auth, m.cfg.From, recipients, buildMessage(m.cfg.From, msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	m.log.Info("email sent", "to", msg.To, "mailbox", msg.Mailbox, "duration", time.Since(start))
	return nil
}

// LogMailer records outgoing mail in the log without transmitting it.
type LogMailer struct {
	log *logger.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info("email transport not configured; logging only",
		"to", msg.To, "cc", msg.Cc, "subject", msg.Subject, "mailbox", msg.Mailbox)
	return nil
}

func splitAddresses(list string) []string {
	var out []string
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func buildMessage(from string, msg Outgoing) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	if msg.Cc != "" {
		b.WriteString("Cc: " + msg.Cc + "\r\n")
	}
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.NewString() + "@assistant>\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
