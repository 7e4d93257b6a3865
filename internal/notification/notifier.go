// Package notification delivers best-effort emails to employees about their
// requests. Delivery failures are logged, never propagated: a transition must
// not roll back because a mail server is down.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Notifier sends one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogNotifier writes notifications to the log. Used in development and tests,
// and as the fallback when SMTP is not configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.Logger != nil {
		n.Logger.InfoContext(ctx, "mail fallback", "to", to, "subject", subject, "body", body)
	}
	return nil
}

// SMTPNotifier delivers via a plain SMTP relay.
type SMTPNotifier struct {
	Host string
	Port string
	From string
}

func (n *SMTPNotifier) Send(_ context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.From, to, subject, body)
	addr := n.Host + ":" + n.Port
	if err := smtp.SendMail(addr, nil, n.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// New picks the SMTP notifier when a host is configured, the log fallback
// otherwise.
func New(host, port, from string, logger *slog.Logger) Notifier {
	if host == "" {
		return &LogNotifier{Logger: logger}
	}
	return &SMTPNotifier{Host: host, Port: port, From: from}
}
