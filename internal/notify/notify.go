// Package notify accumulates per-run log lines and delivers them by mail.
package notify

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/wneessen/go-mail"
)

const timestampFormat = "2006-01-02 15:04:05"

// Buffer collects the lines of one sync run. It lives for exactly one
// process invocation and is flushed as a single mail at run end.
type Buffer struct {
	lines []string
	now   func() time.Time
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{now: time.Now}
}

// Add appends a line, prefixed with the current timestamp.
func (b *Buffer) Add(line string) {
	b.lines = append(b.lines, b.now().Format(timestampFormat)+" "+line)
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	return len(b.lines)
}

// String renders the buffered lines as the mail body.
func (b *Buffer) String() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

// Notifier sends a message to one or more recipients. It is used both for
// the end-of-run summary and for immediate error alerts.
type Notifier interface {
	Send(subject, body string, recipients []string) error
}

// SMTPConfig holds the settings for mail submission.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPNotifier delivers mail through an SMTP server.
type SMTPNotifier struct {
	config SMTPConfig
}

// NewSMTPNotifier creates a notifier for the given SMTP settings.
func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	if config.Port == 0 {
		config.Port = 25
	}
	return &SMTPNotifier{config: config}
}

// Send composes and submits one message. No retries: a failed submission is
// surfaced to the caller.
func (n *SMTPNotifier) Send(subject, body string, recipients []string) error {
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}

	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return errors.Wrap(err, "invalid sender address")
	}
	if err := msg.To(recipients...); err != nil {
		return errors.Wrap(err, "invalid recipient address")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}

	client, err := mail.NewClient(n.config.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}
	if err := client.DialAndSend(msg); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}
