// Package notify delivers outbound messages to employees. Delivery is
// best effort: callers use Dispatch, which logs failures instead of
// returning them.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Notifier sends one message to one address.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) error
}

// Dispatch sends the message and logs, but otherwise ignores, a failure.
func Dispatch(ctx context.Context, n Notifier, logger cmtlog.Logger, to, subject, body string) {
	if n == nil || to == "" {
		return
	}
	if err := n.Notify(ctx, to, subject, body); err != nil {
		logger.Error("Notification failed", "to", to, "subject", subject, "err", err)
	}
}

// LogNotifier writes the subject line of every message to the log. Bodies
// may carry credentials and are not logged.
type LogNotifier struct {
	logger cmtlog.Logger
}

func NewLogNotifier(logger cmtlog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) Notify(_ context.Context, to, subject, _ string) error {
	n.logger.Info("Notification", "to", to, "subject", subject)
	return nil
}

// SMTPConfig addresses a mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends plain text mail through an SMTP relay.
type SMTPNotifier struct {
	config SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{config: config, send: smtp.SendMail}
}

func (n *SMTPNotifier) Notify(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(n.config.Host, fmt.Sprint(n.config.Port))
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}
	return n.send(addr, auth, n.config.From, []string{to}, message(n.config.From, to, subject, body))
}

func message(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// Recorder keeps every message in memory.
type Recorder struct {
	Messages []Message
	Err      error
}

// Message is one recorded notification.
type Message struct {
	To, Subject, Body string
}

func (r *Recorder) Notify(_ context.Context, to, subject, body string) error {
	r.Messages = append(r.Messages, Message{To: to, Subject: subject, Body: body})
	return r.Err
}

// Subjects returns the subject of every recorded message in order.
func (r *Recorder) Subjects() []string {
	out := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.Subject
	}
	return out
}
