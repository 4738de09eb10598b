package site

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// ErrMailDisabled is returned when no SMTP server is configured.
var ErrMailDisabled = errors.New("site: contact mail is not configured")

// ContactMessage is a contact form submission.
type ContactMessage struct {
	Name    string
	Email   string
	Message string
}

// Validate checks the fields the form requires.
func (m ContactMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return errors.New("name is required")
	case !strings.Contains(m.Email, "@") || strings.ContainsAny(m.Email, "\r\n"):
		return errors.New("a valid email is required")
	case strings.TrimSpace(m.Message) == "":
		return errors.New("message is required")
	}
	return nil
}

// Mailer delivers contact messages.
type Mailer interface {
	Send(ctx context.Context, m ContactMessage) error
}

// MailerFunc adapts a func to Mailer.
type MailerFunc func(ctx context.Context, m ContactMessage) error

func (f MailerFunc) Send(ctx context.Context, m ContactMessage) error { return f(ctx, m) }

// DisabledMailer rejects every message.
var DisabledMailer = MailerFunc(func(context.Context, ContactMessage) error { return ErrMailDisabled })

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	Host, Port string
	User, Pass string
	To         string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer for the relay at host:port.
func NewSMTPMailer(host, port, user, pass, to string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, User: user, Pass: pass, To: to, send: smtp.SendMail}
}

// Send delivers m. smtp.SendMail takes no context, so ctx is only checked
// before dialing.
func (s *SMTPMailer) Send(ctx context.Context, m ContactMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	auth := smtp.PlainAuth("", s.User, s.Pass, s.Host)
	if err := s.send(net.JoinHostPort(s.Host, s.Port), auth, s.User, []string{s.To}, s.compose(m)); err != nil {
		return fmt.Errorf("send contact mail: %w", err)
	}
	return nil
}

func (s *SMTPMailer) compose(m ContactMessage) []byte {
	name := headerSafe(m.Name)
	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form
`, m.Name, m.Email, m.Message)

	return []byte("To: " + s.To + "\r\n" +
		"Subject: Portfolio Contact: " + name + "\r\n" +
		"From: " + s.User + "\r\n" +
		"Reply-To: " + headerSafe(m.Email) + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

// headerSafe keeps user input from starting new mail headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(s))
}
