// Package email delivers plain-text operator alerts over SMTP. The letter
// pipeline is asynchronous, so failures that need a human surface here
// rather than in a response code.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Config carries SMTP connection settings. From is the envelope sender
// (MAIL FROM) and must be a raw mailbox address; FromName is the display
// name used in the message header only.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	FromName string
}

const defaultFromName = "Scrivener Alerts"

// Sender sends operator alert mail. Authentication is optional: with no
// credentials configured it speaks plain SMTP, which covers the local relay
// setups the alert path usually runs against.
type Sender struct {
	config Config
	auth   smtp.Auth
}

func NewSender(config Config) *Sender {
	if strings.TrimSpace(config.FromName) == "" {
		config.FromName = defaultFromName
	}

	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}

	return &Sender{config: config, auth: auth}
}

// SendAlert delivers one plain-text alert to the given address. The body is
// sent as-is; callers format it for a human reading a pager notification,
// not for a mail client rendering markup.
func (s *Sender) SendAlert(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	to = sanitizeHeader(to)

	var msg strings.Builder
	msg.WriteString("From: " + sanitizeHeader(fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)) + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if s.auth != nil {
		return smtp.SendMail(addr, s.auth, s.config.From, []string{to}, []byte(msg.String()))
	}
	return s.sendUnauthenticated(addr, to, []byte(msg.String()))
}

func (s *Sender) sendUnauthenticated(addr, to string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return c.Quit()
}

// sanitizeHeader strips CRLF so user-influenced strings cannot inject
// additional headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
