// Package mailer sends transactional mail. Delivery succeeds only when the
// server accepts the recipient address; anything else is an error to the
// caller.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
)

type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

func NewSMTP(addr, from string, auth smtp.Auth) *SMTPMailer {
	return &SMTPMailer{Addr: addr, From: from, Auth: auth}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid recipient: %q", to)
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// Nop drops mail, for tests and local runs without an SMTP server.
type Nop struct{}

func (Nop) Send(string, string, string) error { return nil }
