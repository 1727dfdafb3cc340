// Package notify delivers signing emails. Delivery is best-effort: the
// workflow logs per-recipient failures and never rolls back a transition
// because an email bounced.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"os"
)

// Service sends the two email kinds the workflow produces. Challenge-code
// delivery reuses the same transport.
type Service interface {
	SendSigningInvite(ctx context.Context, email, link string) error
	SendReminder(ctx context.Context, email, link string) error
	SendChallengeCode(ctx context.Context, email, code string) error
}

// SMTPService sends through a plain SMTP relay configured from the
// environment, the same way the rest of the server reads its config.
type SMTPService struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPService() (*SMTPService, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST environment variable is required")
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		return nil, fmt.Errorf("SMTP_FROM environment variable is required")
	}

	var auth smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASSWORD"), host)
	}

	return &SMTPService{
		addr: host + ":" + port,
		from: from,
		auth: auth,
	}, nil
}

func (s *SMTPService) send(to, subject, body string) error {
	msg := []byte("From: " + s.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, msg)
}

func (s *SMTPService) SendSigningInvite(_ context.Context, email, link string) error {
	return s.send(email, "You have a document to sign",
		"A document is waiting for your signature.\r\n\r\nOpen your signing session: "+link)
}

func (s *SMTPService) SendReminder(_ context.Context, email, link string) error {
	return s.send(email, "Reminder: a document is waiting for your signature",
		"This is a reminder that a document still needs your signature.\r\n\r\nOpen your signing session: "+link)
}

func (s *SMTPService) SendChallengeCode(_ context.Context, email, code string) error {
	return s.send(email, "Your verification code",
		"Your signature verification code is: "+code+"\r\n\r\nIt expires in 5 minutes.")
}

// LogService writes deliveries to the process log instead of sending.
// Default in development when no SMTP relay is configured.
type LogService struct{}

func (LogService) SendSigningInvite(_ context.Context, email, link string) error {
	log.Printf("signing invite for %s: %s", email, link)
	return nil
}

func (LogService) SendReminder(_ context.Context, email, link string) error {
	log.Printf("signing reminder for %s: %s", email, link)
	return nil
}

func (LogService) SendChallengeCode(_ context.Context, email, code string) error {
	log.Printf("challenge code for %s: %s", email, code)
	return nil
}
