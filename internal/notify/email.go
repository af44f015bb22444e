package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

// MailSender delivers a plain text email.
type MailSender interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	from   string
	dialer dialer
}

func NewEmailSender(cfg config.SMTPConfig) (*EmailSender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("SMTP_HOST and SMTP_FROM must be set")
	}
	return &EmailSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (e *EmailSender) SendMail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
