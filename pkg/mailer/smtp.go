package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/timecapsule/config"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// SMTPMailer sends HTML emails through an SMTP relay.
type SMTPMailer struct {
	cfg        config.EmailConfig
	retry      *RetryPolicy
	deadLetter DeadLetter
	deliver    func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPMailer(cfg config.EmailConfig, retry *RetryPolicy, deadLetter DeadLetter) *SMTPMailer {
	m := &SMTPMailer{
		cfg:        cfg,
		retry:      retry,
		deadLetter: deadLetter,
	}
	m.deliver = m.dialAndSend
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	attempts, err := m.retry.Do(ctx, func() error {
		return m.deliver(ctx, msg)
	})
	if err != nil {
		if m.deadLetter != nil {
			failed := &FailedEmail{
				To:       to,
				Subject:  subject,
				Error:    err.Error(),
				Attempts: attempts,
				FailedAt: time.Now(),
			}
			if dlErr := m.deadLetter.Record(ctx, failed); dlErr != nil {
				logrus.Errorf("Failed to record undelivered email: %v", dlErr)
			}
		}
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	logrus.WithFields(logrus.Fields{
		"to":       to,
		"subject":  subject,
		"attempts": attempts,
	}).Debug("Email sent")
	return nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("invalid smtp client configuration: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
