package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogMailer only logs outgoing emails. Used when email.enabled is false.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (LogMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"bytes":   len(htmlBody),
	}).Info("Email delivery disabled, message logged")
	return nil
}
