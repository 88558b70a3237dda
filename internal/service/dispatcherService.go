package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	repository "github.com/ds124wfegd/timecapsule/internal/database/postgres"
	"github.com/ds124wfegd/timecapsule/internal/entity"
	"github.com/ds124wfegd/timecapsule/internal/evaluator"

	"github.com/sirupsen/logrus"
)

type DispatcherConfig struct {
	ClientURL            string
	Location             *time.Location
	MaxRecipientAttempts int
}

type dispatcher struct {
	capsules repository.CapsuleRepository
	messages repository.ScheduledMessageRepository
	mailer   Mailer
	links    links
	loc      *time.Location
	maxTries int
	now      func() time.Time
}

func NewNotificationDispatcher(
	capsules repository.CapsuleRepository,
	messages repository.ScheduledMessageRepository,
	mailer Mailer,
	cfg DispatcherConfig,
) NotificationDispatcher {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	maxTries := cfg.MaxRecipientAttempts
	if maxTries <= 0 {
		maxTries = 5
	}
	return &dispatcher{
		capsules: capsules,
		messages: messages,
		mailer:   mailer,
		links:    newLinks(cfg.ClientURL),
		loc:      loc,
		maxTries: maxTries,
		now:      time.Now,
	}
}

// RunReminderSweep notifies owners of capsules that unlock on the calendar
// day three days from now.
func (d *dispatcher) RunReminderSweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := d.now()
	from, to := evaluator.ReminderWindow(now, d.loc)

	candidates, err := d.capsules.GetReminderDue(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("reminder sweep: %w", err)
	}
	res.Selected = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log := logrus.WithFields(logrus.Fields{"sweep": "reminder", "capsule_id": c.ID})

		subject, body, err := reminderEmail(d.links, c.Title, c.UnlockDate.In(d.loc))
		if err == nil {
			err = d.mailer.Send(ctx, c.OwnerEmail, subject, body)
		}
		if err != nil {
			log.Errorf("Failed to send reminder: %v", err)
			res.Failed++
			continue
		}

		if err := d.capsules.MarkReminderSent(ctx, c.ID); err != nil {
			if errors.Is(err, entity.ErrCapsuleNotFound) {
				log.Info("Capsule deleted during sweep")
				res.Skipped++
				continue
			}
			log.Errorf("Failed to mark reminder sent: %v", err)
			res.Failed++
			continue
		}

		log.Info("Reminder sent")
		res.Succeeded++
	}
	return res, nil
}

// RunUnlockSweep unlocks due capsules and notifies the owner once and every
// recipient once. Recipients that failed are retried on later runs.
func (d *dispatcher) RunUnlockSweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := d.now()

	candidates, err := d.capsules.GetUnlockDue(ctx, now, d.maxTries)
	if err != nil {
		return res, fmt.Errorf("unlock sweep: %w", err)
	}
	res.Selected = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		switch d.processUnlock(ctx, c, now) {
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (d *dispatcher) processUnlock(ctx context.Context, c *entity.CapsuleWithOwner, now time.Time) outcome {
	log := logrus.WithFields(logrus.Fields{"sweep": "unlock", "capsule_id": c.ID})

	if !c.UnlockNotificationSent {
		if err := d.capsules.UnlockForNotification(ctx, c.ID, evaluator.ShareExpiryFrom(now)); err != nil {
			return d.writeFailure(log, err, "Failed to unlock capsule")
		}
		c.IsLocked = false

		if c.OwnerAttempts < d.maxTries {
			if o := d.notifyOwner(ctx, log, c); o != outcomeSucceeded {
				return o
			}
		} else {
			log.WithField("attempts", c.OwnerAttempts).Warn("Giving up on owner notification")
		}
	}

	result := outcomeSucceeded
	for _, r := range c.Recipients {
		if r.Notified || r.Attempts >= d.maxTries {
			continue
		}
		rlog := log.WithField("recipient", r.Email)

		subject, body, err := unlockedEmail(d.links, "", c.Title, c.ShareToken)
		if err == nil {
			err = d.mailer.Send(ctx, r.Email, subject, body)
		}
		if err != nil {
			rlog.Errorf("Failed to notify recipient: %v", err)
			if incErr := d.capsules.IncrementRecipientAttempts(ctx, c.ID, r.Email); incErr != nil &&
				!errors.Is(incErr, entity.ErrCapsuleNotFound) {
				rlog.Errorf("Failed to record recipient attempt: %v", incErr)
			}
			result = outcomeFailed
			continue
		}

		if err := d.capsules.MarkRecipientNotified(ctx, c.ID, r.Email); err != nil {
			if errors.Is(err, entity.ErrCapsuleNotFound) {
				rlog.Info("Recipient already notified or capsule deleted")
				continue
			}
			rlog.Errorf("Failed to mark recipient notified: %v", err)
			result = outcomeFailed
		}
	}

	if !c.UnlockNotificationSent {
		if err := d.capsules.MarkUnlockNotificationSent(ctx, c.ID); err != nil {
			return d.writeFailure(log, err, "Failed to mark unlock notification sent")
		}
	}

	if result == outcomeSucceeded {
		log.Info("Unlock notifications sent")
	}
	return result
}

// notifyOwner mails the owner; recipients wait until it succeeds or the
// owner's attempts run out.
func (d *dispatcher) notifyOwner(ctx context.Context, log *logrus.Entry, c *entity.CapsuleWithOwner) outcome {
	subject, body, err := unlockedEmail(d.links, c.OwnerName, c.Title, c.ShareToken)
	if err == nil {
		err = d.mailer.Send(ctx, c.OwnerEmail, subject, body)
	}
	if err == nil {
		return outcomeSucceeded
	}

	log.Errorf("Failed to notify owner: %v", err)
	if incErr := d.capsules.IncrementOwnerAttempts(ctx, c.ID); incErr != nil {
		return d.writeFailure(log, incErr, "Failed to record owner attempt")
	}
	return outcomeFailed
}

// writeFailure treats a missing row as a capsule deleted mid-sweep.
func (d *dispatcher) writeFailure(log *logrus.Entry, err error, msg string) outcome {
	if errors.Is(err, entity.ErrCapsuleNotFound) {
		log.Info("Capsule deleted during sweep")
		return outcomeSkipped
	}
	log.Errorf("%s: %v", msg, err)
	return outcomeFailed
}

// RunDeliverySweep emails scheduled messages whose delivery date has passed.
func (d *dispatcher) RunDeliverySweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := d.now()

	due, err := d.messages.GetDue(ctx, now)
	if err != nil {
		return res, fmt.Errorf("delivery sweep: %w", err)
	}
	res.Selected = len(due)

	for _, m := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log := logrus.WithFields(logrus.Fields{"sweep": "delivery", "message_id": m.ID})

		body, err := scheduledMessageEmail(m.SenderName, m.Message)
		if err == nil {
			err = d.mailer.Send(ctx, m.RecipientEmail, m.Subject, body)
		}
		if err != nil {
			log.Errorf("Failed to deliver scheduled message: %v", err)
			res.Failed++
			continue
		}

		if err := d.messages.MarkDelivered(ctx, m.ID, now); err != nil {
			if errors.Is(err, entity.ErrMessageNotFound) {
				log.Info("Message deleted during sweep")
				res.Skipped++
				continue
			}
			log.Errorf("Failed to mark message delivered: %v", err)
			res.Failed++
			continue
		}

		log.Info("Scheduled message delivered")
		res.Succeeded++
	}
	return res, nil
}
