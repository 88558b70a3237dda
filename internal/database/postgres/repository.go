package repository

import (
	"context"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"
)

type CapsuleRepository interface {
	// Basic operations, scoped by owner where the caller is a user
	Create(ctx context.Context, capsule *entity.Capsule) error
	GetByOwner(ctx context.Context, userID, id string) (*entity.Capsule, error)
	GetByShareToken(ctx context.Context, token string) (*entity.Capsule, error)
	ListByOwner(ctx context.Context, userID string) ([]*entity.Capsule, error)
	Delete(ctx context.Context, userID, id string) error
	UpdateShareToken(ctx context.Context, userID, id, token string, expiry time.Time) error

	// MarkUnlocked persists the lazily observed lock flip.
	MarkUnlocked(ctx context.Context, id string) error

	// Sweep operations
	GetReminderDue(ctx context.Context, from, to time.Time) ([]*entity.CapsuleWithOwner, error)
	GetUnlockDue(ctx context.Context, now time.Time, maxRecipientAttempts int) ([]*entity.CapsuleWithOwner, error)
	MarkReminderSent(ctx context.Context, id string) error
	UnlockForNotification(ctx context.Context, id string, shareExpiry time.Time) error
	MarkUnlockNotificationSent(ctx context.Context, id string) error
	IncrementOwnerAttempts(ctx context.Context, id string) error
	MarkRecipientNotified(ctx context.Context, capsuleID, email string) error
	IncrementRecipientAttempts(ctx context.Context, capsuleID, email string) error
}

type ScheduledMessageRepository interface {
	Create(ctx context.Context, msg *entity.ScheduledMessage) error
	GetByOwner(ctx context.Context, userID, id string) (*entity.ScheduledMessage, error)
	ListByOwner(ctx context.Context, userID string) ([]*entity.ScheduledMessage, error)
	// DeletePending removes the message only while it is undelivered.
	DeletePending(ctx context.Context, userID, id string) error

	GetDue(ctx context.Context, now time.Time) ([]*entity.DueMessage, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// Password reset
	SetResetToken(ctx context.Context, userID, tokenHash string, expires *time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*entity.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
