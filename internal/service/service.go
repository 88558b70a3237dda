package service

import (
	"context"

	"github.com/ds124wfegd/timecapsule/internal/entity"
)

type CapsuleService interface {
	// Основные операции
	CreateCapsule(ctx context.Context, userID string, in *entity.CreateCapsuleInput) (*entity.Capsule, error)
	ListCapsules(ctx context.Context, userID string) ([]*entity.Capsule, error)
	GetCapsule(ctx context.Context, userID, id string) (*entity.CapsuleView, error)
	DeleteCapsule(ctx context.Context, userID, id string) error

	// Sharing
	GetSharedCapsule(ctx context.Context, token string) (*entity.Capsule, error)
	RegenerateShareToken(ctx context.Context, userID, id string) (*entity.ShareInfo, error)
}

type ScheduledMessageService interface {
	CreateMessage(ctx context.Context, userID string, in *entity.CreateScheduledMessageInput) (*entity.ScheduledMessage, error)
	ListMessages(ctx context.Context, userID string) ([]*entity.ScheduledMessage, error)
	DeleteMessage(ctx context.Context, userID, id string) error
}

type UserService interface {
	Register(ctx context.Context, name, email, password string) (*entity.AuthResult, error)
	Login(ctx context.Context, email, password string) (*entity.AuthResult, error)
	GetUser(ctx context.Context, id string) (*entity.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) (*entity.AuthResult, error)
}

// NotificationDispatcher runs the time-driven sweeps. Each sweep is safe to
// repeat: work already latched in the store is not redone.
type NotificationDispatcher interface {
	RunReminderSweep(ctx context.Context) (SweepResult, error)
	RunUnlockSweep(ctx context.Context) (SweepResult, error)
	RunDeliverySweep(ctx context.Context) (SweepResult, error)
}

type SweepResult struct {
	Selected  int
	Succeeded int
	Failed    int
	Skipped   int
}

// Collaborators

type MediaStorage interface {
	Store(ctx context.Context, upload entity.MediaUpload) (*entity.Media, error)
	Delete(ctx context.Context, storageID string, kind entity.MediaKind) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type TokenIssuer interface {
	Generate(userID string) (string, error)
}
