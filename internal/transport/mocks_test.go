package transport

import (
	"context"
	"errors"

	"github.com/ds124wfegd/timecapsule/internal/entity"
	"github.com/ds124wfegd/timecapsule/pkg/auth"
)

type mockCapsuleService struct {
	CreateFunc     func(ctx context.Context, userID string, in *entity.CreateCapsuleInput) (*entity.Capsule, error)
	ListFunc       func(ctx context.Context, userID string) ([]*entity.Capsule, error)
	GetFunc        func(ctx context.Context, userID, id string) (*entity.CapsuleView, error)
	DeleteFunc     func(ctx context.Context, userID, id string) error
	SharedFunc     func(ctx context.Context, token string) (*entity.Capsule, error)
	RegenerateFunc func(ctx context.Context, userID, id string) (*entity.ShareInfo, error)
}

func (m *mockCapsuleService) CreateCapsule(ctx context.Context, userID string, in *entity.CreateCapsuleInput) (*entity.Capsule, error) {
	return m.CreateFunc(ctx, userID, in)
}

func (m *mockCapsuleService) ListCapsules(ctx context.Context, userID string) ([]*entity.Capsule, error) {
	return m.ListFunc(ctx, userID)
}

func (m *mockCapsuleService) GetCapsule(ctx context.Context, userID, id string) (*entity.CapsuleView, error) {
	return m.GetFunc(ctx, userID, id)
}

func (m *mockCapsuleService) DeleteCapsule(ctx context.Context, userID, id string) error {
	return m.DeleteFunc(ctx, userID, id)
}

func (m *mockCapsuleService) GetSharedCapsule(ctx context.Context, token string) (*entity.Capsule, error) {
	return m.SharedFunc(ctx, token)
}

func (m *mockCapsuleService) RegenerateShareToken(ctx context.Context, userID, id string) (*entity.ShareInfo, error) {
	return m.RegenerateFunc(ctx, userID, id)
}

type mockMessageService struct {
	CreateFunc func(ctx context.Context, userID string, in *entity.CreateScheduledMessageInput) (*entity.ScheduledMessage, error)
	ListFunc   func(ctx context.Context, userID string) ([]*entity.ScheduledMessage, error)
	DeleteFunc func(ctx context.Context, userID, id string) error
}

func (m *mockMessageService) CreateMessage(ctx context.Context, userID string, in *entity.CreateScheduledMessageInput) (*entity.ScheduledMessage, error) {
	return m.CreateFunc(ctx, userID, in)
}

func (m *mockMessageService) ListMessages(ctx context.Context, userID string) ([]*entity.ScheduledMessage, error) {
	return m.ListFunc(ctx, userID)
}

func (m *mockMessageService) DeleteMessage(ctx context.Context, userID, id string) error {
	return m.DeleteFunc(ctx, userID, id)
}

type mockUserService struct {
	RegisterFunc func(ctx context.Context, name, email, password string) (*entity.AuthResult, error)
	LoginFunc    func(ctx context.Context, email, password string) (*entity.AuthResult, error)
	GetFunc      func(ctx context.Context, id string) (*entity.User, error)
	ForgotFunc   func(ctx context.Context, email string) error
	ResetFunc    func(ctx context.Context, token, password string) (*entity.AuthResult, error)
}

func (m *mockUserService) Register(ctx context.Context, name, email, password string) (*entity.AuthResult, error) {
	return m.RegisterFunc(ctx, name, email, password)
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*entity.AuthResult, error) {
	return m.LoginFunc(ctx, email, password)
}

func (m *mockUserService) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockUserService) ForgotPassword(ctx context.Context, email string) error {
	return m.ForgotFunc(ctx, email)
}

func (m *mockUserService) ResetPassword(ctx context.Context, token, password string) (*entity.AuthResult, error) {
	return m.ResetFunc(ctx, token, password)
}

// staticTokens accepts "good-<userID>" tokens.
type staticTokens struct{}

func (staticTokens) Parse(token string) (*auth.Claims, error) {
	const prefix = "good-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{UserID: token[len(prefix):]}, nil
}
