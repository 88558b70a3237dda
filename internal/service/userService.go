package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/ds124wfegd/timecapsule/internal/database/postgres"
	"github.com/ds124wfegd/timecapsule/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	resetTokenBytes = 32
	resetTokenTTL   = time.Hour
)

type userService struct {
	repo     repository.UserRepository
	tokens   TokenIssuer
	mailer   Mailer
	links    links
	hashCost int
	now      func() time.Time
}

func NewUserService(repo repository.UserRepository, tokens TokenIssuer, mailer Mailer, clientURL string) UserService {
	return &userService{
		repo:     repo,
		tokens:   tokens,
		mailer:   mailer,
		links:    newLinks(clientURL),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

func (s *userService) Register(ctx context.Context, name, email, password string) (*entity.AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || password == "" {
		return nil, entity.NewValidationError("please provide name, email and password")
	}
	if err := checkLength("name", name, maxNameLength); err != nil {
		return nil, err
	}
	if !validEmail(email) {
		return nil, entity.NewValidationError("please provide a valid email")
	}
	if len(password) < minPasswordLength {
		return nil, entity.NewValidationError("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("User registered")
	return s.authResult(user)
}

func (s *userService) Login(ctx context.Context, email, password string) (*entity.AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, entity.NewValidationError("please provide email and password")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, entity.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, entity.ErrInvalidCredentials
	}
	return s.authResult(user)
}

func (s *userService) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *userService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return entity.NewValidationError("please provide an email")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := randomToken(resetTokenBytes)
	if err != nil {
		return err
	}
	expires := s.now().Add(resetTokenTTL)
	if err := s.repo.SetResetToken(ctx, user.ID, hashToken(token), &expires); err != nil {
		return err
	}

	subject, body, err := passwordResetEmail(s.links, token)
	if err == nil {
		err = s.mailer.Send(ctx, user.Email, subject, body)
	}
	if err != nil {
		if clearErr := s.repo.SetResetToken(ctx, user.ID, "", nil); clearErr != nil {
			logrus.WithField("user_id", user.ID).Errorf("Failed to clear reset token: %v", clearErr)
		}
		return fmt.Errorf("email could not be sent: %w", err)
	}

	logrus.WithField("user_id", user.ID).Info("Password reset email sent")
	return nil
}

func (s *userService) ResetPassword(ctx context.Context, token, password string) (*entity.AuthResult, error) {
	if len(password) < minPasswordLength {
		return nil, entity.NewValidationError("password must be at least %d characters", minPasswordLength)
	}

	user, err := s.repo.GetByResetToken(ctx, hashToken(token), s.now())
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, entity.ErrInvalidResetToken
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("Password reset")
	return s.authResult(user)
}

func (s *userService) authResult(user *entity.User) (*entity.AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &entity.AuthResult{Token: token, User: user}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
