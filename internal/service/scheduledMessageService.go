package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/ds124wfegd/timecapsule/internal/database/postgres"
	"github.com/ds124wfegd/timecapsule/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type scheduledMessageService struct {
	repo repository.ScheduledMessageRepository
	now  func() time.Time
}

func NewScheduledMessageService(repo repository.ScheduledMessageRepository) ScheduledMessageService {
	return &scheduledMessageService{repo: repo, now: time.Now}
}

func (s *scheduledMessageService) CreateMessage(ctx context.Context, userID string, in *entity.CreateScheduledMessageInput) (*entity.ScheduledMessage, error) {
	recipient := normalizeEmail(in.RecipientEmail)
	subject := strings.TrimSpace(in.Subject)

	if recipient == "" || subject == "" || strings.TrimSpace(in.Message) == "" || in.DeliveryDate == nil {
		return nil, entity.NewValidationError("all fields are required")
	}
	if !validEmail(recipient) {
		return nil, entity.NewValidationError("please provide a valid email")
	}
	if err := checkLength("subject", subject, maxSubjectLength); err != nil {
		return nil, err
	}
	if err := checkLength("message", in.Message, maxMessageLength); err != nil {
		return nil, err
	}

	now := s.now()
	if !in.DeliveryDate.After(now) {
		return nil, entity.NewValidationError("delivery date must be in the future")
	}

	msg := &entity.ScheduledMessage{
		ID:             uuid.NewString(),
		UserID:         userID,
		RecipientEmail: recipient,
		Subject:        subject,
		Message:        in.Message,
		DeliveryDate:   *in.DeliveryDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save scheduled message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"message_id":    msg.ID,
		"user_id":       userID,
		"delivery_date": msg.DeliveryDate,
	}).Info("Scheduled message created")
	return msg, nil
}

func (s *scheduledMessageService) ListMessages(ctx context.Context, userID string) ([]*entity.ScheduledMessage, error) {
	return s.repo.ListByOwner(ctx, userID)
}

func (s *scheduledMessageService) DeleteMessage(ctx context.Context, userID, id string) error {
	msg, err := s.repo.GetByOwner(ctx, userID, id)
	if err != nil {
		return err
	}
	if msg.Delivered {
		return entity.ErrMessageDelivered
	}

	err = s.repo.DeletePending(ctx, userID, id)
	if errors.Is(err, entity.ErrMessageNotFound) {
		// delivered or removed between the read and the delete
		current, getErr := s.repo.GetByOwner(ctx, userID, id)
		if getErr == nil && current.Delivered {
			return entity.ErrMessageDelivered
		}
		return entity.ErrMessageNotFound
	}
	return err
}
