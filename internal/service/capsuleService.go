package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/ds124wfegd/timecapsule/internal/database/postgres"
	"github.com/ds124wfegd/timecapsule/internal/entity"
	"github.com/ds124wfegd/timecapsule/internal/evaluator"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const shareTokenBytes = 32

// MediaLimits bounds what a single capsule may carry.
type MediaLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

type capsuleService struct {
	repo    repository.CapsuleRepository
	storage MediaStorage
	limits  MediaLimits
	now     func() time.Time
}

// NewCapsuleService создает новый экземпляр CapsuleService
func NewCapsuleService(repo repository.CapsuleRepository, storage MediaStorage, limits MediaLimits) CapsuleService {
	return &capsuleService{
		repo:    repo,
		storage: storage,
		limits:  limits,
		now:     time.Now,
	}
}

func (s *capsuleService) CreateCapsule(ctx context.Context, userID string, in *entity.CreateCapsuleInput) (*entity.Capsule, error) {
	now := s.now()

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)

	if title == "" || in.UnlockDate == nil {
		return nil, entity.NewValidationError("title and unlock date are required")
	}
	if !in.UnlockDate.After(now) {
		return nil, entity.NewValidationError("unlock date must be in the future")
	}
	if err := checkLength("title", title, maxTitleLength); err != nil {
		return nil, err
	}
	if err := checkLength("description", description, maxDescriptionLength); err != nil {
		return nil, err
	}
	if err := checkLength("message", in.Message, maxMessageLength); err != nil {
		return nil, err
	}
	if err := s.checkMedia(in.Media); err != nil {
		return nil, err
	}

	recipients, err := normalizeRecipients(in.Recipients)
	if err != nil {
		return nil, err
	}

	token, err := randomToken(shareTokenBytes)
	if err != nil {
		return nil, err
	}

	unlockDate := *in.UnlockDate
	shareExpiry := evaluator.ShareExpiryFrom(unlockDate)
	capsule := &entity.Capsule{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Message:     in.Message,
		UnlockDate:  unlockDate,
		IsLocked:    true,
		ShareToken:  token,
		ShareExpiry: &shareExpiry,
		Recipients:  recipients,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	media, err := s.storeMedia(ctx, in.Media)
	if err != nil {
		return nil, err
	}
	capsule.Media = media

	if err := s.repo.Create(ctx, capsule); err != nil {
		s.removeMedia(ctx, capsule.ID, media)
		return nil, fmt.Errorf("failed to save capsule: %w", err)
	}

	evaluator.Converge(capsule, now)

	logrus.WithFields(logrus.Fields{
		"capsule_id":  capsule.ID,
		"user_id":     userID,
		"media":       len(media),
		"recipients":  len(recipients),
		"unlock_date": unlockDate,
	}).Info("Capsule created")

	return capsule, nil
}

func (s *capsuleService) checkMedia(uploads []entity.MediaUpload) error {
	if s.limits.MaxFiles > 0 && len(uploads) > s.limits.MaxFiles {
		return entity.NewValidationError("a capsule can hold at most %d files", s.limits.MaxFiles)
	}
	for _, u := range uploads {
		if s.limits.MaxFileSize > 0 && u.Size > s.limits.MaxFileSize {
			return entity.NewValidationError("file %s exceeds the %d MB limit", u.Filename, s.limits.MaxFileSize/(1024*1024))
		}
	}
	return nil
}

// storeMedia uploads files in order. On failure, files stored so far are removed.
func (s *capsuleService) storeMedia(ctx context.Context, uploads []entity.MediaUpload) ([]entity.Media, error) {
	media := make([]entity.Media, 0, len(uploads))
	for _, upload := range uploads {
		stored, err := s.storage.Store(ctx, upload)
		if err != nil {
			s.removeMedia(ctx, "", media)
			return nil, fmt.Errorf("failed to store media %s: %w", upload.Filename, err)
		}
		media = append(media, *stored)
	}
	return media, nil
}

// removeMedia deletes stored files one by one. Failures are only logged.
func (s *capsuleService) removeMedia(ctx context.Context, capsuleID string, media []entity.Media) {
	for _, m := range media {
		if err := s.storage.Delete(ctx, m.StorageID, m.Kind); err != nil {
			logrus.WithFields(logrus.Fields{
				"capsule_id": capsuleID,
				"storage_id": m.StorageID,
			}).Errorf("Failed to delete media: %v", err)
		}
	}
}

func (s *capsuleService) ListCapsules(ctx context.Context, userID string) ([]*entity.Capsule, error) {
	capsules, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, c := range capsules {
		s.converge(ctx, c, now)
	}
	return capsules, nil
}

func (s *capsuleService) GetCapsule(ctx context.Context, userID, id string) (*entity.CapsuleView, error) {
	capsule, err := s.repo.GetByOwner(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	s.converge(ctx, capsule, s.now())

	if capsule.IsLocked {
		return &entity.CapsuleView{Locked: true, Summary: capsule.LockedSummary()}, nil
	}
	return &entity.CapsuleView{Capsule: capsule}, nil
}

// converge applies the lock rule and persists a flip. A failed write only
// leaves the cached flag stale, so the read still succeeds.
func (s *capsuleService) converge(ctx context.Context, c *entity.Capsule, now time.Time) {
	if !evaluator.Converge(c, now) {
		return
	}
	if err := s.repo.MarkUnlocked(ctx, c.ID); err != nil && !errors.Is(err, entity.ErrCapsuleNotFound) {
		logrus.WithField("capsule_id", c.ID).Warnf("Failed to persist unlock: %v", err)
	}
}

func (s *capsuleService) DeleteCapsule(ctx context.Context, userID, id string) error {
	capsule, err := s.repo.GetByOwner(ctx, userID, id)
	if err != nil {
		return err
	}

	s.removeMedia(ctx, capsule.ID, capsule.Media)

	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"capsule_id": id, "user_id": userID}).Info("Capsule deleted")
	return nil
}

func (s *capsuleService) GetSharedCapsule(ctx context.Context, token string) (*entity.Capsule, error) {
	capsule, err := s.repo.GetByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !evaluator.IsUnlocked(now, capsule.UnlockDate) {
		return nil, &entity.LockedError{UnlockDate: capsule.UnlockDate}
	}
	if evaluator.IsShareExpired(now, capsule.ShareExpiry) {
		return nil, entity.ErrShareExpired
	}

	s.converge(ctx, capsule, now)
	return capsule, nil
}

func (s *capsuleService) RegenerateShareToken(ctx context.Context, userID, id string) (*entity.ShareInfo, error) {
	token, err := randomToken(shareTokenBytes)
	if err != nil {
		return nil, err
	}
	expiry := evaluator.ShareExpiryFrom(s.now())

	if err := s.repo.UpdateShareToken(ctx, userID, id, token, expiry); err != nil {
		return nil, err
	}

	logrus.WithField("capsule_id", id).Info("Share token regenerated")
	return &entity.ShareInfo{ShareToken: token, ShareExpiry: expiry}, nil
}
