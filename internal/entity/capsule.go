package entity

import (
	"io"
	"time"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type Media struct {
	URL          string    `json:"url" db:"url"`
	StorageID    string    `json:"publicId" db:"storage_id"`
	Kind         MediaKind `json:"type" db:"kind"`
	OriginalName string    `json:"originalName" db:"original_name"`
}

type Recipient struct {
	Email    string `json:"email" db:"email"`
	Notified bool   `json:"notified" db:"notified"`
	Attempts int    `json:"-" db:"attempts"`
}

type Capsule struct {
	ID                     string      `json:"id" db:"id"`
	UserID                 string      `json:"userId" db:"user_id"`
	Title                  string      `json:"title" db:"title"`
	Description            string      `json:"description" db:"description"`
	Message                string      `json:"message" db:"message"`
	Media                  []Media     `json:"media"`
	UnlockDate             time.Time   `json:"unlockDate" db:"unlock_date"`
	IsLocked               bool        `json:"isLocked" db:"is_locked"`
	IsUnlocked             bool        `json:"isUnlocked"`
	ShareToken             string      `json:"shareToken" db:"share_token"`
	ShareExpiry            *time.Time  `json:"shareExpiry,omitempty" db:"share_expiry"`
	Recipients             []Recipient `json:"recipients"`
	ReminderSent           bool        `json:"reminderSent" db:"reminder_sent"`
	UnlockNotificationSent bool        `json:"unlockNotificationSent" db:"unlock_notification_sent"`
	OwnerAttempts          int         `json:"-" db:"owner_attempts"`
	CreatedAt              time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time   `json:"updatedAt" db:"updated_at"`
}

// LockedCapsule is what an owner sees before the unlock date.
type LockedCapsule struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UnlockDate  time.Time `json:"unlockDate"`
	IsLocked    bool      `json:"isLocked"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Capsule) LockedSummary() *LockedCapsule {
	return &LockedCapsule{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		UnlockDate:  c.UnlockDate,
		IsLocked:    true,
		CreatedAt:   c.CreatedAt,
	}
}

// CapsuleView carries either the full capsule or, while locked, its summary.
type CapsuleView struct {
	Locked  bool
	Capsule *Capsule
	Summary *LockedCapsule
}

// CapsuleWithOwner is a sweep candidate joined with its owner's contact data.
type CapsuleWithOwner struct {
	Capsule
	OwnerName  string `db:"owner_name"`
	OwnerEmail string `db:"owner_email"`
}

type ShareInfo struct {
	ShareToken  string    `json:"shareToken"`
	ShareExpiry time.Time `json:"shareExpiry"`
}

// MediaUpload is a file received from the client, not yet stored.
type MediaUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type CreateCapsuleInput struct {
	Title       string
	Description string
	Message     string
	UnlockDate  *time.Time
	Media       []MediaUpload
	Recipients  []string
}
