package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"
)

// memCapsuleRepo is an in-memory CapsuleRepository with the same
// not-found semantics as the postgres one.
type memCapsuleRepo struct {
	mu       sync.Mutex
	capsules map[string]*entity.Capsule
	owners   map[string]entity.User

	createErr error
	queryErr  error
	flips     int
}

func newMemCapsuleRepo() *memCapsuleRepo {
	return &memCapsuleRepo{
		capsules: map[string]*entity.Capsule{},
		owners:   map[string]entity.User{},
	}
}

func clone(c *entity.Capsule) *entity.Capsule {
	cp := *c
	cp.Media = append([]entity.Media{}, c.Media...)
	cp.Recipients = append([]entity.Recipient{}, c.Recipients...)
	if c.ShareExpiry != nil {
		t := *c.ShareExpiry
		cp.ShareExpiry = &t
	}
	return &cp
}

func (r *memCapsuleRepo) put(c *entity.Capsule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capsules[c.ID] = clone(c)
}

func (r *memCapsuleRepo) stored(id string) *entity.Capsule {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok {
		return nil
	}
	return clone(c)
}

func (r *memCapsuleRepo) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.capsules, id)
}

func (r *memCapsuleRepo) Create(_ context.Context, c *entity.Capsule) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(c)
	return nil
}

func (r *memCapsuleRepo) GetByOwner(_ context.Context, userID, id string) (*entity.Capsule, error) {
	c := r.stored(id)
	if c == nil || c.UserID != userID {
		return nil, entity.ErrCapsuleNotFound
	}
	return c, nil
}

func (r *memCapsuleRepo) GetByShareToken(_ context.Context, token string) (*entity.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.capsules {
		if c.ShareToken == token {
			return clone(c), nil
		}
	}
	return nil, entity.ErrCapsuleNotFound
}

func (r *memCapsuleRepo) ListByOwner(_ context.Context, userID string) ([]*entity.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Capsule
	for _, c := range r.capsules {
		if c.UserID == userID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memCapsuleRepo) update(id string, fn func(c *entity.Capsule) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok || !fn(c) {
		return entity.ErrCapsuleNotFound
	}
	return nil
}

func (r *memCapsuleRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok || c.UserID != userID {
		return entity.ErrCapsuleNotFound
	}
	delete(r.capsules, id)
	return nil
}

func (r *memCapsuleRepo) UpdateShareToken(_ context.Context, userID, id, token string, expiry time.Time) error {
	return r.update(id, func(c *entity.Capsule) bool {
		if c.UserID != userID {
			return false
		}
		c.ShareToken = token
		c.ShareExpiry = &expiry
		return true
	})
}

func (r *memCapsuleRepo) MarkUnlocked(_ context.Context, id string) error {
	return r.update(id, func(c *entity.Capsule) bool {
		if !c.IsLocked {
			return false
		}
		c.IsLocked = false
		r.flips++
		return true
	})
}

func (r *memCapsuleRepo) withOwner(c *entity.Capsule) *entity.CapsuleWithOwner {
	owner := r.owners[c.UserID]
	return &entity.CapsuleWithOwner{Capsule: *clone(c), OwnerName: owner.Name, OwnerEmail: owner.Email}
}

func (r *memCapsuleRepo) GetReminderDue(_ context.Context, from, to time.Time) ([]*entity.CapsuleWithOwner, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CapsuleWithOwner
	for _, c := range r.capsules {
		if !c.UnlockDate.Before(from) && !c.UnlockDate.After(to) && c.IsLocked && !c.ReminderSent {
			out = append(out, r.withOwner(c))
		}
	}
	return out, nil
}

func (r *memCapsuleRepo) GetUnlockDue(_ context.Context, now time.Time, maxAttempts int) ([]*entity.CapsuleWithOwner, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CapsuleWithOwner
	for _, c := range r.capsules {
		if c.UnlockDate.After(now) {
			continue
		}
		pending := false
		for _, rcp := range c.Recipients {
			if !rcp.Notified && rcp.Attempts < maxAttempts {
				pending = true
			}
		}
		if !c.UnlockNotificationSent || pending {
			out = append(out, r.withOwner(c))
		}
	}
	return out, nil
}

func (r *memCapsuleRepo) MarkReminderSent(_ context.Context, id string) error {
	return r.update(id, func(c *entity.Capsule) bool { c.ReminderSent = true; return true })
}

func (r *memCapsuleRepo) UnlockForNotification(_ context.Context, id string, expiry time.Time) error {
	return r.update(id, func(c *entity.Capsule) bool {
		c.IsLocked = false
		if c.OwnerAttempts == 0 {
			c.ShareExpiry = &expiry
		}
		return true
	})
}

func (r *memCapsuleRepo) IncrementOwnerAttempts(_ context.Context, id string) error {
	return r.update(id, func(c *entity.Capsule) bool { c.OwnerAttempts++; return true })
}

func (r *memCapsuleRepo) MarkUnlockNotificationSent(_ context.Context, id string) error {
	return r.update(id, func(c *entity.Capsule) bool { c.UnlockNotificationSent = true; return true })
}

func (r *memCapsuleRepo) MarkRecipientNotified(_ context.Context, capsuleID, email string) error {
	return r.update(capsuleID, func(c *entity.Capsule) bool {
		for i := range c.Recipients {
			if c.Recipients[i].Email == email && !c.Recipients[i].Notified {
				c.Recipients[i].Notified = true
				return true
			}
		}
		return false
	})
}

func (r *memCapsuleRepo) IncrementRecipientAttempts(_ context.Context, capsuleID, email string) error {
	return r.update(capsuleID, func(c *entity.Capsule) bool {
		for i := range c.Recipients {
			if c.Recipients[i].Email == email {
				c.Recipients[i].Attempts++
				return true
			}
		}
		return false
	})
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*entity.ScheduledMessage
	senders  map[string]string

	// beforeDelete runs inside DeletePending to simulate a concurrent writer
	beforeDelete func()
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: map[string]*entity.ScheduledMessage{}, senders: map[string]string{}}
}

func (r *memMessageRepo) stored(id string) *entity.ScheduledMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (r *memMessageRepo) Create(_ context.Context, m *entity.ScheduledMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *memMessageRepo) GetByOwner(_ context.Context, userID, id string) (*entity.ScheduledMessage, error) {
	m := r.stored(id)
	if m == nil || m.UserID != userID {
		return nil, entity.ErrMessageNotFound
	}
	return m, nil
}

func (r *memMessageRepo) ListByOwner(_ context.Context, userID string) ([]*entity.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ScheduledMessage
	for _, m := range r.messages {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeliveryDate.Before(out[j].DeliveryDate) })
	return out, nil
}

func (r *memMessageRepo) DeletePending(_ context.Context, userID, id string) error {
	if r.beforeDelete != nil {
		r.beforeDelete()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.UserID != userID || m.Delivered {
		return entity.ErrMessageNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *memMessageRepo) GetDue(_ context.Context, now time.Time) ([]*entity.DueMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DueMessage
	for _, m := range r.messages {
		if !m.DeliveryDate.After(now) && !m.Delivered {
			out = append(out, &entity.DueMessage{ScheduledMessage: *m, SenderName: r.senders[m.UserID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeliveryDate.Before(out[j].DeliveryDate) })
	return out, nil
}

func (r *memMessageRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.Delivered {
		return entity.ErrMessageNotFound
	}
	m.Delivered = true
	m.DeliveredAt = &at
	return nil
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// fakeMailer records sends; addresses in failFor fail.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentEmail
	failFor map[string]bool
	tries   map[string]int
	// onSend runs before each send
	onSend func(to string)
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{failFor: map[string]bool{}, tries: map[string]int{}}
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.onSend != nil {
		m.onSend(to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tries[to]++
	if m.failFor[to] {
		return errors.New("smtp: connection refused")
	}
	m.sent = append(m.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) sentTo(to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sent {
		if e.To == to {
			n++
		}
	}
	return n
}

func (m *fakeMailer) attemptsTo(to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tries[to]
}

type fakeStorage struct {
	StoreFunc  func(ctx context.Context, upload entity.MediaUpload) (*entity.Media, error)
	DeleteFunc func(ctx context.Context, storageID string, kind entity.MediaKind) error

	deleted []string
}

func (s *fakeStorage) Store(ctx context.Context, upload entity.MediaUpload) (*entity.Media, error) {
	if s.StoreFunc != nil {
		return s.StoreFunc(ctx, upload)
	}
	return &entity.Media{
		URL:          "http://storage/" + upload.Filename,
		StorageID:    "id-" + upload.Filename,
		Kind:         entity.MediaImage,
		OriginalName: upload.Filename,
	}, nil
}

func (s *fakeStorage) Delete(ctx context.Context, storageID string, kind entity.MediaKind) error {
	s.deleted = append(s.deleted, storageID)
	if s.DeleteFunc != nil {
		return s.DeleteFunc(ctx, storageID, kind)
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Generate(userID string) (string, error) { return "token-" + userID, nil }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
