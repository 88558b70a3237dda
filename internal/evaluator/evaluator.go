// Package evaluator holds the time rules for capsules and scheduled messages.
// Every function takes "now" from the caller so one request or sweep sees a
// single instant.
package evaluator

import (
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"
)

const (
	ShareLinkTTL     = 30 * 24 * time.Hour
	ReminderLeadDays = 3
)

// IsUnlocked reports whether the unlock date has been reached.
func IsUnlocked(now, unlockDate time.Time) bool {
	return !now.Before(unlockDate)
}

// IsShareExpired is false when no expiry is set.
func IsShareExpired(now time.Time, shareExpiry *time.Time) bool {
	return shareExpiry != nil && now.After(*shareExpiry)
}

func IsDue(now, deliveryDate time.Time) bool {
	return !now.Before(deliveryDate)
}

func ShareExpiryFrom(t time.Time) time.Time {
	return t.Add(ShareLinkTTL)
}

// ReminderWindow returns the first and last instant of the calendar day
// ReminderLeadDays after now, in loc.
func ReminderWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	start := time.Date(n.Year(), n.Month(), n.Day()+ReminderLeadDays, 0, 0, 0, 0, loc)
	end := time.Date(start.Year(), start.Month(), start.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

// Converge recomputes the lock flags of c for now. It returns true when the
// stored state still says locked but the capsule has unlocked, so the caller
// should persist the flip.
func Converge(c *entity.Capsule, now time.Time) bool {
	unlocked := IsUnlocked(now, c.UnlockDate)
	flipped := unlocked && c.IsLocked
	c.IsLocked = !unlocked
	c.IsUnlocked = unlocked
	return flipped
}
