package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ds124wfegd/timecapsule/internal/entity"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 500
	maxMessageLength     = 10000
	maxSubjectLength     = 200
	maxNameLength        = 100
	minPasswordLength    = 6
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return entity.NewValidationError("%s cannot exceed %d characters", field, limit)
	}
	return nil
}

// normalizeRecipients trims, lower-cases and de-duplicates the addresses.
func normalizeRecipients(emails []string) ([]entity.Recipient, error) {
	seen := make(map[string]struct{}, len(emails))
	recipients := make([]entity.Recipient, 0, len(emails))
	for _, raw := range emails {
		email := normalizeEmail(raw)
		if email == "" {
			continue
		}
		if !validEmail(email) {
			return nil, entity.NewValidationError("invalid recipient email: %s", raw)
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		recipients = append(recipients, entity.Recipient{Email: email})
	}
	return recipients, nil
}

// randomToken returns n random bytes hex-encoded.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
