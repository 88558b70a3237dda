package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"

	"github.com/lib/pq"
)

const capsuleColumns = `c.id, c.user_id, c.title, c.description, c.message, c.unlock_date, c.is_locked,
	c.share_token, c.share_expiry, c.reminder_sent, c.unlock_notification_sent, c.owner_attempts, c.created_at, c.updated_at`

type capsuleRepository struct {
	db *sql.DB
}

func NewCapsuleRepository(db *sql.DB) CapsuleRepository {
	return &capsuleRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapsule(row rowScanner, extra ...any) (*entity.Capsule, error) {
	var (
		c           entity.Capsule
		shareExpiry sql.NullTime
	)
	dest := []any{
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Description,
		&c.Message,
		&c.UnlockDate,
		&c.IsLocked,
		&c.ShareToken,
		&shareExpiry,
		&c.ReminderSent,
		&c.UnlockNotificationSent,
		&c.OwnerAttempts,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if shareExpiry.Valid {
		t := shareExpiry.Time
		c.ShareExpiry = &t
	}
	c.Media = []entity.Media{}
	c.Recipients = []entity.Recipient{}
	return &c, nil
}

func (r *capsuleRepository) Create(ctx context.Context, capsule *entity.Capsule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO capsules (id, user_id, title, description, message, unlock_date, is_locked,
			share_token, share_expiry, reminder_sent, unlock_notification_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, FALSE, $10, $11)
	`
	_, err = tx.ExecContext(ctx, query,
		capsule.ID,
		capsule.UserID,
		capsule.Title,
		capsule.Description,
		capsule.Message,
		capsule.UnlockDate,
		capsule.IsLocked,
		capsule.ShareToken,
		capsule.ShareExpiry,
		capsule.CreatedAt,
		capsule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert capsule: %w", err)
	}

	for i, m := range capsule.Media {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capsule_media (capsule_id, position, url, storage_id, kind, original_name)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			capsule.ID, i, m.URL, m.StorageID, string(m.Kind), m.OriginalName,
		)
		if err != nil {
			return fmt.Errorf("failed to insert capsule media: %w", err)
		}
	}

	for _, rcp := range capsule.Recipients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capsule_recipients (capsule_id, email, notified, attempts)
			VALUES ($1, $2, FALSE, 0)`,
			capsule.ID, rcp.Email,
		)
		if err != nil {
			return fmt.Errorf("failed to insert capsule recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit capsule: %w", err)
	}
	return nil
}

func (r *capsuleRepository) GetByOwner(ctx context.Context, userID, id string) (*entity.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules c WHERE c.id = $1 AND c.user_id = $2`
	return r.getOne(ctx, query, id, userID)
}

func (r *capsuleRepository) GetByShareToken(ctx context.Context, token string) (*entity.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules c WHERE c.share_token = $1`
	return r.getOne(ctx, query, token)
}

func (r *capsuleRepository) getOne(ctx context.Context, query string, args ...any) (*entity.Capsule, error) {
	capsule, err := scanCapsule(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, entity.ErrCapsuleNotFound
		}
		return nil, fmt.Errorf("failed to get capsule: %w", err)
	}

	if err := r.loadChildren(ctx, []*entity.Capsule{capsule}); err != nil {
		return nil, err
	}
	return capsule, nil
}

func (r *capsuleRepository) ListByOwner(ctx context.Context, userID string) ([]*entity.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules c WHERE c.user_id = $1 ORDER BY c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list capsules: %w", err)
	}
	defer rows.Close()

	capsules := []*entity.Capsule{}
	for rows.Next() {
		capsule, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capsule: %w", err)
		}
		capsules = append(capsules, capsule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadChildren(ctx, capsules); err != nil {
		return nil, err
	}
	return capsules, nil
}

// loadChildren fills media and recipients for all capsules with two queries.
func (r *capsuleRepository) loadChildren(ctx context.Context, capsules []*entity.Capsule) error {
	if len(capsules) == 0 {
		return nil
	}

	byID := make(map[string]*entity.Capsule, len(capsules))
	ids := make([]string, 0, len(capsules))
	for _, c := range capsules {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	mediaRows, err := r.db.QueryContext(ctx, `
		SELECT capsule_id, url, storage_id, kind, original_name
		FROM capsule_media
		WHERE capsule_id = ANY($1)
		ORDER BY capsule_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load capsule media: %w", err)
	}
	defer mediaRows.Close()

	for mediaRows.Next() {
		var (
			capsuleID string
			m         entity.Media
			kind      string
		)
		if err := mediaRows.Scan(&capsuleID, &m.URL, &m.StorageID, &kind, &m.OriginalName); err != nil {
			return fmt.Errorf("failed to scan capsule media: %w", err)
		}
		m.Kind = entity.MediaKind(kind)
		if c, ok := byID[capsuleID]; ok {
			c.Media = append(c.Media, m)
		}
	}
	if err := mediaRows.Err(); err != nil {
		return err
	}

	recipientRows, err := r.db.QueryContext(ctx, `
		SELECT capsule_id, email, notified, attempts
		FROM capsule_recipients
		WHERE capsule_id = ANY($1)
		ORDER BY capsule_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load capsule recipients: %w", err)
	}
	defer recipientRows.Close()

	for recipientRows.Next() {
		var (
			capsuleID string
			rcp       entity.Recipient
		)
		if err := recipientRows.Scan(&capsuleID, &rcp.Email, &rcp.Notified, &rcp.Attempts); err != nil {
			return fmt.Errorf("failed to scan capsule recipient: %w", err)
		}
		if c, ok := byID[capsuleID]; ok {
			c.Recipients = append(c.Recipients, rcp)
		}
	}
	return recipientRows.Err()
}

func (r *capsuleRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM capsules WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete capsule: %w", err)
	}
	return capsuleAffected(result)
}

func (r *capsuleRepository) UpdateShareToken(ctx context.Context, userID, id, token string, expiry time.Time) error {
	query := `
		UPDATE capsules
		SET share_token = $1, share_expiry = $2, updated_at = NOW()
		WHERE id = $3 AND user_id = $4
	`
	result, err := r.db.ExecContext(ctx, query, token, expiry, id, userID)
	if isInvalidID(err) {
		return entity.ErrCapsuleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update share token: %w", err)
	}
	return capsuleAffected(result)
}

func (r *capsuleRepository) MarkUnlocked(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE capsules SET is_locked = FALSE, updated_at = NOW() WHERE id = $1 AND is_locked = TRUE`, id)
	if err != nil {
		return fmt.Errorf("failed to mark capsule unlocked: %w", err)
	}
	return capsuleAffected(result)
}

func (r *capsuleRepository) GetReminderDue(ctx context.Context, from, to time.Time) ([]*entity.CapsuleWithOwner, error) {
	query := `
		SELECT ` + capsuleColumns + `, u.name, u.email
		FROM capsules c
		JOIN users u ON u.id = c.user_id
		WHERE c.unlock_date >= $1 AND c.unlock_date <= $2
			AND c.is_locked = TRUE
			AND c.reminder_sent = FALSE
		ORDER BY c.unlock_date
	`
	return r.listWithOwner(ctx, query, from, to)
}

func (r *capsuleRepository) GetUnlockDue(ctx context.Context, now time.Time, maxRecipientAttempts int) ([]*entity.CapsuleWithOwner, error) {
	query := `
		SELECT ` + capsuleColumns + `, u.name, u.email
		FROM capsules c
		JOIN users u ON u.id = c.user_id
		WHERE c.unlock_date <= $1
			AND (
				c.unlock_notification_sent = FALSE
				OR EXISTS (
					SELECT 1 FROM capsule_recipients r
					WHERE r.capsule_id = c.id AND r.notified = FALSE AND r.attempts < $2
				)
			)
		ORDER BY c.unlock_date
	`
	return r.listWithOwner(ctx, query, now, maxRecipientAttempts)
}

func (r *capsuleRepository) listWithOwner(ctx context.Context, query string, args ...any) ([]*entity.CapsuleWithOwner, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep candidates: %w", err)
	}
	defer rows.Close()

	var (
		result   []*entity.CapsuleWithOwner
		capsules []*entity.Capsule
	)
	for rows.Next() {
		var ownerName, ownerEmail string
		capsule, err := scanCapsule(rows, &ownerName, &ownerEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweep candidate: %w", err)
		}
		result = append(result, &entity.CapsuleWithOwner{
			Capsule:    *capsule,
			OwnerName:  ownerName,
			OwnerEmail: ownerEmail,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range result {
		capsules = append(capsules, &c.Capsule)
	}
	if err := r.loadChildren(ctx, capsules); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *capsuleRepository) MarkReminderSent(ctx context.Context, id string) error {
	return r.execByID(ctx, `UPDATE capsules SET reminder_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

// UnlockForNotification sets the share expiry only on the first attempt, so
// retries after an owner send failure do not extend the link.
func (r *capsuleRepository) UnlockForNotification(ctx context.Context, id string, shareExpiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE capsules
		SET is_locked = FALSE,
			share_expiry = CASE WHEN owner_attempts = 0 THEN $2 ELSE share_expiry END,
			updated_at = NOW()
		WHERE id = $1`,
		id, shareExpiry)
	if err != nil {
		return fmt.Errorf("failed to unlock capsule: %w", err)
	}
	return capsuleAffected(result)
}

func (r *capsuleRepository) MarkUnlockNotificationSent(ctx context.Context, id string) error {
	return r.execByID(ctx, `UPDATE capsules SET unlock_notification_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

func (r *capsuleRepository) MarkRecipientNotified(ctx context.Context, capsuleID, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE capsule_recipients SET notified = TRUE WHERE capsule_id = $1 AND email = $2 AND notified = FALSE`,
		capsuleID, email)
	if err != nil {
		return fmt.Errorf("failed to mark recipient notified: %w", err)
	}
	return capsuleAffected(result)
}

func (r *capsuleRepository) IncrementOwnerAttempts(ctx context.Context, id string) error {
	return r.execByID(ctx, `UPDATE capsules SET owner_attempts = owner_attempts + 1, updated_at = NOW() WHERE id = $1`, id)
}

func (r *capsuleRepository) IncrementRecipientAttempts(ctx context.Context, capsuleID, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE capsule_recipients SET attempts = attempts + 1 WHERE capsule_id = $1 AND email = $2`,
		capsuleID, email)
	if err != nil {
		return fmt.Errorf("failed to increment recipient attempts: %w", err)
	}
	return capsuleAffected(result)
}

func (r *capsuleRepository) execByID(ctx context.Context, query, id string) error {
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update capsule: %w", err)
	}
	return capsuleAffected(result)
}

func capsuleAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrCapsuleNotFound
	}
	return nil
}
