package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"
)

const messageColumns = `m.id, m.user_id, m.recipient_email, m.subject, m.message, m.delivery_date,
	m.delivered, m.delivered_at, m.created_at, m.updated_at`

type scheduledMessageRepository struct {
	db *sql.DB
}

func NewScheduledMessageRepository(db *sql.DB) ScheduledMessageRepository {
	return &scheduledMessageRepository{db: db}
}

func scanMessage(row rowScanner, extra ...any) (*entity.ScheduledMessage, error) {
	var (
		m           entity.ScheduledMessage
		deliveredAt sql.NullTime
	)
	dest := []any{
		&m.ID,
		&m.UserID,
		&m.RecipientEmail,
		&m.Subject,
		&m.Message,
		&m.DeliveryDate,
		&m.Delivered,
		&deliveredAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		m.DeliveredAt = &t
	}
	return &m, nil
}

func (r *scheduledMessageRepository) Create(ctx context.Context, msg *entity.ScheduledMessage) error {
	query := `
		INSERT INTO scheduled_messages (id, user_id, recipient_email, subject, message, delivery_date,
			delivered, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.UserID,
		msg.RecipientEmail,
		msg.Subject,
		msg.Message,
		msg.DeliveryDate,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scheduled message: %w", err)
	}
	return nil
}

func (r *scheduledMessageRepository) GetByOwner(ctx context.Context, userID, id string) (*entity.ScheduledMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM scheduled_messages m WHERE m.id = $1 AND m.user_id = $2`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, entity.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get scheduled message: %w", err)
	}
	return msg, nil
}

func (r *scheduledMessageRepository) ListByOwner(ctx context.Context, userID string) ([]*entity.ScheduledMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM scheduled_messages m WHERE m.user_id = $1 ORDER BY m.delivery_date ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled messages: %w", err)
	}
	defer rows.Close()

	messages := []*entity.ScheduledMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *scheduledMessageRepository) DeletePending(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_messages WHERE id = $1 AND user_id = $2 AND delivered = FALSE`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled message: %w", err)
	}
	return messageAffected(result)
}

func (r *scheduledMessageRepository) GetDue(ctx context.Context, now time.Time) ([]*entity.DueMessage, error) {
	query := `
		SELECT ` + messageColumns + `, COALESCE(u.name, '')
		FROM scheduled_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.delivery_date <= $1 AND m.delivered = FALSE
		ORDER BY m.delivery_date
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due messages: %w", err)
	}
	defer rows.Close()

	var due []*entity.DueMessage
	for rows.Next() {
		var senderName string
		msg, err := scanMessage(rows, &senderName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due message: %w", err)
		}
		due = append(due, &entity.DueMessage{ScheduledMessage: *msg, SenderName: senderName})
	}
	return due, rows.Err()
}

func (r *scheduledMessageRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE scheduled_messages
		SET delivered = TRUE, delivered_at = $2, updated_at = NOW()
		WHERE id = $1 AND delivered = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return messageAffected(result)
}

func messageAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrMessageNotFound
	}
	return nil
}
