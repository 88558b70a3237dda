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

const (
	userColumns     = `id, name, email, password_hash, COALESCE(reset_password_token, ''), reset_password_expires, created_at`
	uniqueViolation = "23505"
	invalidTextRep  = "22P02"
)

// isInvalidID reports a value postgres could not parse as a UUID; such an id
// names no row.
func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRep
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return entity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *userRepository) scanOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	var (
		user    entity.User
		expires sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.ResetPasswordToken,
		&expires,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		user.ResetPasswordExpires = &t
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// SetResetToken stores the hashed reset token. A nil expiry clears it.
func (r *userRepository) SetResetToken(ctx context.Context, userID, tokenHash string, expires *time.Time) error {
	var token sql.NullString
	if tokenHash != "" {
		token = sql.NullString{String: tokenHash, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_password_token = $1, reset_password_expires = $2 WHERE id = $3`,
		token, expires, userID)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return userAffected(result)
}

func (r *userRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_password_token = $1 AND reset_password_expires > $2`
	return r.scanOne(ctx, query, tokenHash, now)
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, reset_password_token = NULL, reset_password_expires = NULL
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return userAffected(result)
}

func userAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrUserNotFound
	}
	return nil
}
