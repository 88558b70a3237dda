package postgres

import (
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/timecapsule/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Migrations lists the schema statements in execution order.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		reset_password_token VARCHAR(64),
		reset_password_expires TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS capsules (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(100) NOT NULL,
		description VARCHAR(500) NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		unlock_date TIMESTAMPTZ NOT NULL,
		is_locked BOOLEAN NOT NULL DEFAULT TRUE,
		share_token VARCHAR(64) UNIQUE NOT NULL,
		share_expiry TIMESTAMPTZ,
		reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
		unlock_notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
		owner_attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`ALTER TABLE capsules ADD COLUMN IF NOT EXISTS owner_attempts INTEGER NOT NULL DEFAULT 0`,

	`CREATE TABLE IF NOT EXISTS capsule_media (
		id BIGSERIAL PRIMARY KEY,
		capsule_id UUID NOT NULL REFERENCES capsules(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		storage_id TEXT NOT NULL,
		kind VARCHAR(10) NOT NULL,
		original_name TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS capsule_recipients (
		id BIGSERIAL PRIMARY KEY,
		capsule_id UUID NOT NULL REFERENCES capsules(id) ON DELETE CASCADE,
		email VARCHAR(255) NOT NULL,
		notified BOOLEAN NOT NULL DEFAULT FALSE,
		attempts INTEGER NOT NULL DEFAULT 0,
		UNIQUE (capsule_id, email)
	)`,

	`CREATE TABLE IF NOT EXISTS scheduled_messages (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		recipient_email VARCHAR(255) NOT NULL,
		subject VARCHAR(200) NOT NULL,
		message TEXT NOT NULL,
		delivery_date TIMESTAMPTZ NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_capsules_user_created ON capsules(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_capsules_unlock_pending ON capsules(unlock_date) WHERE unlock_notification_sent = FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_capsules_reminder_pending ON capsules(unlock_date) WHERE reminder_sent = FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_capsule_media_capsule ON capsule_media(capsule_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_capsule_recipients_pending ON capsule_recipients(capsule_id) WHERE notified = FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_user ON scheduled_messages(user_id, delivery_date)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_due ON scheduled_messages(delivery_date) WHERE delivered = FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_password_token)`,
}

func RunMigrations(db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
