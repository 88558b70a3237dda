package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DeadLetter records emails that could not be delivered after all retries.
type DeadLetter interface {
	Record(ctx context.Context, failed *FailedEmail) error
}

type FailedEmail struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// RedisDeadLetter keeps failed emails in a sorted set scored by failure time.
type RedisDeadLetter struct {
	client *redis.Client
	key    string
}

func NewRedisDeadLetter(client *redis.Client, key string) *RedisDeadLetter {
	return &RedisDeadLetter{client: client, key: key}
}

func (d *RedisDeadLetter) Record(ctx context.Context, failed *FailedEmail) error {
	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to marshal failed email: %w", err)
	}

	// detach from the request so a cancelled sweep still records the failure
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	score := float64(failed.FailedAt.UnixNano()) / 1e9
	if err := d.client.ZAdd(writeCtx, d.key, &redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to add email to dead letter set: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"to":       failed.To,
		"subject":  failed.Subject,
		"attempts": failed.Attempts,
	}).Warn("Email moved to dead letter set")
	return nil
}
