package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const lockPrefix = "timecapsule:sweep:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock keeps a sweep from running on two instances at once.
type SweepLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSweepLock(client *redis.Client, ttl time.Duration) *SweepLock {
	return &SweepLock{client: client, ttl: ttl}
}

// Acquire returns ok=false when another instance holds the lock.
func (l *SweepLock) Acquire(ctx context.Context, name string) (func(), bool, error) {
	key := lockPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sweep lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logrus.Errorf("Failed to release sweep lock %s: %v", name, err)
		}
	}
	return release, true, nil
}
