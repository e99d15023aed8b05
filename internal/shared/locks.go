package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress indicates another apply run already holds the account lock.
var ErrRunInProgress = errors.New("apply run already in progress for account")

// ApplyRunLockKey builds redis keys for apply-run critical sections.
func ApplyRunLockKey(accountID int64) string {
	return fmt.Sprintf("cogs:apply:%d:lock", accountID)
}

// RunLock serialises apply runs per account via redis.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock constructs a RunLock. TTL bounds how long a crashed run can
// keep an account locked.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the per-account lock and returns a release func.
func (l *RunLock) Acquire(ctx context.Context, accountID int64) (func(), error) {
	if l == nil || l.client == nil {
		// No redis configured: single-process deployments rely on the
		// database serialisation alone.
		return func() {}, nil
	}
	key := ApplyRunLockKey(accountID)
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	release := func() {
		_ = l.client.Del(context.Background(), key).Err()
	}
	return release, nil
}
