package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"TopicNewsletter/internal/ports"
)

const releaseTimeout = 5 * time.Second

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a single-holder lock backed by SET NX.
type RunLock struct {
	client *redis.Client
	prefix string
}

var _ ports.RunLocker = (*RunLock)(nil)

// NewRunLock builds a lock namespace under prefix.
func NewRunLock(client *redis.Client, prefix string) *RunLock {
	if prefix == "" {
		prefix = "newsletter"
	}
	return &RunLock{client: client, prefix: prefix}
}

// Acquire takes the lock for ttl. ok is false when someone else holds it.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := l.prefix + ":lock:" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{fullKey}, token).Err()
	}
	return release, true, nil
}
