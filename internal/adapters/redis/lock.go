// Package redis provides the distributed session lock used when several
// engine replicas share one artifact store. Locks are acquired with
// SET NX PX and released through a compare-and-delete script, so a replica
// can only release a lock it still holds.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/intakehq/intake/pkg/ports"
)

const pollInterval = 100 * time.Millisecond

// unlockScript deletes the lock key only when its value still matches the
// token set by this holder.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.DistributedLocker on a Redis client.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a Locker. Keys are written as <prefix>lock:<key>.
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "intake:"
	}
	return &Locker{client: client, prefix: prefix}
}

// Lock acquires the lock for key, polling until it succeeds or the context
// is canceled. The TTL bounds how long a crashed holder can block others.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", lockKey, err)
		}
		if acquired {
			return func(ctx context.Context) error {
				if err := l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err(); err != nil {
					return fmt.Errorf("release lock %s: %w", lockKey, err)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ ports.DistributedLocker = (*Locker)(nil)
