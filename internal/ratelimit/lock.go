package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyGenerationLock = "cableledger:generate:%s:%04d-%02d"

// Compare-and-delete so an expired holder cannot drop a lease that has
// since been granted to another process.
const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockUnavailable = errors.New("generation lock not configured")
	ErrLockHeld        = errors.New("generation lock held by another run")
)

// GenerationLockKey names the lock shared by on-demand and scheduled
// generation of one scope and period.
func GenerationLockKey(scopeID string, year int, month time.Month) string {
	return fmt.Sprintf(keyGenerationLock, strings.TrimSpace(scopeID), year, int(month))
}

// Locker hands out Redis leases that serialise bill generation across API
// and scheduler processes. A nil Locker is valid and reports ErrLockUnavailable.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
	}
}

// Lease is a held generation lock.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

func (l *Lease) Key() string {
	if l == nil {
		return ""
	}
	return l.key
}

// Acquire takes the lease on key for ttl. It returns ErrLockHeld when another
// run owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

// Release drops the lease if it is still ours. Releasing a nil or expired
// lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.locker == nil || l.locker.client == nil {
		return nil
	}
	return l.locker.release.Run(ctx, l.locker.client, []string{l.key}, l.token).Err()
}
