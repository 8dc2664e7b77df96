package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds the caller's token,
// so an expired lock re-acquired by someone else is never released.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles short-lived distributed locks in Redis.
type LockStore struct {
	client redis.Cmdable
}

// NewLockStore creates a new LockStore.
func NewLockStore(client redis.Cmdable) *LockStore {
	return &LockStore{client: client}
}

// AcquireRiderLock attempts to take the ride-request lock for a rider.
// Returns the token that must be passed to ReleaseRiderLock and whether the
// lock was acquired.
func (s *LockStore) AcquireRiderLock(ctx context.Context, riderID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, riderLockKey(riderID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseRiderLock releases the rider lock if it is still held with token.
func (s *LockStore) ReleaseRiderLock(ctx context.Context, riderID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{riderLockKey(riderID)}, token).Err()
}

func riderLockKey(riderID string) string {
	return fmt.Sprintf("lock:ride-request:%s", riderID)
}
