// Package lock implements the per-user distributed critical section C2
// requires: a single conditional set-if-absent with TTL to acquire, and a
// token-matched compare-and-delete to release, falling back to
// read-compare-delete on transient errors. Grounded on the go-redis/v9
// client used by the pack's forex-style trading manifests (see DESIGN.md).
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/web3guy0/orderflow/internal/domain"
)

var ErrNotHeld = errors.New("lock: not held or already released")

// Handle identifies an acquired lock so the caller can release exactly the
// lock it holds, never someone else's.
type Handle struct {
	Key   string
	Token string
}

type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// releaseScript compares the stored token before deleting, so a caller can
// never release a lock it does not hold (e.g. after its TTL expired and
// someone else acquired it).
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

func keyFor(scope string, userType domain.UserType, userID string) string {
	return fmt.Sprintf("lock:%s:%s:%s", scope, userType, userID)
}

// Acquire performs the single conditional set-if-absent spec.md §4.2
// requires. Returns nil, nil when the lock is already held by someone else.
func (l *Locker) Acquire(ctx context.Context, scope string, userType domain.UserType, userID string, ttl time.Duration) (*Handle, error) {
	key := keyFor(scope, userType, userID)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Handle{Key: key, Token: token}, nil
}

// Release compares the stored token to h.Token and deletes on match; on
// mismatch it no-ops. On a transient script-eval error it falls back to a
// plain read-compare-delete, per spec.md §4.2.
func (l *Locker) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	res, err := l.rdb.Eval(ctx, releaseScript, []string{h.Key}, h.Token).Result()
	if err == nil {
		if n, _ := res.(int64); n == 0 {
			return ErrNotHeld
		}
		return nil
	}

	// Transient failure (e.g. EVAL disabled by cluster config): fall back
	// to a non-atomic read-compare-delete rather than leaving the lock
	// held past its TTL unreleased.
	current, getErr := l.rdb.Get(ctx, h.Key).Result()
	if getErr != nil {
		if errors.Is(getErr, redis.Nil) {
			return ErrNotHeld
		}
		return fmt.Errorf("lock: release fallback get %s: %w", h.Key, err)
	}
	if current != h.Token {
		return ErrNotHeld
	}
	if delErr := l.rdb.Del(ctx, h.Key).Err(); delErr != nil {
		return fmt.Errorf("lock: release fallback del %s: %w", h.Key, delErr)
	}
	return nil
}
