package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const termLockPrefix = "timetable:generation:lock:"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`)

// TermLockRepository hands out short-lived per-term submission locks. It uses
// Redis when a client is configured and falls back to a process-local map.
type TermLockRepository struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]time.Time
}

// NewTermLockRepository constructs the repository; client may be nil.
func NewTermLockRepository(client *redis.Client) *TermLockRepository {
	return &TermLockRepository{client: client, local: make(map[string]time.Time)}
}

// Acquire tries to take the lock for termID. ok is false when another holder
// owns it; release must be called once the critical section ends.
func (r *TermLockRepository) Acquire(ctx context.Context, termID string, ttl time.Duration) (release func(), ok bool, err error) {
	key := termLockPrefix + termID
	if r.client == nil {
		return r.acquireLocal(key, ttl)
	}

	token := uuid.NewString()
	ok, err = r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		_ = releaseScript.Run(context.Background(), r.client, []string{key}, token).Err()
	}, true, nil
}

func (r *TermLockRepository) acquireLocal(key string, ttl time.Duration) (func(), bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if until, held := r.local[key]; held && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	r.local[key] = until
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.local[key].Equal(until) {
			delete(r.local, key)
		}
	}, true, nil
}
