package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// deletes the key only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis holds a lock as a key with an owner token and a TTL, so a crashed
// replica cannot block ingestion forever.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[int64]string
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "fundarb:lock:"
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		tokens: make(map[int64]string),
	}
}

func (r *Redis) key(key int64) string {
	return fmt.Sprintf("%s%d", r.prefix, key)
}

func (r *Redis) TryLock(ctx context.Context, key int64) (bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key(key), token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %d: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

func (r *Redis) Unlock(ctx context.Context, key int64) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, token).Err(); err != nil {
		return fmt.Errorf("redis unlock %d: %w", key, err)
	}
	return nil
}
