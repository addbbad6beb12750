// Package dupcheck implements the dedup cache backing the
// "dupcheck N FLAGS" job option (SPEC_FULL.md §4.7): a job whose
// options carry DupCheck tracks recently delivered (job_id, filename,
// size, content-hash) tuples so a resend or a re-ingested file that
// duplicates a recent delivery can be skipped or flagged.
package dupcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hfs/afd-sub007/internal/jobid"
)

// Cache answers "have I seen this delivery recently?" for a given
// job's dedup window.
type Cache interface {
	Seen(ctx context.Context, jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags) (bool, error)
	Remember(ctx context.Context, jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags, window time.Duration) error
}

func key(jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags) string {
	switch flags {
	case jobid.DupCheckContentHash:
		return fmt.Sprintf("afd:dupcheck:%d:%s", jobID, contentHash)
	case jobid.DupCheckSizeAndFilename:
		return fmt.Sprintf("afd:dupcheck:%d:%s:%d", jobID, filename, size)
	default:
		return fmt.Sprintf("afd:dupcheck:%d:%s", jobID, filename)
	}
}

// RedisCache backs the dedup window with Redis, shared across
// concurrent Send Workers on different hosts (spec.md's multi-process
// model; SPEC_FULL.md §4.7).
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache returns a Cache backed by the Redis server at addr.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Seen(ctx context.Context, jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags) (bool, error) {
	n, err := c.client.Exists(ctx, key(jobID, filename, size, contentHash, flags)).Result()
	if err != nil {
		return false, fmt.Errorf("dupcheck: redis exists: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Remember(ctx context.Context, jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags, window time.Duration) error {
	if err := c.client.Set(ctx, key(jobID, filename, size, contentHash, flags), 1, window).Err(); err != nil {
		return fmt.Errorf("dupcheck: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

// InProcessCache is the fallback used when no Redis address is
// configured: a time-windowed in-memory map, scoped to this process
// only (so the dedup guarantee is weaker than RedisCache's — no cross
// -process sharing — but still correct within a single worker).
type InProcessCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInProcessCache returns an empty in-process dedup cache.
func NewInProcessCache() *InProcessCache {
	return &InProcessCache{entries: make(map[string]time.Time)}
}

func (c *InProcessCache) Seen(_ context.Context, jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.entries[key(jobID, filename, size, contentHash, flags)]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(c.entries, key(jobID, filename, size, contentHash, flags))
		return false, nil
	}
	return true, nil
}

func (c *InProcessCache) Remember(_ context.Context, jobID uint64, filename string, size int64, contentHash string, flags jobid.DupCheckFlags, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(jobID, filename, size, contentHash, flags)] = time.Now().Add(window)
	return nil
}

// Sweep removes expired entries; callers may run it periodically to
// bound memory use since InProcessCache never sweeps on its own.
func (c *InProcessCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, expiry := range c.entries {
		if now.After(expiry) {
			delete(c.entries, k)
		}
	}
}
