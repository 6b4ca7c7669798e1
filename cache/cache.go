// Package cache implements RunCache: a process-scoped, thread-safe
// memoization store keyed by (namespace, key), shared by every collector and
// the PR-context builder for the duration of one run. It is grounded on the
// mutex-guarded map pattern the teacher uses for its Redis queue client
// (queue/redis/queue.go) and worker pool (worker/pool.go), adapted from a
// remote store to a purely in-process one since the spec's Non-goals rule
// out cross-run or persistent storage.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/evalgo/digestengine/common"
)

type entryKey struct {
	namespace string
	key       string
}

type entry struct {
	value interface{}
	err   error
}

// Cache is RunCache. The zero value is not usable; construct with New.
type Cache struct {
	mu      sync.RWMutex
	entries map[entryKey]entry
	group   singleflight.Group
	logger  *common.ContextLogger
}

// New constructs an empty Cache.
func New(logger *common.ContextLogger) *Cache {
	if logger == nil {
		logger = common.NewContextLogger(nil, map[string]interface{}{"component": "cache"})
	}
	return &Cache{
		entries: make(map[entryKey]entry),
		logger:  logger,
	}
}

// Fetch returns the memoized value for (namespace, key) if present —
// including a memoized negative result or error — otherwise invokes compute
// exactly once even under concurrent callers racing on the same key
// (guaranteed by singleflight.Group), memoizes the outcome, and returns it.
//
// This is the single critical section the spec calls out as the only shared
// mutable state in the concurrency model.
func (c *Cache) Fetch(namespace, key string, compute func() (interface{}, error)) (interface{}, error) {
	ek := entryKey{namespace: namespace, key: key}

	c.mu.RLock()
	if e, ok := c.entries[ek]; ok {
		c.mu.RUnlock()
		c.logger.WithFields(map[string]interface{}{
			"namespace": namespace, "key": key, "value": common.SummarizeForLog(e.value), "hit": true,
		}).Debug("cache hit")
		return e.value, e.err
	}
	c.mu.RUnlock()

	sfKey := namespace + "\x00" + key
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		// Re-check after acquiring the singleflight slot: another caller may
		// have completed the compute while we were waiting to enter Do.
		c.mu.RLock()
		if e, ok := c.entries[ek]; ok {
			c.mu.RUnlock()
			return e.value, e.err
		}
		c.mu.RUnlock()

		value, computeErr := compute()

		c.mu.Lock()
		c.entries[ek] = entry{value: value, err: computeErr}
		c.mu.Unlock()

		return value, computeErr
	})

	c.logger.WithFields(map[string]interface{}{
		"namespace": namespace, "key": key, "value": common.SummarizeForLog(v), "hit": false,
	}).Debug("cache miss")

	return v, err
}

// Len reports the number of memoized entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
