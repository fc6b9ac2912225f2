// Package thinker implements the Thinker Client: a queued, rate-limited,
// retried, cached, streamed client to the external reasoning service,
// grounded on original_source/strix/llm/llm.go, request_queue.py,
// response_cache.py, and circuit_breaker.py.
package thinker

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/strixrun/agentrun/pkg/agent"
)

// Usage is the canonical per-call token/cost accounting type, defined on
// pkg/agent.Thinker's interface and reused here so a cached entry and a
// freshly generated one share the same shape.
type Usage = agent.Usage

// CacheResult is what a cached generation produced.
type CacheResult struct {
	Text  string
	Usage Usage
}

// cacheEntry is one LRU node's payload.
type cacheEntry struct {
	key      string
	value    CacheResult
	storedAt time.Time
}

// ResponseCache is a bounded, thread-safe LRU with TTL, keyed by a stable
// hash of (model, messages). Grounded on
// original_source/strix/llm/response_cache.py. Implemented on
// container/list + map (stdlib): none of the example repos in the
// retrieval pack import a third-party LRU cache library, so this is the
// one deliberate stdlib-only component in the Thinker Client (recorded in
// DESIGN.md).
type ResponseCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	enabled bool

	ll    *list.List
	items map[string]*list.Element

	hits, misses, evictions int
}

// NewResponseCache constructs a cache with the given bounds.
func NewResponseCache(maxSize int, ttl time.Duration, enabled bool) *ResponseCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}
	return &ResponseCache{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: enabled,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Fingerprint computes a stable hash of (model, messages) used as the
// cache key.
func Fingerprint(model string, messages any) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	enc, _ := json.Marshal(messages)
	h.Write(enc)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, checking TTL expiry lazily and
// moving the entry to most-recently-used on a hit.
func (c *ResponseCache) Get(key string) (CacheResult, bool) {
	if !c.enabled {
		return CacheResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return CacheResult{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Since(entry.storedAt) > c.ttl {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses++
		return CacheResult{}, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return entry.value, true
}

// Put stores value under key, evicting the LRU entry if max_size would be
// exceeded.
func (c *ResponseCache) Put(key string, value CacheResult) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).storedAt = time.Now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, value: value, storedAt: time.Now()})
	c.items[key] = el

	for c.ll.Len() > c.maxSize {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.ll.Remove(back)
		delete(c.items, back.Value.(*cacheEntry).key)
		c.evictions++
	}
}

// Stats reports cache counters.
type Stats struct {
	Hits      int
	Misses    int
	Evictions int
	Size      int
	HitRate   float64
}

func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: c.ll.Len(), HitRate: rate}
}
