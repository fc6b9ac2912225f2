package thinker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// QueueConfig tunes concurrency and inter-request spacing.
type QueueConfig struct {
	MaxConcurrent         int
	MinInterRequestDelay  time.Duration
}

// DefaultQueueConfig matches the documented defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{MaxConcurrent: 6, MinInterRequestDelay: time.Second}
}

// RequestQueue bounds concurrency via a semaphore and enforces a minimum
// spacing between request starts via a monotonic clock, grounded on
// original_source/strix/llm/request_queue.py. Built on
// golang.org/x/sync/semaphore (a teacher go.mod dependency) rather than a
// hand-rolled channel pool.
type RequestQueue struct {
	sem   *semaphore.Weighted
	delay time.Duration

	mu       sync.Mutex
	lastSent time.Time

	total, successful, failed, rateLimited, retries int
}

// NewRequestQueue constructs a queue with the given bounds.
func NewRequestQueue(cfg QueueConfig) *RequestQueue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 6
	}
	if cfg.MinInterRequestDelay <= 0 {
		cfg.MinInterRequestDelay = time.Second
	}
	return &RequestQueue{sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)), delay: cfg.MinInterRequestDelay}
}

// Run acquires a concurrency slot, waits out any remaining inter-request
// delay, then invokes fn. The slot is released when fn returns.
func (q *RequestQueue) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer q.sem.Release(1)

	q.mu.Lock()
	wait := q.delay - time.Since(q.lastSent)
	if wait < 0 {
		wait = 0
	}
	q.lastSent = time.Now().Add(wait)
	q.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	q.mu.Lock()
	q.total++
	q.mu.Unlock()

	err := fn(ctx)

	q.mu.Lock()
	if err != nil {
		q.failed++
	} else {
		q.successful++
	}
	q.mu.Unlock()
	return err
}

// RecordRetry increments the retry counter; called once per retry attempt.
func (q *RequestQueue) RecordRetry() {
	q.mu.Lock()
	q.retries++
	q.mu.Unlock()
}

// RecordRateLimited increments the rate-limited counter.
func (q *RequestQueue) RecordRateLimited() {
	q.mu.Lock()
	q.rateLimited++
	q.mu.Unlock()
}

// QueueStats reports the queue's running counters.
type QueueStats struct {
	Total, Successful, Failed, RateLimited, Retries int
}

func (q *RequestQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Total: q.total, Successful: q.successful, Failed: q.failed, RateLimited: q.rateLimited, Retries: q.retries}
}
