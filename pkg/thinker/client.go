package thinker

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/strixrun/agentrun/pkg/agent"
)

// ClientConfig tunes the parts of Generate's pipeline that aren't owned by
// the cache/queue/breaker sub-configs.
type ClientConfig struct {
	Model            string
	SystemPrompt     string
	ActionEndMarker  string // defaults to "</action>"
	StreamingEnabled bool
	// StreamingOptOut lists regexes; a model name matching any of them
	// falls back to the non-streaming path even if StreamingEnabled.
	StreamingOptOut []string

	MaxRetries      int
	BackoffStart    time.Duration
	BackoffCeiling  time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ActionEndMarker == "" {
		c.ActionEndMarker = "</action>"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffStart <= 0 {
		c.BackoffStart = 2 * time.Second
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 16 * time.Second
	}
	return c
}

// IdentityLookup resolves the ephemeral identity block for an agent id. A
// nil lookup (or a lookup returning ok=false) means no identity block is
// prepended.
type IdentityLookup func(agentID string) (Identity, bool)

// Client implements agent.Thinker, wiring together the cache, request
// queue, circuit breaker, and streaming transport, grounded on
// original_source/strix/llm/llm.go.
type Client struct {
	Transport Transport
	Cache     *ResponseCache
	Queue     *RequestQueue
	Breaker   *CircuitBreaker
	Identity  IdentityLookup
	Config    ClientConfig
	clock     func() time.Time

	mu     sync.Mutex
	totals map[string]agent.Usage
}

// NewClient wires the transport and config with a default Response Cache,
// Request Queue and Circuit Breaker; callers replace those fields to tune them.
func NewClient(transport Transport, cfg ClientConfig) *Client {
	return &Client{
		Transport: transport,
		Cache:     NewResponseCache(100, 3600*time.Second, true),
		Queue:     NewRequestQueue(DefaultQueueConfig()),
		Breaker:   NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		Config:    cfg.withDefaults(),
		clock:     time.Now,
		totals:    make(map[string]agent.Usage),
	}
}

// Generate implements agent.Thinker.Generate, running the full ten-step
// generation pipeline.
func (c *Client) Generate(ctx context.Context, agentID string, history []agent.Message) (string, agent.Usage, error) {
	// Step 1: system prompt + identity block.
	messages := make([]agent.Message, 0, len(history)+2)
	if c.Config.SystemPrompt != "" {
		messages = append(messages, agent.Message{Role: agent.RoleSystem, Content: c.Config.SystemPrompt})
	}
	if c.Identity != nil {
		if id, ok := c.Identity(agentID); ok {
			messages = append(messages, id.Message())
		}
	}
	messages = append(messages, history...)

	// Step 3: fingerprint + cache probe (step 2, compaction, already ran
	// inside the agent loop before Generate is called).
	fingerprint := Fingerprint(c.Config.Model, messages)
	if cached, ok := c.Cache.Get(fingerprint); ok {
		return cached.Text, cached.Usage, nil
	}

	var resp Response
	err := c.Queue.Run(ctx, func(ctx context.Context) error {
		// Step 5: circuit breaker.
		if admitErr := c.Breaker.Admit(); admitErr != nil {
			if open, ok := admitErr.(*ErrCircuitOpen); ok {
				return &ErrServiceUnavailable{RetryAfter: open.RetryAfter}
			}
			return admitErr
		}

		r, sendErr := c.sendWithRetry(ctx, messages)
		if sendErr != nil {
			c.Breaker.RecordFailure()
			return sendErr
		}
		c.Breaker.RecordSuccess()
		resp = r
		return nil
	})
	if err != nil {
		return "", agent.Usage{}, err
	}

	// Step 8: truncate trailing content after the first action terminator.
	resp.Text = truncateAfterTerminator(resp.Text, c.Config.ActionEndMarker)

	// Step 9: record usage.
	c.recordUsage(agentID, resp.Usage)

	// Step 10: cache the result.
	c.Cache.Put(fingerprint, CacheResult{Text: resp.Text, Usage: resp.Usage})

	return resp.Text, resp.Usage, nil
}

// sendWithRetry implements step 6 (classify + exponential backoff) and step
// 7 (streaming with early-stop), falling back to the non-streaming path for
// opted-out models or when streaming is disabled.
func (c *Client) sendWithRetry(ctx context.Context, messages []agent.Message) (Response, error) {
	backoff := c.Config.BackoffStart
	var lastErr error

	for attempt := 1; attempt <= c.Config.MaxRetries; attempt++ {
		var resp Response
		var err error
		if c.useStreaming() {
			resp, err = c.sendStreaming(ctx, messages)
		} else {
			resp, err = c.Transport.Send(ctx, c.Config.Model, messages)
		}
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !classify(err) {
			return Response{}, &ErrNonRetryable{Cause: err}
		}
		c.Queue.RecordRetry()
		if strings.Contains(strings.ToLower(err.Error()), "rate limit") || strings.Contains(strings.ToLower(err.Error()), "429") {
			c.Queue.RecordRateLimited()
		}
		if attempt == c.Config.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
		backoff *= 2
		if backoff > c.Config.BackoffCeiling {
			backoff = c.Config.BackoffCeiling
		}
	}
	return Response{}, &ErrRetriesExhausted{Attempts: c.Config.MaxRetries, Cause: lastErr}
}

// useStreaming reports whether the streaming path applies for the
// configured model, honoring the opt-out pattern list.
func (c *Client) useStreaming() bool {
	if !c.Config.StreamingEnabled {
		return false
	}
	for _, pattern := range c.Config.StreamingOptOut {
		if re, err := regexp.Compile(pattern); err == nil && re.MatchString(c.Config.Model) {
			return false
		}
	}
	return true
}

// sendStreaming accumulates chunks, stopping early the moment the
// accumulated content contains the configured action-end marker.
func (c *Client) sendStreaming(ctx context.Context, messages []agent.Message) (Response, error) {
	ch, err := c.Transport.Stream(ctx, c.Config.Model, messages)
	if err != nil {
		return Response{}, err
	}
	var b strings.Builder
	var usage agent.Usage
	for chunk := range ch {
		b.WriteString(chunk.Delta)
		if chunk.Done {
			usage = chunk.Usage
			break
		}
		if c.Config.ActionEndMarker != "" && strings.Contains(b.String(), c.Config.ActionEndMarker) {
			break
		}
	}
	return Response{Text: b.String(), Usage: usage}, nil
}

// truncateAfterTerminator drops any content after the first occurrence of
// marker, keeping the marker itself. Text with no marker is returned as-is.
func truncateAfterTerminator(text, marker string) string {
	if marker == "" {
		return text
	}
	idx := strings.Index(text, marker)
	if idx < 0 {
		return text
	}
	return text[:idx+len(marker)]
}

func (c *Client) recordUsage(agentID string, delta agent.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.totals[agentID]
	t.InputTokens += delta.InputTokens
	t.OutputTokens += delta.OutputTokens
	t.CachedTokens += delta.CachedTokens
	t.Cost += delta.Cost
	c.totals[agentID] = t
}

// UsageTotals reports the running per-agent usage total.
func (c *Client) UsageTotals(agentID string) agent.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[agentID]
}
