package thinker

import (
	"context"
	"strings"

	"github.com/strixrun/agentrun/pkg/agent"
)

// Response is what one non-streamed call to the external reasoning service
// produced.
type Response struct {
	Text  string
	Usage Usage
}

// StreamChunk is one piece of an in-progress streamed response.
type StreamChunk struct {
	Delta string
	Done  bool
	Usage Usage // only populated on the final chunk
}

// Transport sends a conversation to the external reasoning service. It is
// the seam a concrete vendor SDK would plug into; the wire protocol's model
// internals and vendor choice are left to the caller, so only the generic
// collaborator is defined here.
type Transport interface {
	Send(ctx context.Context, model string, messages []agent.Message) (Response, error)
	Stream(ctx context.Context, model string, messages []agent.Message) (<-chan StreamChunk, error)
}

var retryableMarkers = []string{
	"rate limit", "rate-limit", "429", "timeout", "timed out",
	"connection", "service unavailable", "503", "502", "500",
}

var nonRetryableMarkers = []string{
	"authentication", "unauthorized", "401", "not found", "404",
	"context window", "content policy", "invalid request", "400",
}

// classify reports whether err should be retried, matching the marker-based
// style already used by the reconciler's rate-limit detection.
func classify(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, m := range nonRetryableMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
