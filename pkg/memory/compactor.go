// Package memory implements the Memory Compactor: the history compression
// policy that bounds prompt size before each thinker call,
// grounded on original_source/strix/llm/llm.py's MemoryCompressor usage.
package memory

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/strixrun/agentrun/pkg/agent"
)

// Config tunes the compaction policy.
type Config struct {
	// KeepLast is the number of most recent messages preserved verbatim.
	KeepLast int
	// TokenThreshold is the approximate token count above which
	// compaction runs. Token counting (rather than a raw message-count
	// heuristic) is grounded on the teacher's pkoukk/tiktoken-go
	// dependency.
	TokenThreshold int
	// Encoding is the tiktoken encoding name; defaults to "cl100k_base"
	// when empty.
	Encoding string
	// MaxCacheMarkers bounds how many mid-conversation messages get
	// marked cacheable.
	MaxCacheMarkers int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{KeepLast: 20, TokenThreshold: 8000, Encoding: "cl100k_base", MaxCacheMarkers: 3}
}

// Compactor implements agent.Compactor.
type Compactor struct {
	cfg Config
	enc *tiktoken.Tiktoken
}

// New constructs a Compactor. If the named encoding can't be loaded, token
// counting falls back to a whitespace-word approximation rather than
// failing compaction outright.
func New(cfg Config) *Compactor {
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = 20
	}
	if cfg.MaxCacheMarkers <= 0 {
		cfg.MaxCacheMarkers = 3
	}
	encName := cfg.Encoding
	if encName == "" {
		encName = "cl100k_base"
	}
	enc, _ := tiktoken.GetEncoding(encName)
	return &Compactor{cfg: cfg, enc: enc}
}

func (c *Compactor) countTokens(s string) int {
	if c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	return len(strings.Fields(s))
}

func (c *Compactor) totalTokens(history []agent.Message) int {
	total := 0
	for _, m := range history {
		total += c.countTokens(m.Content)
	}
	return total
}

// Compact applies the compaction policy:
//   - never touch the leading system prompt
//   - preserve the last KeepLast messages verbatim
//   - collapse consecutive tool_observation runs among older messages into
//     a single digest
//   - drop assistant "thinking"-only messages with no observable effect
//   - retain every message containing an action invocation or an error
//   - mark the system message and up to MaxCacheMarkers evenly spaced
//     mid-conversation messages as cacheable
func (c *Compactor) Compact(history []agent.Message) []agent.Message {
	if len(history) == 0 || c.totalTokens(history) < c.cfg.TokenThreshold {
		return markCacheable(history, c.cfg.MaxCacheMarkers)
	}

	var system []agent.Message
	rest := history
	if len(history) > 0 && history[0].Role == agent.RoleSystem {
		system = history[:1]
		rest = history[1:]
	}

	keepFrom := len(rest) - c.cfg.KeepLast
	if keepFrom < 0 {
		keepFrom = 0
	}
	older, recent := rest[:keepFrom], rest[keepFrom:]

	collapsed := collapseOlder(older)

	out := make([]agent.Message, 0, len(system)+len(collapsed)+len(recent))
	out = append(out, system...)
	out = append(out, collapsed...)
	out = append(out, recent...)
	return markCacheable(out, c.cfg.MaxCacheMarkers)
}

// collapseOlder folds consecutive tool_observation runs into one summary
// message, drops empty thinking-only assistant messages, and keeps
// anything with an action invocation or error marker untouched.
func collapseOlder(msgs []agent.Message) []agent.Message {
	var out []agent.Message
	var run []agent.Message

	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) == 1 {
			out = append(out, run[0])
		} else {
			out = append(out, summarizeObservationRun(run))
		}
		run = nil
	}

	for _, m := range msgs {
		if m.Role == agent.RoleToolObservation {
			run = append(run, m)
			continue
		}
		flush()
		if m.Role == agent.RoleAssistant && isThinkingOnly(m.Content) {
			continue
		}
		out = append(out, m)
	}
	flush()
	return out
}

func isThinkingOnly(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	return !strings.Contains(trimmed, "<action") && !strings.Contains(strings.ToLower(trimmed), "error")
}

func summarizeObservationRun(run []agent.Message) agent.Message {
	names := make([]string, 0, len(run))
	for _, m := range run {
		name := m.Content
		if idx := strings.Index(name, "\""); idx >= 0 {
			if end := strings.Index(name[idx+1:], "\""); end >= 0 {
				name = name[idx+1 : idx+1+end]
			}
		}
		names = append(names, name)
	}
	digest := fmt.Sprintf("[%d prior observations collapsed: %s]", len(run), strings.Join(names, ", "))
	return agent.Message{Role: agent.RoleToolObservation, Content: digest, CreatedAt: run[len(run)-1].CreatedAt}
}

// markCacheable marks the system message and up to max evenly spaced
// mid-conversation messages as cacheable; the spacing interval grows so
// that no more than max cache markers exist regardless of length.
func markCacheable(history []agent.Message, max int) []agent.Message {
	out := append([]agent.Message(nil), history...)
	if len(out) == 0 {
		return out
	}
	if out[0].Role == agent.RoleSystem {
		out[0].Cacheable = true
	}
	start := 0
	if out[0].Role == agent.RoleSystem {
		start = 1
	}
	mid := out[start:]
	for i := range mid {
		mid[i].Cacheable = false
	}
	if len(mid) == 0 || max <= 0 {
		return out
	}
	step := len(mid) / (max + 1)
	if step < 1 {
		step = 1
	}
	marked := 0
	for i := step; i < len(mid) && marked < max; i += step {
		mid[i].Cacheable = true
		marked++
	}
	return out
}
