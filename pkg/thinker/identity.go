package thinker

import (
	"fmt"

	"github.com/strixrun/agentrun/pkg/agent"
)

// Identity is the ephemeral per-call block prepended ahead of compacted
// history so the thinker always knows which agent it is speaking for, even
// after compaction has dropped earlier reminders. It is never persisted to
// the agent's own message log, grounded on original_source/strix/llm/llm.go.
type Identity struct {
	AgentName string
	AgentID   string
	ParentID  string
}

// Message renders the identity block as a system-role message.
func (id Identity) Message() agent.Message {
	parent := id.ParentID
	if parent == "" {
		parent = "none"
	}
	return agent.Message{
		Role: agent.RoleSystem,
		Content: fmt.Sprintf(
			"you are agent %q (id=%s, parent=%s). this reminder is not part of your persisted history.",
			id.AgentName, id.AgentID, parent,
		),
	}
}

// Prepend returns history with the identity block inserted directly ahead
// of it, leaving history itself untouched.
func Prepend(id Identity, history []agent.Message) []agent.Message {
	out := make([]agent.Message, 0, len(history)+1)
	out = append(out, id.Message())
	out = append(out, history...)
	return out
}
