package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/strixrun/agentrun/pkg/agent"
)

// arenaEntry pairs a running agent with the cancel function for its Loop
// goroutine. The done channel is created per entry; the arena never
// closes or reads it.
type arenaEntry struct {
	agent  *agent.Agent
	cancel context.CancelFunc
	done   chan struct{}
}

// Arena is the in-process registry of every agent in a run, implementing
// agent.Spawner and agent.Messenger so spawn_agent/send_to_agent can reach
// sibling agents without pkg/agent depending on this package. Grounded on
// the generic write-once registry pattern already used for the Action
// Registry, specialized here to a mutable, append-only-by-id arena.
type Arena struct {
	mu      sync.RWMutex
	entries map[string]*arenaEntry

	spawn func(ctx context.Context, id, name string, role agent.Role, parentID, task string) (*agent.Agent, context.CancelFunc, error)
}

// NewArena constructs an empty arena. spawnFn is called by Spawn to
// actually construct and launch a new agent's Loop; it is injected so the
// arena doesn't need to know how to build a full Loop's collaborators.
func NewArena(spawnFn func(ctx context.Context, id, name string, role agent.Role, parentID, task string) (*agent.Agent, context.CancelFunc, error)) *Arena {
	return &Arena{entries: make(map[string]*arenaEntry), spawn: spawnFn}
}

// Register adds an already-constructed agent (used for the root agent,
// which the runtime builder constructs directly rather than through Spawn).
func (a *Arena) Register(ag *agent.Agent, cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[ag.ID] = &arenaEntry{agent: ag, cancel: cancel, done: make(chan struct{})}
}

// Get returns the agent registered under id, if any.
func (a *Arena) Get(id string) (*agent.Agent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[id]
	if !ok {
		return nil, false
	}
	return e.agent, true
}

// Spawn implements agent.Spawner.
func (a *Arena) Spawn(name, task string, role agent.Role, parentID string) (string, error) {
	childID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	child, cancel2, err := a.spawn(ctx, childID, name, role, parentID, task)
	if err != nil {
		cancel()
		return "", fmt.Errorf("runtime: spawn agent %q: %w", name, err)
	}
	a.mu.Lock()
	a.entries[childID] = &arenaEntry{agent: child, cancel: cancel2, done: make(chan struct{})}
	a.mu.Unlock()
	return childID, nil
}

// Send implements agent.Messenger.
func (a *Arena) Send(targetID, fromID, content string) error {
	target, ok := a.Get(targetID)
	if !ok {
		return fmt.Errorf("runtime: send_to_agent: unknown target %q", targetID)
	}
	snap := target.Snapshot()
	if snap.Status.IsTerminal() {
		return fmt.Errorf("runtime: send_to_agent: target %q is already terminal", targetID)
	}
	target.SendMessage(fmt.Sprintf("[from %s] %s", fromID, content))
	return nil
}

// RequestStopAll propagates a stop request to every registered agent, used
// on shutdown; it never forcibly cancels an in-flight thinker/action call,
// letting each agent reach its next safe point on its own.
func (a *Arena) RequestStopAll() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.entries {
		e.agent.RequestStop()
	}
}

// Count returns the number of agents ever registered in this arena.
func (a *Arena) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
