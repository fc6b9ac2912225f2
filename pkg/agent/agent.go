package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/strixrun/agentrun/pkg/action"
)

// Invocation is one parsed action call from a thinker response.
type Invocation = action.Invocation

// ActionResult is what a dispatched invocation produced.
type ActionResult struct {
	Invocation Invocation
	Value      any
	Err        error
}

// Thinker is the collaborator that turns a conversation into a response.
// Implemented by pkg/thinker.Client.
type Thinker interface {
	Generate(ctx context.Context, agentID string, history []Message) (text string, usage Usage, err error)
}

// Usage reports per-call thinker token/cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Cost         float64
}

// Dispatcher executes invocations for an agent. Implemented by
// pkg/sandbox.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, role Role, invocations []Invocation) []ActionResult
}

// Compactor reduces history size in place. Implemented by
// pkg/memory.Compactor.
type Compactor interface {
	Compact(history []Message) []Message
}

// Parser extracts invocations from raw thinker text. Implemented by
// pkg/action.Parser.
type Parser interface {
	Parse(text string) ([]Invocation, error)
}

// Reconciler inspects an agent after each iteration for anomalies.
// Implemented by pkg/reconciler.Reconciler.
type Reconciler interface {
	Reconcile(a *Agent)
}

// EventSink records lifecycle/iteration events. Implemented by
// pkg/tracer.Tracer.
type EventSink interface {
	AgentIteration(agentID string, iteration, maxIterations int)
	AgentStateTransition(agentID string, from, to Status)
	ThinkerError(agentID, kind, msg string)
}

// Spawner creates and registers a child agent, returning its id. Wired by
// pkg/runtime so the `spawn_agent` action can reach the mailbox/arena
// without this package depending on it directly.
type Spawner interface {
	Spawn(name, task string, role Role, parentID string) (childID string, err error)
}

// Messenger delivers a message to another agent by id. Backed by the
// mailbox/arena in pkg/runtime.
type Messenger interface {
	Send(targetID, fromID, content string) error
}

// ControlActions intercepts invocations that mutate host-only runtime
// state (finish, wait, spawn_agent, send_to_agent, the notes/progress/plan
// surface) before they would otherwise be routed to the Dispatcher's
// sandbox worker, since that state has no meaning inside an isolated
// subprocess. Handle returns handled=false for any invocation it doesn't
// recognize, letting the Loop fall through to the Dispatcher.
type ControlActions interface {
	Handle(ctx context.Context, a *Agent, inv Invocation) (value any, handled bool, err error)
}

// Loop drives one Agent from its current status to a terminal status,
// wiring together the runtime's collaborators.
type Loop struct {
	Agent      *Agent
	Thinker    Thinker
	Dispatcher Dispatcher
	Compactor  Compactor
	Parser     Parser
	Reconciler Reconciler
	Events     EventSink
	Control    ControlActions

	// ParallelConcurrency records the bound on concurrent dispatch of
	// "parallel" tagged invocations within one iteration. Defaults to 4.
	// The Loop does not apply it itself: it hands the parallel batch to the
	// Dispatcher, which enforces its own bound.
	ParallelConcurrency int

	clock func() time.Time
}

func (l *Loop) now() time.Time {
	if l.clock != nil {
		return l.clock()
	}
	return time.Now()
}

// Run executes iterations until the agent reaches a terminal status or the
// iteration budget is exhausted. It returns the final result on success, or
// a typed error describing why the agent did not complete.
func (l *Loop) Run(ctx context.Context) (any, error) {
	if l.ParallelConcurrency <= 0 {
		l.ParallelConcurrency = 4
	}
	for {
		if l.Agent.Status.IsTerminal() {
			break
		}
		if l.Agent.stopRequestedSafe() {
			l.Agent.mu.Lock()
			l.Agent.transition(StatusStopped)
			l.Agent.mu.Unlock()
			break
		}
		if l.Agent.Status.IsWaiting() {
			if l.Agent.CheckWaitTimeout(l.now()) {
				break
			}
		}
		if l.Agent.Iteration >= l.Agent.MaxIterations {
			l.Agent.mu.Lock()
			l.Agent.FailureReason = "max_iterations"
			l.Agent.transition(StatusFailed)
			l.Agent.mu.Unlock()
			break
		}
		if l.Agent.Status == StatusRunning {
			if err := l.iterate(ctx); err != nil {
				return nil, err
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	switch l.Agent.Status {
	case StatusCompleted:
		return l.Agent.FinalResult, nil
	case StatusFailed:
		if l.Agent.FailureReason == "max_iterations" {
			return nil, &ErrMaxIterationsExceeded{AgentID: l.Agent.ID}
		}
		return nil, &ErrAgentFailed{AgentID: l.Agent.ID, Reason: l.Agent.FailureReason}
	case StatusStopped:
		return l.Agent.FinalResult, nil
	default:
		return nil, fmt.Errorf("agent %s: run loop exited in non-terminal status %s", l.Agent.ID, l.Agent.Status)
	}
}

func (a *Agent) stopRequestedSafe() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopRequested
}

// iterate performs exactly one loop step.
func (l *Loop) iterate(ctx context.Context) error {
	a := l.Agent
	if l.Events != nil {
		l.Events.AgentIteration(a.ID, a.Iteration, a.MaxIterations)
	}

	if l.Compactor != nil {
		a.mu.Lock()
		a.History = l.Compactor.Compact(a.History)
		a.mu.Unlock()
	}

	a.mu.Lock()
	history := append([]Message(nil), a.History...)
	a.mu.Unlock()

	text, _, err := l.Thinker.Generate(ctx, a.ID, history)
	if err != nil {
		a.RecordError("thinker", err.Error())
		if l.Events != nil {
			l.Events.ThinkerError(a.ID, "thinker_error", err.Error())
		}
		prev := a.Status
		a.EnterRecovery(err.Error())
		if l.Events != nil {
			l.Events.AgentStateTransition(a.ID, prev, a.Status)
		}
		return nil
	}

	a.AppendMessage(Message{Role: RoleAssistant, Content: text})

	var invocations []Invocation
	if l.Parser != nil {
		invocations, _ = l.Parser.Parse(text)
	}

	if len(invocations) == 0 {
		a.mu.Lock()
		a.ConsecutiveEmpty++
		empty := a.ConsecutiveEmpty
		a.mu.Unlock()
		if empty >= 3 {
			a.AppendMessage(Message{Role: RoleUser, Content: "No action was recognized in your last response. Please invoke one of the available actions."})
		}
		if empty > 5 {
			a.mu.Lock()
			a.FailureReason = "empty_responses_exhausted"
			a.transition(StatusFailed)
			a.mu.Unlock()
			return nil
		}
	} else {
		a.mu.Lock()
		a.ConsecutiveEmpty = 0
		a.mu.Unlock()
		results := l.dispatch(ctx, invocations)
		for _, r := range results {
			obs := ObservationLogEntry{ActionName: r.Invocation.Name, Result: r.Value, Err: r.Err, At: l.now()}
			a.mu.Lock()
			a.Observations = append(a.Observations, obs)
			a.mu.Unlock()
			a.AppendMessage(Message{Role: RoleToolObservation, Content: formatObservation(r)})
		}
	}

	a.mu.Lock()
	a.Iteration++
	a.mu.Unlock()

	prevStatus := a.Status
	if l.Reconciler != nil {
		l.Reconciler.Reconcile(a)
	}
	if l.Events != nil && a.Status != prevStatus {
		l.Events.AgentStateTransition(a.ID, prevStatus, a.Status)
	}
	return nil
}

// dispatch runs sequential invocations first in parse order, then parallel
// invocations concurrently (bounded by the Dispatcher), then reorders
// results back to parse order.
func (l *Loop) dispatch(ctx context.Context, invocations []Invocation) []ActionResult {
	out := make([]ActionResult, len(invocations))

	var sequential, parallel []Invocation
	var seqIdx, parIdx []int
	for i, inv := range invocations {
		if l.Control != nil {
			if value, handled, err := l.Control.Handle(ctx, l.Agent, inv); handled {
				out[i] = ActionResult{Invocation: inv, Value: value, Err: err}
				continue
			}
		}
		if inv.Sequential {
			sequential = append(sequential, inv)
			seqIdx = append(seqIdx, i)
		} else {
			parallel = append(parallel, inv)
			parIdx = append(parIdx, i)
		}
	}

	if len(sequential) > 0 {
		res := l.Dispatcher.Dispatch(ctx, l.Agent.ID, l.Agent.Role, sequential)
		for i, r := range res {
			out[seqIdx[i]] = r
		}
	}
	if len(parallel) > 0 {
		res := l.Dispatcher.Dispatch(ctx, l.Agent.ID, l.Agent.Role, parallel)
		for i, r := range res {
			out[parIdx[i]] = r
		}
	}
	return out
}

func formatObservation(r ActionResult) string {
	if r.Err != nil {
		return fmt.Sprintf("action %q failed: %v", r.Invocation.Name, r.Err)
	}
	return fmt.Sprintf("action %q result: %v", r.Invocation.Name, r.Value)
}
