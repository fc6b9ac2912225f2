// Package agent implements the per-agent iteration loop: the state machine
// that drives one agent from an initial task to a terminal status by
// repeatedly consulting a thinker, dispatching parsed actions, and folding
// observations back into its own conversation history.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/strixrun/agentrun/pkg/action"
)

// Status is one state in an agent's lifecycle state machine.
type Status string

const (
	StatusRunning            Status = "running"
	StatusWaitingForMessage  Status = "waiting_for_message"
	StatusWaitingForRecovery Status = "waiting_for_recovery"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusStopped            Status = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// IsWaiting reports whether the status is one of the waiting variants.
func (s Status) IsWaiting() bool {
	return s == StatusWaitingForMessage || s == StatusWaitingForRecovery
}

// Role gates which actions an agent may dispatch.
type Role = action.Role

// MessageRole identifies the speaker of one history entry.
type MessageRole string

const (
	RoleSystem          MessageRole = "system"
	RoleUser            MessageRole = "user"
	RoleAssistant       MessageRole = "assistant"
	RoleToolObservation MessageRole = "tool_observation"
)

// Message is one entry in an agent's ordered conversation history.
type Message struct {
	Role      MessageRole
	Content   string
	Cacheable bool
	CreatedAt time.Time
}

// ActionLogEntry records one dispatched action invocation.
type ActionLogEntry struct {
	Name      string
	Arguments map[string]any
	At        time.Time
}

// ObservationLogEntry records one action result folded back into history.
type ObservationLogEntry struct {
	ActionName string
	Result     any
	Err        error
	At         time.Time
}

// ErrorLogEntry records one error encountered during the loop.
type ErrorLogEntry struct {
	Kind string
	Msg  string
	At   time.Time
}

// SandboxHandle identifies the isolated execution context an agent's
// actions are dispatched through. Its Address/Secret are opaque to the
// agent; only pkg/sandbox interprets them.
type SandboxHandle struct {
	Address string
	Secret  string
}

// Agent is a supervised loop that converts thinker output into actions and
// observations until it reaches a terminal status. An Agent exclusively
// owns its own message history and counters; the Reconciler and mailbox may
// mutate it only through the methods below, all of which take the lock.
type Agent struct {
	mu sync.Mutex

	ID       string
	Name     string
	Role     Role
	ParentID string

	Iteration         int
	MaxIterations     int
	MaxWaitSeconds    int
	ConsecutiveEmpty  int
	WaitingStartTime  *time.Time
	Status            Status
	FailureReason     string
	FinalResult       any
	FinalResultSet    bool

	History      []Message
	ActionLog    []ActionLogEntry
	Observations []ObservationLogEntry
	Errors       []ErrorLogEntry
	Context      map[string]any
	Sandbox      *SandboxHandle

	stopRequested bool
}

// New constructs a running agent with the given id, task description as the
// first user message, and default bounds. Callers should set MaxIterations
// and MaxWaitSeconds from configuration before the first Run call if the
// defaults (300 iterations / 300s) don't apply.
func New(id, name string, role Role, parentID, task string) *Agent {
	now := time.Now()
	return &Agent{
		ID:             id,
		Name:           name,
		Role:           role,
		ParentID:       parentID,
		MaxIterations:  300,
		MaxWaitSeconds: 300,
		Status:         StatusRunning,
		Context:        make(map[string]any),
		History: []Message{
			{Role: RoleUser, Content: task, CreatedAt: now},
		},
	}
}

// Snapshot returns a point-in-time copy of fields a caller may want to
// inspect without holding the agent's lock (e.g. the Reconciler, the
// Tracer). History and Errors are shallow-copied slices.
type Snapshot struct {
	ID               string
	Status           Status
	Iteration        int
	MaxIterations    int
	WaitingStartTime *time.Time
	ConsecutiveEmpty int
	History          []Message
	Errors           []ErrorLogEntry
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		ID:               a.ID,
		Status:           a.Status,
		Iteration:        a.Iteration,
		MaxIterations:    a.MaxIterations,
		WaitingStartTime: a.WaitingStartTime,
		ConsecutiveEmpty: a.ConsecutiveEmpty,
		History:          append([]Message(nil), a.History...),
		Errors:           append([]ErrorLogEntry(nil), a.Errors...),
	}
}

// transition moves the agent to a new status, maintaining the
// waiting_start_time invariant: non-nil iff status is a waiting variant,
// and always cleared on a terminal transition.
func (a *Agent) transition(to Status) {
	if to.IsWaiting() {
		now := time.Now()
		a.WaitingStartTime = &now
	} else {
		a.WaitingStartTime = nil
	}
	if to == StatusRunning && a.Status.IsWaiting() {
		a.ConsecutiveEmpty = 0
	}
	a.Status = to
}

// RequestStop asks the agent to stop at its next safe point (the start of
// its next iteration). It never cancels an in-flight thinker or action call.
func (a *Agent) RequestStop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopRequested = true
}

// SendMessage appends a user-role message to this agent's history. If the
// agent is currently waiting, it transitions back to running.
func (a *Agent) SendMessage(content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = append(a.History, Message{Role: RoleUser, Content: content, CreatedAt: time.Now()})
	if a.Status.IsWaiting() {
		a.transition(StatusRunning)
	}
}

// AppendMessage appends a history entry of any role, used internally by the
// loop for assistant/tool_observation/system entries.
func (a *Agent) AppendMessage(m Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	a.History = append(a.History, m)
}

// ReplaceHistory atomically swaps the history, used by the Memory Compactor.
func (a *Agent) ReplaceHistory(msgs []Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = msgs
}

// CheckWaitTimeout fails the agent if it has been waiting longer than
// MaxWaitSeconds. Returns true if the agent transitioned to failed.
func (a *Agent) CheckWaitTimeout(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.WaitingStartTime == nil {
		return false
	}
	if now.Sub(*a.WaitingStartTime) > time.Duration(a.MaxWaitSeconds)*time.Second {
		a.FailureReason = "wait_timeout"
		a.transition(StatusFailed)
		return true
	}
	return false
}

// Finish moves the agent to a terminal status from a `finish` action.
func (a *Agent) Finish(success bool, result any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.FinalResult = result
	a.FinalResultSet = true
	if success {
		a.transition(StatusCompleted)
	} else {
		a.FailureReason = "finish_failure"
		a.transition(StatusFailed)
	}
}

// Wait moves the agent into waiting_for_message, e.g. from the `wait` action.
func (a *Agent) Wait() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transition(StatusWaitingForMessage)
}

// EnterRecovery moves the agent into waiting_for_recovery after a
// non-retryable thinker failure.
func (a *Agent) EnterRecovery(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.FailureReason = reason
	a.transition(StatusWaitingForRecovery)
}

// ClampIteration repairs the iteration_overflow reconciler issue by
// clamping Iteration back down to MaxIterations.
func (a *Agent) ClampIteration() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Iteration > a.MaxIterations {
		a.Iteration = a.MaxIterations
	}
}

// RestoreWaitingStartTime repairs the recovery_inconsistent reconciler
// issue: waiting_for_recovery status with no waiting_start_time set.
func (a *Agent) RestoreWaitingStartTime() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Status == StatusWaitingForRecovery && a.WaitingStartTime == nil {
		now := time.Now()
		a.WaitingStartTime = &now
	}
}

// RecordError appends an entry to the error log.
func (a *Agent) RecordError(kind, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Errors = append(a.Errors, ErrorLogEntry{Kind: kind, Msg: msg, At: time.Now()})
}

// ErrMaxIterationsExceeded is returned by Run when the agent exhausts its
// iteration budget without reaching a terminal status.
type ErrMaxIterationsExceeded struct{ AgentID string }

func (e *ErrMaxIterationsExceeded) Error() string {
	return fmt.Sprintf("agent %s: max iterations exceeded", e.AgentID)
}

// ErrAgentFailed wraps the agent's recorded failure reason.
type ErrAgentFailed struct {
	AgentID string
	Reason  string
}

func (e *ErrAgentFailed) Error() string {
	return fmt.Sprintf("agent %s failed: %s", e.AgentID, e.Reason)
}
