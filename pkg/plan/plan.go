// Package plan implements the Run Plan: a task graph with
// phases, dependencies, and pause/resume support, snapshotted atomically on
// every state-changing operation, grounded on
// original_source/strix/agents/run_plan.py.
package plan

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TaskStatus is one of the six states a PlanTask may hold.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
	TaskBlocked    TaskStatus = "blocked"
)

// satisfiesDependency is the set a depended-on task's status must be in for
// a dependent task to become eligible to start.
func satisfiesDependency(s TaskStatus) bool {
	return s == TaskCompleted || s == TaskSkipped
}

// PlanTask is one unit of work in the plan.
type PlanTask struct {
	TaskID             string
	Title              string
	Description        string
	Status             TaskStatus
	PhaseID            string
	DependsOn          []string
	Priority           int
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	Result             any
	Error              string
	IterationStarted   int
	IterationCompleted int
	Metadata           map[string]any
}

// PhaseStatus is derived from its tasks' statuses, never set directly.
type PhaseStatus string

const (
	PhasePending            PhaseStatus = "pending"
	PhaseInProgress         PhaseStatus = "in_progress"
	PhaseCompleted          PhaseStatus = "completed"
	PhasePartiallyCompleted PhaseStatus = "partially_completed"
)

// PlanPhase groups tasks for reporting/ordering purposes.
type PlanPhase struct {
	PhaseID string
	Title   string
	Order   int
}

// ErrInvalidTransition is returned when a task status change would violate
// the dependency invariant or the task doesn't exist.
type ErrInvalidTransition struct{ TaskID, Reason string }

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("plan: task %s: %s", e.TaskID, e.Reason)
}

// Persister is called with an atomic snapshot after every state-changing
// operation. Implemented by pkg/tracer or any atomic-write sink.
type Persister interface {
	SaveRunPlan(snapshot Snapshot) error
}

// Plan is the in-memory task graph. All operations are safe for concurrent
// use; every mutation triggers a Persister callback before returning.
type Plan struct {
	mu sync.Mutex

	phases map[string]PlanPhase
	tasks  map[string]*PlanTask

	paused     bool
	pauseCtx   any
	persist    Persister
	now        func() time.Time
}

// New constructs an empty plan. persist may be nil to skip snapshotting
// (e.g. in tests).
func New(persist Persister) *Plan {
	return &Plan{
		phases:  make(map[string]PlanPhase),
		tasks:   make(map[string]*PlanTask),
		persist: persist,
		now:     time.Now,
	}
}

func (p *Plan) AddPhase(phaseID, title string, order int) {
	p.mu.Lock()
	p.phases[phaseID] = PlanPhase{PhaseID: phaseID, Title: title, Order: order}
	p.mu.Unlock()
	p.snapshot()
}

// AddTask registers a new pending task.
func (p *Plan) AddTask(taskID, title, description, phaseID string, dependsOn []string, priority int) {
	p.mu.Lock()
	p.tasks[taskID] = &PlanTask{
		TaskID:      taskID,
		Title:       title,
		Description: description,
		Status:      TaskPending,
		PhaseID:     phaseID,
		DependsOn:   append([]string(nil), dependsOn...),
		Priority:    priority,
		CreatedAt:   p.now(),
		Metadata:    make(map[string]any),
	}
	p.mu.Unlock()
	p.snapshot()
}

// dependenciesSatisfied reports whether every task in deps is completed or
// skipped. Caller must hold the lock.
func (p *Plan) dependenciesSatisfied(deps []string) bool {
	for _, id := range deps {
		dep, ok := p.tasks[id]
		if !ok || !satisfiesDependency(dep.Status) {
			return false
		}
	}
	return true
}

// StartTask transitions a task to in_progress, enforcing the dependency
// invariant: depends_on must all be {completed, skipped}.
func (p *Plan) StartTask(taskID string, iteration int) error {
	p.mu.Lock()
	defer p.snapshot()
	defer p.mu.Unlock()

	t, ok := p.tasks[taskID]
	if !ok {
		return &ErrInvalidTransition{TaskID: taskID, Reason: "unknown task"}
	}
	if !p.dependenciesSatisfied(t.DependsOn) {
		return &ErrInvalidTransition{TaskID: taskID, Reason: "dependencies not yet completed or skipped"}
	}
	now := p.now()
	t.Status = TaskInProgress
	t.StartedAt = &now
	t.IterationStarted = iteration
	return nil
}

func (p *Plan) finish(taskID string, status TaskStatus, result any, errMsg string, iteration int) error {
	p.mu.Lock()
	defer p.snapshot()
	defer p.mu.Unlock()

	t, ok := p.tasks[taskID]
	if !ok {
		return &ErrInvalidTransition{TaskID: taskID, Reason: "unknown task"}
	}
	now := p.now()
	t.Status = status
	t.CompletedAt = &now
	t.Result = result
	t.Error = errMsg
	t.IterationCompleted = iteration
	return nil
}

func (p *Plan) CompleteTask(taskID string, result any, iteration int) error {
	return p.finish(taskID, TaskCompleted, result, "", iteration)
}

func (p *Plan) FailTask(taskID, reason string, iteration int) error {
	return p.finish(taskID, TaskFailed, nil, reason, iteration)
}

func (p *Plan) SkipTask(taskID, reason string, iteration int) error {
	return p.finish(taskID, TaskSkipped, nil, reason, iteration)
}

// GetNextTask returns the highest-priority pending task whose dependencies
// are satisfied, or nil if none qualify.
func (p *Plan) GetNextTask() *PlanTask {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *PlanTask
	for _, t := range p.tasks {
		if t.Status != TaskPending {
			continue
		}
		if !p.dependenciesSatisfied(t.DependsOn) {
			continue
		}
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// IsComplete reports whether every task has reached a terminal status.
func (p *Plan) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if t.Status == TaskPending || t.Status == TaskInProgress || t.Status == TaskBlocked {
			return false
		}
	}
	return true
}

// Progress reports task counts and completion percentage.
type Progress struct {
	Total, Pending, InProgress, Completed, Failed, Skipped, Blocked int
	PercentComplete                                                 float64
}

func (p *Plan) GetProgress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pr Progress
	for _, t := range p.tasks {
		pr.Total++
		switch t.Status {
		case TaskPending:
			pr.Pending++
		case TaskInProgress:
			pr.InProgress++
		case TaskCompleted:
			pr.Completed++
		case TaskFailed:
			pr.Failed++
		case TaskSkipped:
			pr.Skipped++
		case TaskBlocked:
			pr.Blocked++
		}
	}
	if pr.Total > 0 {
		pr.PercentComplete = 100 * float64(pr.Completed+pr.Skipped) / float64(pr.Total)
	}
	return pr
}

// Pause marks the plan paused, storing an opaque resumption context.
func (p *Plan) Pause(ctx any) {
	p.mu.Lock()
	p.paused = true
	p.pauseCtx = ctx
	p.mu.Unlock()
	p.snapshot()
}

// Resume clears the paused flag and returns the stored context.
func (p *Plan) Resume() any {
	p.mu.Lock()
	p.paused = false
	ctx := p.pauseCtx
	p.pauseCtx = nil
	p.mu.Unlock()
	p.snapshot()
	return ctx
}

// derivedPhaseStatus computes a phase's status from its tasks.
func (p *Plan) derivedPhaseStatus(phaseID string) PhaseStatus {
	var tasks []*PlanTask
	for _, t := range p.tasks {
		if t.PhaseID == phaseID {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return PhasePending
	}
	allCompleted, allTerminal, anyFailed, anyInProgress := true, true, false, false
	for _, t := range tasks {
		if t.Status != TaskCompleted {
			allCompleted = false
		}
		if t.Status == TaskPending || t.Status == TaskInProgress || t.Status == TaskBlocked {
			allTerminal = false
		}
		if t.Status == TaskFailed {
			anyFailed = true
		}
		if t.Status == TaskInProgress {
			anyInProgress = true
		}
	}
	switch {
	case allCompleted:
		return PhaseCompleted
	case allTerminal && anyFailed:
		return PhasePartiallyCompleted
	case anyInProgress:
		return PhaseInProgress
	default:
		return PhasePending
	}
}

// Snapshot is the atomically-persisted view of the whole plan.
type Snapshot struct {
	Phases []PhaseSnapshot
	Tasks  []PlanTask
	Paused bool
}

// PhaseSnapshot pairs a phase with its derived status.
type PhaseSnapshot struct {
	PlanPhase
	Status PhaseStatus
}

func (p *Plan) snapshot() {
	if p.persist == nil {
		return
	}
	p.mu.Lock()
	var phases []PhaseSnapshot
	for _, ph := range p.phases {
		phases = append(phases, PhaseSnapshot{PlanPhase: ph, Status: p.derivedPhaseStatus(ph.PhaseID)})
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i].Order < phases[j].Order })
	var tasks []PlanTask
	for _, t := range p.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	snap := Snapshot{Phases: phases, Tasks: tasks, Paused: p.paused}
	p.mu.Unlock()

	_ = p.persist.SaveRunPlan(snap)
}
