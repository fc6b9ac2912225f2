package tracer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/strixrun/agentrun/pkg/agent"
)

// RunLayout names the artifacts under one run directory, using a single
// fixed layout: `<runs_root>/<run_name>/`.
type RunLayout struct {
	RunsRoot string
	RunName  string
}

func (l RunLayout) Dir() string                { return filepath.Join(l.RunsRoot, l.RunName) }
func (l RunLayout) EventsPath() string         { return filepath.Join(l.Dir(), "events.jsonl") }
func (l RunLayout) MetadataPath() string       { return filepath.Join(l.Dir(), "metadata.json") }
func (l RunLayout) RunStatePath() string       { return filepath.Join(l.Dir(), "run_state.json") }
func (l RunLayout) RunPlanPath() string        { return filepath.Join(l.Dir(), "run_plan.json") }
func (l RunLayout) ReportPath() string         { return filepath.Join(l.Dir(), "penetration_test_report.md") }
func (l RunLayout) FindingsDir() string        { return filepath.Join(l.Dir(), "vulnerabilities") }
func (l RunLayout) FindingsIndexPath() string  { return filepath.Join(l.Dir(), "vulnerabilities.csv") }
func (l RunLayout) NotesPath() string          { return filepath.Join(l.Dir(), "notes.json") }
func (l RunLayout) ProgressPath() string       { return filepath.Join(l.Dir(), "progress.json") }
func (l RunLayout) LLMResponsesDir() string    { return filepath.Join(l.Dir(), "llm_responses") }

// Tracer owns the ordered event log and finding store exclusively. All
// fields are internally synchronized; safe for concurrent callers.
type Tracer struct {
	mu        sync.Mutex
	layout    RunLayout
	log       *slog.Logger
	nextID    int64
	events    []Event
	callbacks []Callback
	findings  *findingStore
}

// New constructs a Tracer rooted at layout, ready to emit events.
func New(layout RunLayout, log *slog.Logger) *Tracer {
	if log == nil {
		log = slog.Default()
	}
	return &Tracer{
		layout:   layout,
		log:      log,
		findings: newFindingStore(layout),
	}
}

// Subscribe registers cb to be invoked synchronously on every Emit.
func (t *Tracer) Subscribe(cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Emit assigns a monotonic event_id, stamps UTC time, appends to the
// in-memory log, appends a JSON line to events.jsonl, and synchronously
// invokes every registered callback. The on-disk log is written before
// Emit returns, so it is always a strict prefix of the in-memory log
//.
func (t *Tracer) Emit(e Event) Event {
	t.mu.Lock()
	t.nextID++
	e.EventID = t.nextID
	e.Timestamp = time.Now().UTC()
	t.events = append(t.events, e)

	line, err := json.Marshal(e)
	if err == nil {
		if err := appendLine(t.layout.EventsPath(), line); err != nil {
			t.log.Error("persist event failed", "err", err, "event_id", e.EventID)
		}
	}
	callbacks := append([]Callback(nil), t.callbacks...)
	t.mu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error("tracer callback panicked", "recover", r)
				}
			}()
			cb(e)
		}()
	}
	return e
}

// EventsSince returns events at index >= cursor and the new high-water mark.
func (t *Tracer) EventsSince(cursor int64) ([]Event, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Event
	for _, e := range t.events {
		if e.EventID >= cursor {
			out = append(out, e)
		}
	}
	return out, t.nextID + 1
}

// --- agent.EventSink implementation -------------------------------------

func (t *Tracer) AgentIteration(agentID string, iteration, maxIterations int) {
	pct := 0.0
	if maxIterations > 0 {
		pct = 100 * float64(iteration) / float64(maxIterations)
	}
	t.Emit(Event{
		EventType: EventAgentIteration,
		AgentID:   agentID,
		Data: map[string]any{
			"iteration":      iteration,
			"max_iterations": maxIterations,
			"progress_pct":   pct,
		},
	})
}

func (t *Tracer) AgentStateTransition(agentID string, from, to agent.Status) {
	t.Emit(Event{
		EventType: EventAgentStateTransition,
		AgentID:   agentID,
		Data: map[string]any{
			"from": fmt.Sprint(from),
			"to":   fmt.Sprint(to),
		},
	})
}

func (t *Tracer) ThinkerError(agentID, kind, msg string) {
	t.Emit(Event{
		EventType: EventThinkerError,
		AgentID:   agentID,
		Data: map[string]any{
			"kind":  kind,
			"error": msg,
		},
	})
}
