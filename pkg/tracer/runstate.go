package tracer

import (
	"os"
	"time"

	"github.com/strixrun/agentrun/pkg/plan"
)

// RunState is the {run_id, run_name, ...} resume-support artifact.
type RunState struct {
	RunID                    string         `json:"run_id"`
	RunName                  string         `json:"run_name"`
	StartTime                time.Time      `json:"start_time"`
	EndTime                  *time.Time     `json:"end_time,omitempty"`
	IsComplete               bool           `json:"is_complete"`
	IsContinuation           bool           `json:"is_continuation"`
	ContinuationContext      map[string]any `json:"continuation_context,omitempty"`
	ScanConfig               map[string]any `json:"scan_config,omitempty"`
	RunMetadata              map[string]any `json:"run_metadata,omitempty"`
	AgentsCount              int            `json:"agents_count"`
	ToolExecutionsCount      int            `json:"tool_executions_count"`
	VulnerabilityReportCount int            `json:"vulnerability_reports_count"`
	HasPlan                  bool           `json:"has_plan"`
	PlanProgress             map[string]any `json:"plan_progress,omitempty"`
}

// SaveRunState atomically snapshots run state for resume support.
// Persistence errors are logged but never block the caller or lose the
// in-memory state — the caller's next write attempt supersedes this one
//.
func (t *Tracer) SaveRunState(rs RunState) error {
	if err := writeJSONAtomic(t.layout.RunStatePath(), rs); err != nil {
		t.log.Error("save run state failed", "err", err)
		return err
	}
	return nil
}

// SaveMetadata atomically snapshots scan configuration/metadata.
func (t *Tracer) SaveMetadata(metadata map[string]any) error {
	if err := writeJSONAtomic(t.layout.MetadataPath(), metadata); err != nil {
		t.log.Error("save metadata failed", "err", err)
		return err
	}
	return nil
}

// SetFinalResult writes the final report artifact atomically, emits
// scan_end, and flushes the event stream.
func (t *Tracer) SetFinalResult(text string, success bool) error {
	if err := writeAtomic(t.layout.ReportPath(), []byte(text)); err != nil {
		t.log.Error("write final report failed", "err", err)
		return err
	}
	t.Emit(Event{
		EventType: EventScanEnd,
		Data: map[string]any{
			"success": success,
		},
	})
	return nil
}

// SaveRunPlan implements plan.Persister, writing run_plan.json atomically
// on every plan mutation.
func (t *Tracer) SaveRunPlan(snapshot plan.Snapshot) error {
	if err := writeJSONAtomic(t.layout.RunPlanPath(), snapshot); err != nil {
		t.log.Error("save run plan failed", "err", err)
		return err
	}
	return nil
}

// EnsureRunDir creates the run directory and its standard subdirectories.
func (t *Tracer) EnsureRunDir() error {
	for _, dir := range []string{t.layout.Dir(), t.layout.FindingsDir(), t.layout.LLMResponsesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
