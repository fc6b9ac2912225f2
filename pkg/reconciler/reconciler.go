// Package reconciler detects and, where safe, repairs anomalies in an
// agent's state, grounded on
// original_source/strix/agents/reconciliation.py.
package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/strixrun/agentrun/pkg/agent"
)

// IssueKind enumerates the five anomaly detections the checker runs.
type IssueKind string

const (
	IssueIterationOverflow    IssueKind = "iteration_overflow"
	IssueRateLimitStorm       IssueKind = "rate_limit_storm"
	IssueLoopDetected         IssueKind = "loop_detected"
	IssueStaleWait            IssueKind = "stale_wait"
	IssueRecoveryInconsistent IssueKind = "recovery_inconsistent"
)

// Severity is advisory metadata on an Issue; it does not gate auto-fix.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one typed anomaly detected against an agent snapshot.
type Issue struct {
	Kind        IssueKind
	Severity    Severity
	Message     string
	AutoFixable bool
}

// rateLimitMarkers are substrings that identify a rate-limit error entry.
var rateLimitMarkers = []string{"rate limit", "rate-limit", "429", "too many requests"}

// staleWaitThreshold and loop-detection window/threshold use the
// conservative variant's values where the detection thresholds could
// plausibly differ.
const (
	staleWaitThreshold  = 300 * time.Second
	loopWindow          = 6
	loopRepeatThreshold = 3
	loopPrefixLen       = 100
)

// Reconciler implements agent.Reconciler.
type Reconciler struct {
	now func() time.Time
}

// New constructs a Reconciler using the real clock.
func New() *Reconciler {
	return &Reconciler{now: time.Now}
}

// Check inspects snap and returns every detected issue.
func (r *Reconciler) Check(snap agent.Snapshot) []Issue {
	var issues []Issue

	if snap.Iteration > snap.MaxIterations {
		issues = append(issues, Issue{
			Kind: IssueIterationOverflow, Severity: SeverityError,
			Message: fmt.Sprintf("iteration %d exceeds max_iterations %d", snap.Iteration, snap.MaxIterations),
			AutoFixable: true,
		})
	}

	if rateLimitStorm(snap.Errors) {
		issues = append(issues, Issue{
			Kind: IssueRateLimitStorm, Severity: SeverityWarning,
			Message: "3 or more of the recent errors carry rate-limit markers",
		})
	}

	if loopDetected(snap.History) {
		issues = append(issues, Issue{
			Kind: IssueLoopDetected, Severity: SeverityWarning,
			Message: "3 or more assistant messages among the last 6 messages share an identical 100-character prefix",
		})
	}

	if snap.WaitingStartTime != nil && snap.Status != agent.StatusWaitingForRecovery && r.now().Sub(*snap.WaitingStartTime) > staleWaitThreshold {
		issues = append(issues, Issue{
			Kind: IssueStaleWait, Severity: SeverityWarning,
			Message: "agent has been waiting longer than 300s without a recovery in flight",
		})
	}

	if snap.Status == agent.StatusWaitingForRecovery && snap.WaitingStartTime == nil {
		issues = append(issues, Issue{
			Kind: IssueRecoveryInconsistent, Severity: SeverityError,
			Message: "status is waiting_for_recovery but waiting_start_time is unset",
			AutoFixable: true,
		})
	}

	return issues
}

func rateLimitStorm(errs []agent.ErrorLogEntry) bool {
	n := len(errs)
	if n == 0 {
		return false
	}
	start := n - 6
	if start < 0 {
		start = 0
	}
	count := 0
	for _, e := range errs[start:] {
		lower := strings.ToLower(e.Msg)
		for _, marker := range rateLimitMarkers {
			if strings.Contains(lower, marker) {
				count++
				break
			}
		}
	}
	return count >= 3
}

func loopDetected(history []agent.Message) bool {
	var assistant []string
	for i := len(history) - 1; i >= 0 && i >= len(history)-loopWindow; i-- {
		if history[i].Role == agent.RoleAssistant {
			assistant = append(assistant, prefixOf(history[i].Content, loopPrefixLen))
		}
	}
	if len(assistant) < loopRepeatThreshold {
		return false
	}
	counts := map[string]int{}
	for _, p := range assistant {
		counts[p]++
		if counts[p] >= loopRepeatThreshold {
			return true
		}
	}
	return false
}

func prefixOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Reconcile runs Check against a and applies auto-fixes in place, then
// injects an advisory checkpoint message for anything not auto-fixable.
// This is the method wired as agent.Reconciler.
func (r *Reconciler) Reconcile(a *agent.Agent) {
	snap := a.Snapshot()
	issues := r.Check(snap)
	if len(issues) == 0 {
		return
	}

	var advisory []Issue
	for _, issue := range issues {
		if issue.AutoFixable {
			r.autoFix(a, issue)
		} else {
			advisory = append(advisory, issue)
		}
	}
	if len(advisory) > 0 {
		r.injectCheckpoint(a, advisory)
	}
}

// autoFix applies the patch for one auto-fixable issue. Each applied patch
// is a direct field mutation and emits no new thinker call.
func (r *Reconciler) autoFix(a *agent.Agent, issue Issue) {
	switch issue.Kind {
	case IssueIterationOverflow:
		a.ClampIteration()
	case IssueRecoveryInconsistent:
		a.RestoreWaitingStartTime()
	}
}

// injectCheckpoint appends a user-role "reconciliation" message listing the
// detected issues (kind and message of each) so the next iteration's
// thinker call sees it.
func (r *Reconciler) injectCheckpoint(a *agent.Agent, issues []Issue) {
	var b strings.Builder
	b.WriteString("[reconciliation] the following issues were detected in your state:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s: %s\n", issue.Kind, issue.Message)
	}
	a.AppendMessage(agent.Message{Role: agent.RoleUser, Content: b.String()})
}
