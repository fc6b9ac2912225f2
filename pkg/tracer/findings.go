package tracer

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Severity is one of the five levels a Finding may carry.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank orders severities for the findings index (critical highest).
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:      1,
	SeverityMedium:    2,
	SeverityLow:       3,
	SeverityInfo:      4,
}

// Finding is a persisted, severity-tagged result.
type Finding struct {
	ID        string    `json:"finding_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// findingStore owns the on-disk finding artifacts and CSV index. Finding
// ids are unique per run and monotonically increasing, zero-padded to 4
// digits, grounded on tracer.py's sequence-based id assignment.
type findingStore struct {
	mu     sync.Mutex
	layout RunLayout
	seq    int
	all    []Finding
}

func newFindingStore(layout RunLayout) *findingStore {
	return &findingStore{layout: layout}
}

// AddFinding assigns the next zero-padded id, writes the markdown artifact
// and rewrites the CSV index, both atomically, and never overwrites an
// existing id.
func (t *Tracer) AddFinding(title, body string, severity Severity) (Finding, error) {
	t.findings.mu.Lock()
	t.findings.seq++
	id := fmt.Sprintf("%04d", t.findings.seq)
	f := Finding{ID: id, Title: title, Body: body, Severity: severity, Timestamp: time.Now().UTC()}
	t.findings.all = append(t.findings.all, f)
	snapshot := append([]Finding(nil), t.findings.all...)
	t.findings.mu.Unlock()

	mdPath := t.layout.FindingsDir() + "/" + id + ".md"
	md := fmt.Sprintf("# %s\n\n**Severity:** %s\n**ID:** %s\n**Timestamp:** %s\n\n%s\n",
		title, strings.ToUpper(string(severity)), id, f.Timestamp.Format(time.RFC3339), body)
	if err := writeAtomic(mdPath, []byte(md)); err != nil {
		return f, fmt.Errorf("write finding artifact: %w", err)
	}

	if err := writeFindingsCSV(t.layout.FindingsIndexPath(), snapshot); err != nil {
		return f, fmt.Errorf("write findings index: %w", err)
	}

	t.Emit(Event{
		EventType: EventVulnerabilityFound,
		Data: map[string]any{
			"finding_id": id,
			"title":      title,
			"severity":   string(severity),
		},
	})
	return f, nil
}

// FindingCount returns the number of findings recorded so far, used by the
// runtime to pick the process exit code.
func (t *Tracer) FindingCount() int {
	t.findings.mu.Lock()
	defer t.findings.mu.Unlock()
	return len(t.findings.all)
}

// writeFindingsCSV rewrites the CSV index, sorted by severity rank then
// timestamp ascending, header `id,title,severity,timestamp,file`.
func writeFindingsCSV(path string, findings []Finding) error {
	sorted := append([]Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := severityRank[sorted[i].Severity], severityRank[sorted[j].Severity]
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "title", "severity", "timestamp", "file"}); err != nil {
		f.Close()
		return err
	}
	for _, fnd := range sorted {
		row := []string{
			fnd.ID,
			fnd.Title,
			strings.ToUpper(string(fnd.Severity)),
			fnd.Timestamp.Format(time.RFC3339),
			"vulnerabilities/" + fnd.ID + ".md",
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
