package tracer

import (
	"strings"
	"sync"
)

// ReportBuilder accumulates named sections for the in-progress
// penetration_test_report.md, flushing atomically after every append so a
// partial report survives a crash even before SetFinalResult is called.
// This is the supplemented reporting subsystem, grounded on
// original_source/strix/tools/reporting/reporting_actions.py.
type ReportBuilder struct {
	mu       sync.Mutex
	tracer   *Tracer
	sections []reportSection
}

type reportSection struct {
	Heading string
	Body    string
}

// NewReportBuilder returns a builder that flushes through t.
func NewReportBuilder(t *Tracer) *ReportBuilder {
	return &ReportBuilder{tracer: t}
}

// AddSection appends a named section and flushes the full report to disk.
func (r *ReportBuilder) AddSection(heading, body string) error {
	r.mu.Lock()
	r.sections = append(r.sections, reportSection{Heading: heading, Body: body})
	rendered := r.render()
	r.mu.Unlock()
	return writeAtomic(r.tracer.layout.ReportPath(), []byte(rendered))
}

func (r *ReportBuilder) render() string {
	var b strings.Builder
	b.WriteString("# Penetration Test Report\n\n")
	for _, s := range r.sections {
		b.WriteString("## ")
		b.WriteString(s.Heading)
		b.WriteString("\n\n")
		b.WriteString(s.Body)
		b.WriteString("\n\n")
	}
	return b.String()
}

// Render returns the current report text without writing it.
func (r *ReportBuilder) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.render()
}
