// Package audit records every analysis the service performs. Events are
// emitted off the request path into a bounded queue and fanned out to
// configured sinks (stdout, JSONL file, webhook), so a slow sink never
// delays a caller.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/clearline-sec/cjisaudit/internal/redact"
	"github.com/clearline-sec/cjisaudit/internal/report"
)

// Outcome classifies what happened to an analysis request.
type Outcome string

const (
	OutcomeReport          Outcome = "report"
	OutcomeRejectedEmpty   Outcome = "rejected_empty_document"
	OutcomeRejectedExtract Outcome = "rejected_extraction_failed"
	OutcomeError           Outcome = "internal_error"
)

// Event is one audit-trail entry for one analysis request.
type Event struct {
	Timestamp      time.Time       `json:"timestamp"`
	RequestID      string          `json:"request_id"`
	ReportID       string          `json:"report_id,omitempty"`
	Source         string          `json:"source"`
	CatalogVersion string          `json:"catalog_version,omitempty"`
	SectionFilter  string          `json:"section_filter,omitempty"`
	DocumentBytes  int             `json:"document_bytes"`
	Outcome        Outcome         `json:"outcome"`
	OverallRatio   float64         `json:"overall_ratio,omitempty"`
	Summary        *report.Summary `json:"summary,omitempty"`
	DurationMs     float64         `json:"duration_ms"`
	Preview        string          `json:"preview,omitempty"`
}

// Sink consumes audit events (stdout, file, webhook).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// StdoutSink logs events as single JSON lines via the standard logger.
type StdoutSink struct{}

func NewStdout() *StdoutSink { return &StdoutSink{} }

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	log.Printf("audit: %s", data)
	return nil
}

func (s *StdoutSink) Close(context.Context) error { return nil }

// Preview builds the document snippet stored on an event, honoring the
// configured document logging level: "metadata" stores nothing,
// "redacted" a PII-scrubbed snippet, "full" a raw snippet.
func Preview(level, documentText string) string {
	const maxPreview = 500
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "full":
		return truncate(documentText, maxPreview)
	case "redacted":
		return truncate(redact.String(documentText), maxPreview)
	default: // "metadata"
		return ""
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
