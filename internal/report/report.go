// Package report defines the compliance report value object returned to
// callers. Reports are assembled once by the evaluator and never mutated
// afterwards.
package report

import "time"

// Verdict is the three-way outcome for a single requirement.
type Verdict string

const (
	VerdictCompliant    Verdict = "compliant"
	VerdictNonCompliant Verdict = "non_compliant"
	VerdictMissing      Verdict = "missing"
)

// RequirementResult records how one catalog requirement scored against
// the document.
type RequirementResult struct {
	RequirementID   string   `json:"requirement_id"`
	Title           string   `json:"title"`
	Text            string   `json:"text,omitempty"`
	Required        bool     `json:"required"`
	Verdict         Verdict  `json:"verdict"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Evidence        string   `json:"evidence,omitempty"`
	Issues          []string `json:"issues,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

// SectionResult aggregates the requirement results of one CJIS section.
// Ratio counts only compliant requirements; non-compliant and missing
// both count against it.
type SectionResult struct {
	SectionID    string              `json:"section_id"`
	Key          string              `json:"key"`
	Title        string              `json:"title"`
	Ratio        float64             `json:"compliance_ratio"`
	Requirements []RequirementResult `json:"requirements"`
}

// Summary holds the checklist counts shown at the top of a report.
type Summary struct {
	Total        int `json:"total_requirements"`
	Compliant    int `json:"compliant"`
	NonCompliant int `json:"non_compliant"`
	Missing      int `json:"missing"`
}

// Report is the full result of evaluating one policy document against
// one catalog. ID is assigned by the caller (server or CLI), not the
// evaluator, so evaluation output stays deterministic.
type Report struct {
	ID             string          `json:"id,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
	CatalogVersion string          `json:"catalog_version"`
	OverallRatio   float64         `json:"overall_ratio"`
	Summary        Summary         `json:"summary"`
	Sections       []SectionResult `json:"sections"`

	// CriticalIssues lists required requirements that did not score
	// compliant, for the auditor's follow-up checklist.
	CriticalIssues []RequirementResult `json:"critical_issues,omitempty"`
}
