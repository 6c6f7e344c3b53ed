package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal Report.
func RenderJSON(r *Report) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a Markdown summary of the report, suitable for
// terminal output or pasting into an audit ticket.
func RenderMarkdown(r *Report) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder

	sb.WriteString("## CJIS Compliance Report\n\n")
	fmt.Fprintf(&sb, "**Catalog version:** %s  \n", r.CatalogVersion)
	fmt.Fprintf(&sb, "**Overall compliance:** %.0f%%  \n", r.OverallRatio*100)
	fmt.Fprintf(&sb, "**Compliant:** %d | **Non-compliant:** %d | **Missing:** %d (of %d)\n\n",
		r.Summary.Compliant, r.Summary.NonCompliant, r.Summary.Missing, r.Summary.Total)

	for _, sec := range r.Sections {
		fmt.Fprintf(&sb, "### %s %s — %.0f%%\n\n", sec.SectionID, sec.Title, sec.Ratio*100)
		sb.WriteString("| ID | Requirement | Verdict | Matched |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, rr := range sec.Requirements {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				rr.RequirementID, mdEscape(rr.Title), rr.Verdict,
				mdEscape(strings.Join(rr.MatchedKeywords, ", ")))
		}
		sb.WriteString("\n")
	}

	if len(r.CriticalIssues) > 0 {
		sb.WriteString("### Critical Issues\n\n")
		for _, rr := range r.CriticalIssues {
			fmt.Fprintf(&sb, "- **%s %s** (%s)\n", rr.RequirementID, mdEscape(rr.Title), rr.Verdict)
			for _, issue := range rr.Issues {
				fmt.Fprintf(&sb, "  - %s\n", mdEscape(issue))
			}
			for _, sug := range rr.Suggestions {
				fmt.Fprintf(&sb, "  - Suggestion: %s\n", mdEscape(sug))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
