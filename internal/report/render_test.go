package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		GeneratedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CatalogVersion: "5.9",
		OverallRatio:   0.5,
		Summary:        Summary{Total: 2, Compliant: 1, Missing: 1},
		Sections: []SectionResult{
			{
				SectionID: "5.2",
				Key:       "access_control",
				Title:     "Access Control",
				Ratio:     0.5,
				Requirements: []RequirementResult{
					{
						RequirementID:   "5.2.1",
						Title:           "Least Privilege | Access",
						Required:        true,
						Verdict:         VerdictCompliant,
						MatchedKeywords: []string{"least privilege"},
					},
					{
						RequirementID: "5.2.3",
						Title:         "Unsuccessful Login Attempts",
						Required:      true,
						Verdict:       VerdictMissing,
						Issues:        []string{"No evidence found for this requirement"},
					},
				},
			},
		},
		CriticalIssues: []RequirementResult{
			{
				RequirementID: "5.2.3",
				Title:         "Unsuccessful Login Attempts",
				Required:      true,
				Verdict:       VerdictMissing,
				Issues:        []string{"No evidence found for this requirement"},
			},
		},
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	r := sampleReport()
	b, err := RenderJSON(r)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *r, back)
}

func TestRenderJSONNilReport(t *testing.T) {
	_, err := RenderJSON(nil)
	require.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleReport())

	assert.Contains(t, md, "## CJIS Compliance Report")
	assert.Contains(t, md, "**Overall compliance:** 50%")
	assert.Contains(t, md, "### 5.2 Access Control — 50%")
	assert.Contains(t, md, `Least Privilege \| Access`, "pipes escaped inside table cells")
	assert.Contains(t, md, "### Critical Issues")
	assert.Contains(t, md, "5.2.3")

	assert.Equal(t, "", RenderMarkdown(nil))
	assert.False(t, strings.Contains(md, "<nil>"))
}
