// Package evaluate scores a policy document against a rule catalog.
// Evaluation is a pure function of (document, catalog): no I/O, no shared
// mutable state, so concurrent requests can evaluate in parallel against
// the same catalog without locking.
package evaluate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clearline-sec/cjisaudit/internal/catalog"
	"github.com/clearline-sec/cjisaudit/internal/document"
	"github.com/clearline-sec/cjisaudit/internal/report"
)

const maxEvidenceSentences = 2

// Evaluator produces compliance reports. The clock is injectable so that
// evaluating the same inputs twice yields byte-identical reports in tests.
type Evaluator struct {
	clock func() time.Time
}

// New returns an evaluator stamping reports with the wall clock.
func New() *Evaluator {
	return &Evaluator{clock: time.Now}
}

// NewWithClock returns an evaluator using the given clock.
func NewWithClock(clock func() time.Time) *Evaluator {
	if clock == nil {
		clock = time.Now
	}
	return &Evaluator{clock: clock}
}

// Evaluate scores the document against every section of the catalog.
func (e *Evaluator) Evaluate(doc *document.Document, cat *catalog.Catalog) (*report.Report, error) {
	if cat == nil {
		return nil, errors.New("evaluate: nil catalog")
	}
	return e.evaluateSections(doc, cat, cat.Sections)
}

// EvaluateSection scores the document against a single catalog section,
// identified by its key (e.g. "access_control").
func (e *Evaluator) EvaluateSection(doc *document.Document, cat *catalog.Catalog, key string) (*report.Report, error) {
	if cat == nil {
		return nil, errors.New("evaluate: nil catalog")
	}
	sec, ok := cat.Section(key)
	if !ok {
		return nil, fmt.Errorf("evaluate: unknown catalog section %q", key)
	}
	return e.evaluateSections(doc, cat, []catalog.Section{sec})
}

func (e *Evaluator) evaluateSections(doc *document.Document, cat *catalog.Catalog, sections []catalog.Section) (*report.Report, error) {
	if doc == nil || doc.Normalized == "" {
		return nil, document.ErrEmptyDocument
	}

	rep := &report.Report{
		GeneratedAt:    e.clock().UTC(),
		CatalogVersion: cat.Version,
	}

	var weightedSum float64
	var totalRequirements int

	for _, sec := range sections {
		secResult := report.SectionResult{
			SectionID: sec.ID,
			Key:       sec.Key,
			Title:     sec.Title,
		}

		compliant := 0
		for _, req := range sec.Requirements {
			rr := evaluateRequirement(doc, req)
			secResult.Requirements = append(secResult.Requirements, rr)

			switch rr.Verdict {
			case report.VerdictCompliant:
				compliant++
				rep.Summary.Compliant++
			case report.VerdictNonCompliant:
				rep.Summary.NonCompliant++
			case report.VerdictMissing:
				rep.Summary.Missing++
			}
			rep.Summary.Total++

			if rr.Required && rr.Verdict != report.VerdictCompliant {
				rep.CriticalIssues = append(rep.CriticalIssues, rr)
			}
		}

		n := len(sec.Requirements)
		secResult.Ratio = float64(compliant) / float64(n)
		weightedSum += secResult.Ratio * float64(n)
		totalRequirements += n

		rep.Sections = append(rep.Sections, secResult)
	}

	// Weighted mean across sections by requirement count.
	if totalRequirements > 0 {
		rep.OverallRatio = weightedSum / float64(totalRequirements)
	}

	return rep, nil
}

// evaluateRequirement applies the verdict policy to a single requirement:
//
//   - compliant: every keyword group reached its hit threshold
//   - non_compliant: some keyword was found (including partial indicators)
//     but at least one group fell short
//   - missing: nothing in the document touches the topic
func evaluateRequirement(doc *document.Document, req catalog.Requirement) report.RequirementResult {
	rr := report.RequirementResult{
		RequirementID: req.ID,
		Title:         req.Title,
		Text:          req.Text,
		Required:      req.Required,
	}

	seen := make(map[string]struct{})
	addMatch := func(kw string) {
		if _, dup := seen[kw]; dup {
			return
		}
		seen[kw] = struct{}{}
		rr.MatchedKeywords = append(rr.MatchedKeywords, kw)
	}

	satisfied := 0
	for _, group := range req.Groups {
		hits := 0
		for _, kw := range group.Any {
			if doc.Contains(kw) {
				hits++
				addMatch(kw)
			}
		}
		if hits >= group.MinHits {
			satisfied++
		}
	}

	for _, indicator := range req.PartialIndicators {
		if doc.Contains(indicator) {
			addMatch(indicator)
		}
	}

	switch {
	case satisfied == len(req.Groups):
		rr.Verdict = report.VerdictCompliant
	case len(rr.MatchedKeywords) > 0:
		rr.Verdict = report.VerdictNonCompliant
		rr.Issues = append(rr.Issues, "Partially addresses requirement but missing key elements")
		rr.Suggestions = append(rr.Suggestions, "Ensure the policy explicitly addresses: "+req.Text)
	default:
		rr.Verdict = report.VerdictMissing
		rr.Issues = append(rr.Issues, "No evidence found for this requirement")
		rr.Suggestions = append(rr.Suggestions, "Add policy coverage for: "+req.Title)
	}

	rr.Evidence = evidence(doc, rr.MatchedKeywords)
	return rr
}

// evidence returns the first sentences of the document containing any of
// the matched keywords, as a short quotable snippet.
func evidence(doc *document.Document, matched []string) string {
	if len(matched) == 0 {
		return ""
	}
	var picked []string
	for _, sentence := range doc.Sentences() {
		norm := document.Normalize(sentence)
		for _, kw := range matched {
			if strings.Contains(norm, kw) {
				picked = append(picked, sentence)
				break
			}
		}
		if len(picked) == maxEvidenceSentences {
			break
		}
	}
	return strings.Join(picked, ". ")
}
