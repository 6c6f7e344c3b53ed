// Package catalog holds the CJIS rule catalog: the versioned, read-only
// definition of policy sections and the keyword rules used to audit an
// agency policy document against them. The catalog is loaded once at
// startup and never mutated afterwards, so it is safe for concurrent
// readers.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the full CJIS knowledge base in canonical section order.
type Catalog struct {
	Version  string
	Sections []Section
}

// Section is one major CJIS policy area with its requirements in
// declaration order.
type Section struct {
	ID           string
	Key          string
	Title        string
	Requirements []Requirement
}

// Requirement is a single checkable compliance rule. Groups express
// AND-of-ORs semantics: the requirement is satisfied only when every
// group reaches its hit threshold.
type Requirement struct {
	ID        string
	SectionID string
	Title     string
	Text      string
	Required  bool

	Groups []KeywordGroup

	// PartialIndicators are weaker topic markers. A hit here with no
	// group hits demotes the verdict from missing to non-compliant:
	// the policy mentions the topic without satisfying the rule.
	PartialIndicators []string
}

// KeywordGroup is an OR-set of keywords/phrases. The group counts as
// satisfied when at least MinHits of its keywords appear in the document.
type KeywordGroup struct {
	Any     []string
	MinHits int
}

// LoadError reports a malformed or incomplete rule catalog. It is fatal
// at startup: an invalid catalog must never reach the evaluator.
type LoadError struct {
	Path   string
	Reason string
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "catalog: " + e.Reason
	}
	return fmt.Sprintf("catalog %s: %s", e.Path, e.Reason)
}

// yaml-facing structures; the exported types above are built from these
// so defaults and keyword normalization happen in exactly one place.

type catalogFile struct {
	Version  string        `yaml:"version"`
	Sections []sectionNode `yaml:"sections"`
}

type sectionNode struct {
	ID           string            `yaml:"id"`
	Key          string            `yaml:"key"`
	Title        string            `yaml:"title"`
	Requirements []requirementNode `yaml:"requirements"`
}

type requirementNode struct {
	ID                string      `yaml:"id"`
	Title             string      `yaml:"title"`
	Text              string      `yaml:"text"`
	Required          *bool       `yaml:"required"`
	Groups            []groupNode `yaml:"keyword_groups"`
	PartialIndicators []string    `yaml:"partial_indicators"`
}

type groupNode struct {
	Any     []string `yaml:"any"`
	MinHits int      `yaml:"min_hits"`
}

// Load reads and validates a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}
	cat, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
		}
		return nil, err
	}
	return cat, nil
}

// Parse builds and validates a catalog from raw YAML.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &LoadError{Reason: "invalid YAML: " + err.Error()}
	}

	if strings.TrimSpace(file.Version) == "" {
		return nil, &LoadError{Reason: "version must be set"}
	}
	if len(file.Sections) == 0 {
		return nil, &LoadError{Reason: "catalog defines no sections"}
	}

	cat := &Catalog{Version: strings.TrimSpace(file.Version)}
	seenSections := make(map[string]struct{}, len(file.Sections))
	seenRequirements := make(map[string]struct{})

	for _, sn := range file.Sections {
		sec, err := buildSection(sn, seenSections, seenRequirements)
		if err != nil {
			return nil, err
		}
		cat.Sections = append(cat.Sections, sec)
	}

	return cat, nil
}

func buildSection(sn sectionNode, seenSections, seenRequirements map[string]struct{}) (Section, error) {
	if strings.TrimSpace(sn.ID) == "" || strings.TrimSpace(sn.Key) == "" {
		return Section{}, &LoadError{Reason: fmt.Sprintf("section %q missing id or key", sn.Title)}
	}
	if strings.TrimSpace(sn.Title) == "" {
		return Section{}, &LoadError{Reason: fmt.Sprintf("section %s missing title", sn.ID)}
	}
	if _, dup := seenSections[sn.Key]; dup {
		return Section{}, &LoadError{Reason: fmt.Sprintf("duplicate section key %q", sn.Key)}
	}
	seenSections[sn.Key] = struct{}{}

	if len(sn.Requirements) == 0 {
		return Section{}, &LoadError{Reason: fmt.Sprintf("section %s (%s) has no requirements", sn.ID, sn.Key)}
	}

	sec := Section{
		ID:    strings.TrimSpace(sn.ID),
		Key:   strings.TrimSpace(sn.Key),
		Title: strings.TrimSpace(sn.Title),
	}

	for _, rn := range sn.Requirements {
		req, err := buildRequirement(sec.ID, rn, seenRequirements)
		if err != nil {
			return Section{}, err
		}
		sec.Requirements = append(sec.Requirements, req)
	}

	return sec, nil
}

func buildRequirement(sectionID string, rn requirementNode, seen map[string]struct{}) (Requirement, error) {
	if strings.TrimSpace(rn.ID) == "" {
		return Requirement{}, &LoadError{Reason: fmt.Sprintf("section %s contains a requirement with no id", sectionID)}
	}
	if _, dup := seen[rn.ID]; dup {
		return Requirement{}, &LoadError{Reason: fmt.Sprintf("duplicate requirement id %q", rn.ID)}
	}
	seen[rn.ID] = struct{}{}

	if len(rn.Groups) == 0 {
		return Requirement{}, &LoadError{Reason: fmt.Sprintf("requirement %s has an empty keyword set", rn.ID)}
	}

	req := Requirement{
		ID:        strings.TrimSpace(rn.ID),
		SectionID: sectionID,
		Title:     strings.TrimSpace(rn.Title),
		Text:      strings.TrimSpace(rn.Text),
		// Matches the audit posture of the source material: a rule is
		// critical unless the catalog says otherwise.
		Required: rn.Required == nil || *rn.Required,
	}

	for gi, gn := range rn.Groups {
		group, err := buildGroup(req.ID, gi, gn)
		if err != nil {
			return Requirement{}, err
		}
		req.Groups = append(req.Groups, group)
	}

	for _, p := range rn.PartialIndicators {
		norm := NormalizeKeyword(p)
		if norm == "" {
			continue
		}
		req.PartialIndicators = append(req.PartialIndicators, norm)
	}

	return req, nil
}

func buildGroup(reqID string, index int, gn groupNode) (KeywordGroup, error) {
	group := KeywordGroup{MinHits: gn.MinHits}
	if group.MinHits <= 0 {
		group.MinHits = 1
	}

	for _, kw := range gn.Any {
		norm := NormalizeKeyword(kw)
		if norm == "" {
			continue
		}
		group.Any = append(group.Any, norm)
	}

	if len(group.Any) == 0 {
		return KeywordGroup{}, &LoadError{Reason: fmt.Sprintf("requirement %s group %d has no keywords", reqID, index)}
	}
	if group.MinHits > len(group.Any) {
		return KeywordGroup{}, &LoadError{Reason: fmt.Sprintf("requirement %s group %d min_hits %d exceeds keyword count %d", reqID, index, group.MinHits, len(group.Any))}
	}

	return group, nil
}

// NormalizeKeyword lowercases a keyword and collapses punctuation and
// whitespace the same way document text is normalized, so "Need-to-Know"
// and "need to know" compare equal.
func NormalizeKeyword(kw string) string {
	var b strings.Builder
	b.Grow(len(kw))
	for _, r := range strings.ToLower(kw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Section returns the section with the given key.
func (c *Catalog) Section(key string) (Section, bool) {
	for _, s := range c.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// RequirementCount returns the total number of requirements across all sections.
func (c *Catalog) RequirementCount() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Requirements)
	}
	return n
}
