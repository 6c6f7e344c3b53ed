// Package document wraps the extracted plain text of an agency policy
// document and its normalized form. A Document is built once per analysis
// request and read-only afterwards.
package document

import (
	"errors"
	"strings"
)

// ErrEmptyDocument is returned when the extracted text contains nothing
// to evaluate. Callers must reject such uploads before evaluation.
var ErrEmptyDocument = errors.New("document contains no evaluable text")

// Document is a policy document prepared for keyword matching.
type Document struct {
	Raw        string
	Normalized string

	sentences []string
}

// New normalizes the raw text and splits it into sentences for evidence
// extraction. Normalization lowercases, folds punctuation to spaces
// ("access-control" matches "access control") and collapses whitespace.
func New(raw string) (*Document, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return nil, ErrEmptyDocument
	}
	return &Document{
		Raw:        raw,
		Normalized: normalized,
		sentences:  splitSentences(raw),
	}, nil
}

// Contains reports whether the normalized keyword appears in the
// normalized document text. Keywords must already be normalized
// (the catalog normalizes them at load).
func (d *Document) Contains(keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(d.Normalized, keyword)
}

// Sentences returns the raw sentences of the document in order.
func (d *Document) Sentences() []string {
	return d.sentences
}

// Normalize lowercases text, replaces every non-alphanumeric rune with a
// space, and collapses runs of whitespace into single spaces.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func splitSentences(raw string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s != "" {
			out = append(out, s)
		}
	}
	for _, r := range raw {
		switch r {
		case '.', '!', '?', '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
