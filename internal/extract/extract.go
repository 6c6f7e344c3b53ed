// Package extract converts uploaded policy files (PDF, DOCX, TXT) into
// plain text for the evaluator. It sits outside the core boundary: the
// evaluator only ever sees the extracted string.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrNoText is returned when a file was read successfully but yielded no
// extractable text (e.g. a scanned, image-only PDF).
var ErrNoText = errors.New("document contained no extractable text")

// FormatError reports that a file could not be read or decoded. It is
// distinct from ErrNoText so callers can tell "unreadable file" apart
// from "readable but empty".
type FormatError struct {
	Format string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("could not read %s file: %v", e.Format, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// FromUpload extracts plain text from an uploaded file, dispatching on
// the filename extension. Files without a recognized extension are
// attempted as UTF-8 text.
func FromUpload(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return fromPDF(data)
	case ".docx":
		return fromDOCX(data)
	case ".txt":
		return fromText(data, "txt")
	default:
		return fromText(data, "unsupported")
	}
}

func fromText(data []byte, format string) (string, error) {
	if !utf8.Valid(data) {
		return "", &FormatError{Format: format, Err: errors.New("not valid UTF-8 text")}
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
