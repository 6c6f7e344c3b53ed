package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

func fromPDF(data []byte) (text string, err error) {
	// The pdf library panics on some malformed inputs; convert those to
	// a FormatError so one bad upload cannot take the service down.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &FormatError{Format: "pdf", Err: fmt.Errorf("parse failure: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &FormatError{Format: "pdf", Err: err}
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &FormatError{Format: "pdf", Err: err}
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", &FormatError{Format: "pdf", Err: err}
	}

	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return "", ErrNoText
	}
	return out, nil
}
