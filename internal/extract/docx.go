package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// fromDOCX pulls paragraph text out of word/document.xml. A .docx file is
// a ZIP container; the main body lives in one well-known member, so the
// stdlib zip and xml packages cover what we need without a full OOXML
// dependency.
func fromDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &FormatError{Format: "docx", Err: err}
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", &FormatError{Format: "docx", Err: errors.New("missing word/document.xml")}
	}

	rc, err := body.Open()
	if err != nil {
		return "", &FormatError{Format: "docx", Err: err}
	}
	defer rc.Close()

	text, err := docxBodyText(rc)
	if err != nil {
		return "", &FormatError{Format: "docx", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// docxBodyText streams the document XML, collecting the character data of
// <w:t> runs and inserting newlines at paragraph ends.
func docxBodyText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
