package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearline-sec/cjisaudit/internal/audit"
	"github.com/clearline-sec/cjisaudit/internal/document"
	"github.com/clearline-sec/cjisaudit/internal/extract"
	"github.com/clearline-sec/cjisaudit/internal/report"
)

type analyzeJSONRequest struct {
	PolicyText string `json:"policy_text"`
	Section    string `json:"section"`
}

// analyzeInput is the normalized request payload regardless of whether
// the caller sent a multipart upload, a form field or a JSON body.
type analyzeInput struct {
	text    string
	section string
	source  string // "upload:<filename>" | "text"
	bytes   int
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request")
		return
	}

	apiKey, _ := parseBearerToken(r.Header.Get("Authorization"))
	if !s.auth.Allow(apiKey) {
		writeAPIError(w, http.StatusUnauthorized, "invalid or missing API key", "authentication_error")
		return
	}

	start := time.Now()
	requestID := uuid.NewString()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestBodyBytes)

	in, status, msg, errType, outcome := s.readAnalyzeInput(r)
	if status != 0 {
		s.finishRejected(w, r, requestID, in, start, status, msg, errType, outcome)
		return
	}

	doc, err := document.New(in.text)
	if err != nil {
		if errors.Is(err, document.ErrEmptyDocument) {
			s.finishRejected(w, r, requestID, in, start, http.StatusBadRequest,
				"document contains no evaluable text", "invalid_document", audit.OutcomeRejectedEmpty)
			return
		}
		log.Printf("analyze: build document failed: %v", err)
		s.finishRejected(w, r, requestID, in, start, http.StatusInternalServerError,
			"internal error", "internal_error", audit.OutcomeError)
		return
	}

	var rep *report.Report
	if in.section != "" {
		rep, err = s.eval.EvaluateSection(doc, s.catalog, in.section)
	} else {
		rep, err = s.eval.Evaluate(doc, s.catalog)
	}
	if err != nil {
		if in.section != "" {
			s.finishRejected(w, r, requestID, in, start, http.StatusBadRequest,
				err.Error(), "invalid_request", audit.OutcomeError)
			return
		}
		log.Printf("analyze: evaluation failed: %v", err)
		s.finishRejected(w, r, requestID, in, start, http.StatusInternalServerError,
			"internal error", "internal_error", audit.OutcomeError)
		return
	}
	rep.ID = uuid.NewString()

	s.observeAnalyze(http.StatusOK, time.Since(start))
	s.observeVerdicts(rep)

	s.audit.Emit(r.Context(), &audit.Event{
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
		ReportID:       rep.ID,
		Source:         in.source,
		CatalogVersion: s.catalog.Version,
		SectionFilter:  in.section,
		DocumentBytes:  in.bytes,
		Outcome:        audit.OutcomeReport,
		OverallRatio:   rep.OverallRatio,
		Summary:        &rep.Summary,
		DurationMs:     float64(time.Since(start)) / float64(time.Millisecond),
		Preview:        audit.Preview(s.cfg.Logging.DocumentLevel, in.text),
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Printf("failed to write analyze response: %v", err)
	}
}

// readAnalyzeInput decodes the three accepted payload shapes. A zero
// status return means success; otherwise the caller writes the error.
func (s *Server) readAnalyzeInput(r *http.Request) (in analyzeInput, status int, msg, errType string, outcome audit.Outcome) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		return s.readMultipartInput(r)

	case mediaType == "application/json":
		var body analyzeJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if isBodyTooLarge(err) {
				return in, http.StatusRequestEntityTooLarge, bodyTooLargeMessage(s.cfg.Server.MaxRequestBodyBytes), "invalid_request", audit.OutcomeError
			}
			return in, http.StatusBadRequest, "invalid JSON body", "invalid_request", audit.OutcomeError
		}
		in.text = body.PolicyText
		in.section = strings.TrimSpace(body.Section)
		in.source = "text"
		in.bytes = len(body.PolicyText)
		return in, 0, "", "", ""

	default:
		if err := r.ParseForm(); err != nil {
			if isBodyTooLarge(err) {
				return in, http.StatusRequestEntityTooLarge, bodyTooLargeMessage(s.cfg.Server.MaxRequestBodyBytes), "invalid_request", audit.OutcomeError
			}
			return in, http.StatusBadRequest, "invalid form body", "invalid_request", audit.OutcomeError
		}
		in.text = r.FormValue("policy_text")
		in.section = strings.TrimSpace(r.FormValue("section"))
		in.source = "text"
		in.bytes = len(in.text)
		return in, 0, "", "", ""
	}
}

func (s *Server) readMultipartInput(r *http.Request) (in analyzeInput, status int, msg, errType string, outcome audit.Outcome) {
	if err := r.ParseMultipartForm(s.cfg.Server.MaxRequestBodyBytes); err != nil {
		if isBodyTooLarge(err) {
			return in, http.StatusRequestEntityTooLarge, bodyTooLargeMessage(s.cfg.Server.MaxRequestBodyBytes), "invalid_request", audit.OutcomeError
		}
		return in, http.StatusBadRequest, "invalid multipart body", "invalid_request", audit.OutcomeError
	}
	in.section = strings.TrimSpace(r.FormValue("section"))

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			// Multipart without a file still carries policy_text.
			in.text = r.FormValue("policy_text")
			in.source = "text"
			in.bytes = len(in.text)
			return in, 0, "", "", ""
		}
		return in, http.StatusBadRequest, "invalid file upload", "invalid_request", audit.OutcomeError
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return in, http.StatusBadRequest, "could not read uploaded file", "invalid_request", audit.OutcomeError
	}

	in.source = "upload:" + header.Filename
	in.bytes = len(data)

	text, err := extract.FromUpload(header.Filename, data)
	if err != nil {
		var fe *extract.FormatError
		if errors.As(err, &fe) {
			s.observeExtractFailure(fe.Format)
			return in, http.StatusBadRequest,
				"could not extract text from " + fe.Format + " file: " + fe.Err.Error(),
				"extraction_error", audit.OutcomeRejectedExtract
		}
		if errors.Is(err, extract.ErrNoText) {
			return in, http.StatusBadRequest, "document contains no evaluable text", "invalid_document", audit.OutcomeRejectedEmpty
		}
		return in, http.StatusBadRequest, err.Error(), "extraction_error", audit.OutcomeRejectedExtract
	}

	in.text = text
	return in, 0, "", "", ""
}

// finishRejected writes the error response, records metrics and emits
// the audit event for a request that never produced a report.
func (s *Server) finishRejected(w http.ResponseWriter, r *http.Request, requestID string, in analyzeInput, start time.Time, status int, msg, errType string, outcome audit.Outcome) {
	s.observeAnalyze(status, time.Since(start))

	source := in.source
	if source == "" {
		source = "unknown"
	}
	s.audit.Emit(r.Context(), &audit.Event{
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
		Source:         source,
		CatalogVersion: s.catalog.Version,
		SectionFilter:  in.section,
		DocumentBytes:  in.bytes,
		Outcome:        outcome,
		DurationMs:     float64(time.Since(start)) / float64(time.Millisecond),
		Preview:        audit.Preview(s.cfg.Logging.DocumentLevel, in.text),
	})

	writeAPIError(w, status, msg, errType)
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	// multipart.Reader wraps the limit error into a plain message.
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

func bodyTooLargeMessage(limit int64) string {
	return "request body exceeds limit of " + strconv.FormatInt(limit, 10) + " bytes"
}
