package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/clearline-sec/cjisaudit/internal/audit"
	"github.com/clearline-sec/cjisaudit/internal/auth"
	"github.com/clearline-sec/cjisaudit/internal/catalog"
	"github.com/clearline-sec/cjisaudit/internal/config"
	"github.com/clearline-sec/cjisaudit/internal/report"
)

func baseTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:                ":8080",
			MaxRequestBodyBytes: 1 << 20,
			MaxInFlightRequests: 4,
		},
		Logging: config.LoggingConfig{DocumentLevel: "metadata"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	authz, err := auth.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	emitter := audit.NewEmitter(audit.EmitterConfig{QueueSize: 16}, nil)
	t.Cleanup(func() { emitter.Close(nil) })
	return New(cfg, catalog.Default(), authz, emitter)
}

func postForm(t *testing.T, s *Server, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeReport(t *testing.T, rr *httptest.ResponseRecorder) *report.Report {
	t.Helper()
	var rep report.Report
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return &rep
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
	if body["catalog_version"] == "" {
		t.Error("catalog_version missing")
	}
}

func TestCatalogEndpoint(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var info catalogInfo
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(info.Sections) != 5 {
		t.Fatalf("sections = %d, want 5", len(info.Sections))
	}
	for _, sec := range info.Sections {
		if sec.Requirements == 0 {
			t.Errorf("section %s reports zero requirements", sec.Key)
		}
	}
}

func TestAnalyzeFormText(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postForm(t, s, url.Values{"policy_text": {
		"All users must use multi-factor authentication. Passwords expire every 90 days.",
	}})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	rep := decodeReport(t, rr)
	if rep.ID == "" {
		t.Error("report id missing")
	}
	if got, want := rep.Summary.Total, catalog.Default().RequirementCount(); got != want {
		t.Errorf("summary total = %d, want %d", got, want)
	}
	if len(rep.Sections) != 5 {
		t.Errorf("sections = %d, want 5", len(rep.Sections))
	}
}

func TestAnalyzeJSONWithSectionFilter(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	body, _ := json.Marshal(map[string]string{
		"policy_text": "Visitors are escorted at all times inside the secure facility.",
		"section":     "physical_protection",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	rep := decodeReport(t, rr)
	if len(rep.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(rep.Sections))
	}
	if rep.Sections[0].Key != "physical_protection" {
		t.Errorf("section key = %q", rep.Sections[0].Key)
	}
}

func TestAnalyzeUnknownSection(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postForm(t, s, url.Values{
		"policy_text": {"some policy text"},
		"section":     {"nope"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "unknown catalog section") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	rr := postForm(t, s, url.Values{"policy_text": {"   \n\t  "}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "no evaluable text") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestAnalyzeAuthRequired(t *testing.T) {
	cfg := baseTestConfig()
	cfg.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	values := url.Values{"policy_text": {"multi-factor authentication for all users"}}

	// No key.
	rr := postForm(t, s, values)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rr.Code)
	}

	// Wrong key.
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d, want 401", rr.Code)
	}

	// Correct key.
	req = httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status with key = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

func TestAnalyzeFileUpload(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "policy.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("Accounts are locked after five failed login attempts.")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	rep := decodeReport(t, rr)
	if rep.Summary.Total == 0 {
		t.Error("expected non-empty report")
	}
}

func TestAnalyzeCorruptPDFUpload(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "policy.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("this is not a pdf")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "extract") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAnalyzeBodyTooLarge(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Server.MaxRequestBodyBytes = 64
	s := newTestServer(t, cfg)

	rr := postForm(t, s, url.Values{"policy_text": {strings.Repeat("a", 1024)}})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413: %s", rr.Code, rr.Body.String())
	}
}

func TestAnalyzeInFlightLimit(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Server.MaxInFlightRequests = 1
	s := newTestServer(t, cfg)

	// Occupy the only slot.
	s.inflight <- struct{}{}

	rr := postForm(t, s, url.Values{"policy_text": {"some policy"}})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}

	<-s.inflight
	rr = postForm(t, s, url.Values{"policy_text": {"some policy"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status after release = %d, want 200", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Metrics.Enabled = true
	s := newTestServer(t, cfg)

	if rr := postForm(t, s, url.Values{"policy_text": {"multi-factor authentication"}}); rr.Code != http.StatusOK {
		t.Fatalf("analyze status = %d, want 200", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "cjisaudit_analyze_requests_total") {
		t.Error("missing analyze counter")
	}
	if !strings.Contains(body, "cjisaudit_requirement_verdicts_total") {
		t.Error("missing verdict counter")
	}
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, baseTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("metrics status = %d, want 404", rr.Code)
	}
}
