package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearline-sec/cjisaudit/internal/report"
)

// metrics holds the Prometheus instruments for the analyze API. Each
// server owns its registry so tests can build servers independently.
type metrics struct {
	registry *prometheus.Registry

	analyzeRequests *prometheus.CounterVec
	analyzeDuration prometheus.Histogram
	verdicts        *prometheus.CounterVec
	extractFailures *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		analyzeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjisaudit_analyze_requests_total",
			Help: "Analyze requests by HTTP status code.",
		}, []string{"status"}),
		analyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cjisaudit_analyze_duration_seconds",
			Help:    "End-to-end analyze request duration.",
			Buckets: prometheus.DefBuckets,
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjisaudit_requirement_verdicts_total",
			Help: "Requirement verdicts produced across all reports.",
		}, []string{"verdict"}),
		extractFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjisaudit_extract_failures_total",
			Help: "Text extraction failures by upload format.",
		}, []string{"format"}),
	}

	m.registry.MustRegister(m.analyzeRequests, m.analyzeDuration, m.verdicts, m.extractFailures)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (s *Server) observeAnalyze(status int, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.analyzeRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	s.metrics.analyzeDuration.Observe(d.Seconds())
}

func (s *Server) observeVerdicts(rep *report.Report) {
	if s.metrics == nil || rep == nil {
		return
	}
	for _, sec := range rep.Sections {
		for _, rr := range sec.Requirements {
			s.metrics.verdicts.WithLabelValues(string(rr.Verdict)).Inc()
		}
	}
}

func (s *Server) observeExtractFailure(format string) {
	if s.metrics == nil {
		return
	}
	s.metrics.extractFailures.WithLabelValues(format).Inc()
}
