// Package metrics provides Prometheus instrumentation for the DocVerify API.
//
// The service registers its metrics at package init (promauto) and exposes
// them at GET /metrics via Handler().
//
// Standard metrics exposed automatically by prometheus/client_golang:
//   - go_goroutines, go_gc_duration_seconds, etc. (Go runtime)
//   - process_cpu_seconds_total, process_open_fds, etc. (process)
//
// DocVerify-specific metrics registered here:
//   docverify_http_requests_total             — counter: HTTP requests by method/path/status
//   docverify_http_request_duration_seconds   — histogram: HTTP latency by method/path
//   docverify_uploads_total                   — counter: document uploads by doc_type
//   docverify_verifications_total             — counter: finished verifications by verdict/source
//   docverify_pipeline_stage_duration_seconds — histogram: per-stage pipeline latency
//   docverify_model_calls_total               — counter: Gemini calls by outcome
//   docverify_credits_granted_total           — counter: credits granted by reason
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ── Counters ──────────────────────────────────────────────────────────────────

// HTTPRequests counts HTTP requests by method, path, and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docverify_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "path", "status"})

// Uploads counts accepted document uploads by declared document type.
var Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docverify_uploads_total",
	Help: "Accepted document uploads by doc_type.",
}, []string{"doc_type"})

// Verifications counts finished verifications by verdict and source.
// source is "full" (model answered) or "heuristic_only" (degraded mode).
var Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docverify_verifications_total",
	Help: "Finished verifications by verdict and source.",
}, []string{"verdict", "source"})

// ModelCalls counts Gemini calls by outcome: ok, rate_limited, timeout,
// parse_error, error.
var ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docverify_model_calls_total",
	Help: "Gemini model calls by outcome.",
}, []string{"outcome"})

// CreditsGranted counts verification credits granted by reason
// (purchase, refund, admin_grant).
var CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docverify_credits_granted_total",
	Help: "Verification credits granted by reason.",
}, []string{"reason"})

// AuthEvents counts auth events (login, register, failed, locked_out).
var AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docverify_auth_events_total",
	Help: "Auth events by type and result.",
}, []string{"event", "result"})

// ── Histograms ────────────────────────────────────────────────────────────────

// HTTPDuration tracks HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docverify_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
}, []string{"method", "path"})

// StageDuration tracks per-stage verification pipeline latency.
// stage is one of: inspect, ocr, heuristics, model, persist.
var StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docverify_pipeline_stage_duration_seconds",
	Help:    "Verification pipeline stage latency in seconds.",
	Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
}, []string{"stage"})

// ── Handler ───────────────────────────────────────────────────────────────────

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ── Middleware ────────────────────────────────────────────────────────────────

// Middleware wraps an HTTP handler to record request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		dur := time.Since(start).Seconds()
		path := sanitizePath(r.URL.Path)
		status := strconv.Itoa(rw.status)
		HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		HTTPDuration.WithLabelValues(r.Method, path).Observe(dur)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// sanitizePath replaces UUID path segments with ":id" to keep label
// cardinality bounded. /documents/550e8400-... → /documents/:id
func sanitizePath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if looksLikeUUID(s) {
			segs[i] = ":id"
		}
	}
	p := strings.Join(segs, "/")
	if len(p) > 64 {
		return p[:64] + "..."
	}
	return p
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}
