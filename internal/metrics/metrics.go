package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers Prometheus metrics for the service.
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpLatency   prometheus.Histogram
	mediaUploads  *prometheus.CounterVec
	otpIssued     prometheus.Counter
	otpVerified   *prometheus.CounterVec
	identitySyncs *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on the registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taleweave_http_requests_total",
			Help: "HTTP responses by status code.",
		}, []string{"status"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taleweave_http_request_duration_seconds",
			Help:    "HTTP request handling latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		mediaUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taleweave_media_uploads_total",
			Help: "Media uploads by folder kind and outcome.",
		}, []string{"folder", "outcome"}),
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taleweave_otp_issued_total",
			Help: "One-time codes generated.",
		}),
		otpVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taleweave_otp_verify_total",
			Help: "One-time code verification attempts by result.",
		}, []string{"result"}),
		identitySyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taleweave_identity_sync_total",
			Help: "Identity profile syncs by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.mediaUploads,
		c.otpIssued,
		c.otpVerified,
		c.identitySyncs,
	)

	return c
}

// RecordHTTPRequest records a completed request.
func (c *Collector) RecordHTTPRequest(status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordMediaUpload records an upload attempt for the given folder kind.
func (c *Collector) RecordMediaUpload(folder string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.mediaUploads.WithLabelValues(folder, outcome).Inc()
}

// RecordOTPIssued counts a generated one-time code.
func (c *Collector) RecordOTPIssued() {
	c.otpIssued.Inc()
}

// RecordOTPVerify counts a verification attempt by result.
func (c *Collector) RecordOTPVerify(result string) {
	c.otpVerified.WithLabelValues(result).Inc()
}

// RecordIdentitySync counts a profile sync by outcome.
func (c *Collector) RecordIdentitySync(outcome string) {
	c.identitySyncs.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
