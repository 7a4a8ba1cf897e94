// Package metrics records install and run activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives install and run events.
type Recorder interface {
	// DownloadFinished records one artifact download attempt.
	DownloadFinished(artifact string, err error)
	// ChecksumMismatch records a digest that did not match its sidecar.
	ChecksumMismatch(artifact string)
	// RunFinished records a completed server run.
	RunFinished(success bool, d time.Duration)
	// ConsoleLine records one line of server output.
	ConsoleLine()
	// RoundTripper instruments HTTP requests made through next.
	RoundTripper(next http.RoundTripper) http.RoundTripper
}

type noop struct{}

func (noop) DownloadFinished(string, error)                        {}
func (noop) ChecksumMismatch(string)                               {}
func (noop) RunFinished(bool, time.Duration)                       {}
func (noop) ConsoleLine()                                          {}
func (noop) RoundTripper(next http.RoundTripper) http.RoundTripper { return next }

// Noop returns a Recorder that discards everything.
func Noop() Recorder {
	return noop{}
}

// OrNoop returns r, or the no-op recorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop()
	}
	return r
}

// Metrics is a Prometheus-backed Recorder.
type Metrics struct {
	downloads        *prometheus.CounterVec
	checksumMismatch *prometheus.CounterVec
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	consoleLines     prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers cubekeeper's collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	promFactory := promauto.With(reg)
	return &Metrics{
		downloads: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "cubekeeper_downloads_total",
			Help: "Artifact downloads labelled by artifact and outcome",
		}, []string{"artifact", "outcome"}),
		checksumMismatch: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "cubekeeper_checksum_mismatches_total",
			Help: "Downloaded artifacts whose SHA-1 did not match the sidecar",
		}, []string{"artifact"}),
		runs: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "cubekeeper_runs_total",
			Help: "Completed server runs labelled by result",
		}, []string{"result"}),
		runDuration: promFactory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cubekeeper_run_duration_seconds",
			Help:    "Time from spawn to end of output of server runs",
			Buckets: []float64{0.1, 1, 10, 60, 600, 3600, 6 * 3600, 24 * 3600},
		}),
		consoleLines: promFactory.NewCounter(prometheus.CounterOpts{
			Name: "cubekeeper_console_lines_total",
			Help: "Lines of server console output relayed",
		}),
		httpRequests: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "cubekeeper_http_requests_total",
			Help: "HTTP requests made to the download host labelled by status",
		}, []string{"status"}),
		httpDuration: promFactory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cubekeeper_http_request_duration_seconds",
			Help:    "Time to response headers of requests made to the download host",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"status"}),
	}
}

func (m *Metrics) DownloadFinished(artifact string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.downloads.WithLabelValues(artifact, outcome).Inc()
}

func (m *Metrics) ChecksumMismatch(artifact string) {
	m.checksumMismatch.WithLabelValues(artifact).Inc()
}

func (m *Metrics) RunFinished(success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) ConsoleLine() {
	m.consoleLines.Inc()
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func (m *Metrics) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		res, err := next.RoundTrip(req)
		duration := time.Since(start)

		// Transport errors have no status; "0" keeps the label set bounded.
		status := "0"
		if res != nil {
			status = strconv.Itoa(res.StatusCode)
		}
		m.httpRequests.WithLabelValues(status).Inc()
		m.httpDuration.WithLabelValues(status).Observe(duration.Seconds())

		return res, err
	})
}
