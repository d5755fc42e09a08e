// Package metrics holds the Prometheus collectors for camera sessions,
// frame captures, identifications and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/plant"
)

const namespace = "plantid"

// Frame purposes.
const (
	FrameCapture = "capture"
	FramePreview = "preview"
)

// OutcomeOK labels a successful identification.
const OutcomeOK = "ok"

// Metrics owns a private registry. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	cameraEvents     *prometheus.CounterVec
	cameraErrors     *prometheus.CounterVec
	cameraActive     prometheus.Gauge
	framesCaptured   *prometheus.CounterVec
	identifications  *prometheus.CounterVec
	identifyDuration prometheus.Histogram
	identifyInFlight prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cameraEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "camera",
				Name:      "events_total",
				Help:      "Camera session lifecycle events.",
			},
			[]string{"type", "facing"},
		),
		cameraErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "camera",
				Name:      "errors_total",
				Help:      "Camera operation failures by operation and cause.",
			},
			[]string{"op", "cause"},
		),
		cameraActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "camera",
				Name:      "stream_active",
				Help:      "1 while a capture device is held.",
			},
		),
		framesCaptured: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "camera",
				Name:      "frames_total",
				Help:      "Frames read from the active device.",
			},
			[]string{"purpose"},
		),
		identifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "identify",
				Name:      "requests_total",
				Help:      "Identification attempts by outcome.",
			},
			[]string{"outcome"},
		),
		identifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "identify",
				Name:      "duration_seconds",
				Help:      "Model round trip latency.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		identifyInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "identify",
				Name:      "in_flight",
				Help:      "Identifications awaiting a model reply.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cameraEvents,
		m.cameraErrors,
		m.cameraActive,
		m.framesCaptured,
		m.identifications,
		m.identifyDuration,
		m.identifyInFlight,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCameraEvent records a manager lifecycle event.
func (m *Metrics) ObserveCameraEvent(ev camera.Event) {
	if m == nil {
		return
	}
	m.cameraEvents.WithLabelValues(string(ev.Type), string(ev.Facing)).Inc()
	switch ev.Type {
	case camera.EventStarted:
		m.cameraActive.Set(1)
	case camera.EventEnded:
		m.cameraActive.Set(0)
	}
}

// ObserveCameraError records a failed camera operation.
func (m *Metrics) ObserveCameraError(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.cameraErrors.WithLabelValues(op, camera.Cause(err)).Inc()
}

// ObserveFrame counts a frame read for purpose.
func (m *Metrics) ObserveFrame(purpose string) {
	if m == nil {
		return
	}
	m.framesCaptured.WithLabelValues(purpose).Inc()
}

// IdentifyStarted marks an identification in flight and returns the
// function that records its outcome.
func (m *Metrics) IdentifyStarted() func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.identifyInFlight.Inc()
	return func(err error) {
		m.identifyInFlight.Dec()
		m.identifyDuration.Observe(time.Since(start).Seconds())
		m.identifications.WithLabelValues(Outcome(err)).Inc()
	}
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Outcome returns the identification outcome label for err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if r := plant.ReasonOf(err); r != "" {
		return string(r)
	}
	return "UNKNOWN"
}
