package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telatku"

// Metrics holds the app collectors, all registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	recordsCreated   prometheus.Counter
	recordsDeleted   prometheus.Counter
	studentsImported prometheus.Counter
	importRejections *prometheus.CounterVec
	liveConnections  prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds by method and route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		recordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tardiness_records_created_total",
			Help:      "Tardiness records created.",
		}),
		recordsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tardiness_records_deleted_total",
			Help:      "Tardiness records deleted.",
		}),
		studentsImported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_imported_total",
			Help:      "Students inserted by spreadsheet imports.",
		}),
		importRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "student_import_rejections_total",
			Help:      "Rejected spreadsheet imports by reason.",
		}, []string{"reason"}),
		liveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Open today-feed WebSocket connections.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordCreated() { m.recordsCreated.Inc() }
func (m *Metrics) RecordDeleted() { m.recordsDeleted.Inc() }

func (m *Metrics) StudentsImported(n int) { m.studentsImported.Add(float64(n)) }

// ImportRejected counts a rejected import; reason is "empty", "structure", "reference" or "nothing".
func (m *Metrics) ImportRejected(reason string) { m.importRejections.WithLabelValues(reason).Inc() }

func (m *Metrics) LiveConnected()    { m.liveConnections.Inc() }
func (m *Metrics) LiveDisconnected() { m.liveConnections.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware observes every request under its route pattern. Errors are handed to the echo
// error handler here so the observed status is the one sent.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			m.requests.WithLabelValues(method, route, strconv.Itoa(ctx.Response().Status)).Inc()
			m.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
