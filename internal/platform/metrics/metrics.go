package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payslip"

// Collector owns a private registry so several app instances can coexist in tests.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry      *prometheus.Registry
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	calculations  *prometheus.CounterVec
	apiKeyUsage   *prometheus.CounterVec
	payslipsSaved prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "route"},
		),
		calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payroll",
				Name:      "calculations_total",
				Help:      "Deduction calculations by EPF rate and SOCSO scheme.",
			},
			[]string{"epf_rate", "socso_type"},
		),
		apiKeyUsage: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "key_checks_total",
				Help:      "API key checks by outcome.",
			},
			[]string{"outcome"},
		),
		payslipsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payroll",
				Name:      "payslips_saved_total",
				Help:      "Payslip records written to storage.",
			},
		),
	}
	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.calculations,
		c.apiKeyUsage,
		c.payslipsSaved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveCalculation(epfRate, socsoType string) {
	if c == nil {
		return
	}
	c.calculations.WithLabelValues(epfRate, socsoType).Inc()
}

func (c *Collector) ObserveAPIKey(accepted bool) {
	if c == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	c.apiKeyUsage.WithLabelValues(outcome).Inc()
}

func (c *Collector) PayslipSaved() {
	if c == nil {
		return
	}
	c.payslipsSaved.Inc()
}

// Instrument records request count and latency labelled by the chi route pattern.
func (c *Collector) Instrument(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
