// Package metrics expone contadores Prometheus para runs del asistente y OTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doc_chat"

// Metrics implementa service.RunObserver y service.OTPObserver.
type Metrics struct {
	registry    *prometheus.Registry
	runOutcomes *prometheus.CounterVec
	runDuration prometheus.Histogram
	otpEvents   *prometheus.CounterVec
}

// New registra los collectors en reg. Con reg nil crea un registry propio con
// los collectors de proceso y de Go.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			prometheus.NewGoCollector(),
		)
	}

	m := &Metrics{
		registry: reg,
		runOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "runs_total",
			Help:      "Assistant runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "run_duration_seconds",
			Help:      "Time from run creation to a terminal status or deadline.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		otpEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "events_total",
			Help:      "OTP lifecycle events.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.runOutcomes, m.runDuration, m.otpEvents)
	return m
}

func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.runOutcomes.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) OTPEvent(event string) {
	m.otpEvents.WithLabelValues(event).Inc()
}

// Handler sirve el registry en formato de exposicion de Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
