package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "pvlogger"

const (
	RESULT_OK       = "ok"
	RESULT_CHECKSUM = "checksum"
	RESULT_FORMAT   = "format"
	RESULT_TIMEOUT  = "timeout"
	RESULT_ERROR    = "error"
)

type Metrics struct {
	registry        *prometheus.Registry
	attempts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	cycleReadings   prometheus.Gauge
	cycleAbsent     prometheus.Gauge
	cycleDuration   prometheus.Histogram
	pollFailures    prometheus.Counter
	appendFailures  prometheus.Counter
	rollupFailures  prometheus.Counter
	lastCycle       prometheus.Gauge
}

var _ port.CycleObserver = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "device_attempts_total",
			Help:      "Total query attempts by inverter and result.",
		}, []string{"inverter", "result"}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "device_attempt_duration_seconds",
			Help:      "Histogram of single query/response exchange durations.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		cycleReadings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "cycle_readings",
			Help:      "Readings collected by the last cycle.",
		}),
		cycleAbsent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "cycle_absent_inverters",
			Help:      "Inverters without a reading in the last cycle.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "cycle_duration_seconds",
			Help:      "Histogram of acquisition cycle durations.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "poll_failures_total",
			Help:      "Total cycles that could not open the serial transport.",
		}),
		appendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "append_failures_total",
			Help:      "Total cycles whose readings could not be stored.",
		}),
		rollupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "rollup_failures_total",
			Help:      "Total cycles whose daily rollup could not be rebuilt.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Acquisition timestamp of the last completed cycle.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.attempts,
		m.attemptDuration,
		m.cycleReadings,
		m.cycleAbsent,
		m.cycleDuration,
		m.pollFailures,
		m.appendFailures,
		m.rollupFailures,
		m.lastCycle,
	)

	return m
}

// ClientInstrument hooks the metrics into an inverter client.
func (m *Metrics) ClientInstrument() *rs485_inverter.ClientInstrument {
	return &rs485_inverter.ClientInstrument{
		RecordAttempt: m.RecordAttempt,
	}
}

func (m *Metrics) RecordAttempt(addr uint8, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(fmt.Sprintf("%02d", addr), attemptResult(err)).Inc()
	m.attemptDuration.Observe(duration.Seconds())
}

func (m *Metrics) CycleCompleted(report domain.CycleReport) {
	if m == nil {
		return
	}
	m.cycleReadings.Set(float64(len(report.Readings)))
	m.cycleAbsent.Set(float64(len(report.Absent)))
	m.cycleDuration.Observe(report.Duration.Seconds())
	m.lastCycle.Set(float64(report.Timestamp))
	if report.PollErr != nil {
		m.pollFailures.Inc()
	}
	if report.AppendErr != nil {
		m.appendFailures.Inc()
	}
	if report.RollupErr != nil {
		m.rollupFailures.Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func attemptResult(err error) string {
	var csErr *rs485_inverter.ChecksumError
	var fmtErr *rs485_inverter.FormatError
	switch {
	case err == nil:
		return RESULT_OK
	case errors.As(err, &csErr):
		return RESULT_CHECKSUM
	case errors.As(err, &fmtErr):
		return RESULT_FORMAT
	case errors.Is(err, rs485_inverter.ErrTimeout):
		return RESULT_TIMEOUT
	default:
		return RESULT_ERROR
	}
}
