// Package metrics exposes monitor pass statistics in the Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/connwatch/internal/monitor"
)

// Collector accumulates pass results. It implements monitor.Hook and
// prometheus.Collector.
type Collector struct {
	mu            sync.Mutex
	cycles        uint64
	failures      uint64
	observations  uint64
	suspicious    uint64
	alerts        uint64
	persistErrors uint64
	lastCycle     float64
	lastDuration  float64
	logTotal      float64
	logSuspicious float64

	cyclesDesc        *prometheus.Desc
	failuresDesc      *prometheus.Desc
	observationsDesc  *prometheus.Desc
	suspiciousDesc    *prometheus.Desc
	alertsDesc        *prometheus.Desc
	persistErrorsDesc *prometheus.Desc
	lastCycleDesc     *prometheus.Desc
	lastDurationDesc  *prometheus.Desc
	logTotalDesc      *prometheus.Desc
	logSuspiciousDesc *prometheus.Desc
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		cyclesDesc:        prometheus.NewDesc("connwatch_cycles_total", "Sampling passes run", nil, nil),
		failuresDesc:      prometheus.NewDesc("connwatch_cycle_failures_total", "Sampling passes aborted by an error", nil, nil),
		observationsDesc:  prometheus.NewDesc("connwatch_observations_total", "Connections observed in the recorded states", nil, nil),
		suspiciousDesc:    prometheus.NewDesc("connwatch_suspicious_observations_total", "Observations classified as suspicious", nil, nil),
		alertsDesc:        prometheus.NewDesc("connwatch_alerts_total", "Alert rows written", nil, nil),
		persistErrorsDesc: prometheus.NewDesc("connwatch_persist_errors_total", "Rows that could not be written to the log", nil, nil),
		lastCycleDesc:     prometheus.NewDesc("connwatch_last_cycle_timestamp_seconds", "Unix time of the last completed pass", nil, nil),
		lastDurationDesc:  prometheus.NewDesc("connwatch_last_cycle_duration_seconds", "Duration of the last completed pass", nil, nil),
		logTotalDesc:      prometheus.NewDesc("connwatch_log_observations", "Observation rows in the persistent log", nil, nil),
		logSuspiciousDesc: prometheus.NewDesc("connwatch_log_suspicious_observations", "Suspicious observation rows in the persistent log", nil, nil),
	}
}

// CycleCompleted records r.
func (c *Collector) CycleCompleted(r *monitor.CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycles++
	c.lastCycle = float64(r.Timestamp.UnixNano()) / 1e9
	c.lastDuration = r.Duration.Seconds()
	if r.Failed() {
		c.failures++
		return
	}
	c.observations += uint64(r.Observed)
	c.suspicious += uint64(r.Suspicious)
	c.persistErrors += uint64(r.PersistErrors)
	if r.AlertWritten {
		c.alerts++
	}
	if r.Summary != nil {
		c.logTotal = float64(r.Summary.TotalCount)
		c.logSuspicious = float64(r.Summary.SuspiciousCount)
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cyclesDesc
	ch <- c.failuresDesc
	ch <- c.observationsDesc
	ch <- c.suspiciousDesc
	ch <- c.alertsDesc
	ch <- c.persistErrorsDesc
	ch <- c.lastCycleDesc
	ch <- c.lastDurationDesc
	ch <- c.logTotalDesc
	ch <- c.logSuspiciousDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	metrics := []prometheus.Metric{
		prometheus.MustNewConstMetric(c.cyclesDesc, prometheus.CounterValue, float64(c.cycles)),
		prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(c.failures)),
		prometheus.MustNewConstMetric(c.observationsDesc, prometheus.CounterValue, float64(c.observations)),
		prometheus.MustNewConstMetric(c.suspiciousDesc, prometheus.CounterValue, float64(c.suspicious)),
		prometheus.MustNewConstMetric(c.alertsDesc, prometheus.CounterValue, float64(c.alerts)),
		prometheus.MustNewConstMetric(c.persistErrorsDesc, prometheus.CounterValue, float64(c.persistErrors)),
		prometheus.MustNewConstMetric(c.lastCycleDesc, prometheus.GaugeValue, c.lastCycle),
		prometheus.MustNewConstMetric(c.lastDurationDesc, prometheus.GaugeValue, c.lastDuration),
		prometheus.MustNewConstMetric(c.logTotalDesc, prometheus.GaugeValue, c.logTotal),
		prometheus.MustNewConstMetric(c.logSuspiciousDesc, prometheus.GaugeValue, c.logSuspicious),
	}
	c.mu.Unlock()

	for _, m := range metrics {
		ch <- m
	}
}

// NewRegistry returns a registry holding c and the Go runtime collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
