// Package metrics exposes the bombardier harness's own Prometheus metrics
// (spec.md §4.10): test/stage outcomes, rate limiter state, awaiter
// timeouts, and worker-pool occupancy. Grounded on
// internal/metrics/saga_metrics.go's register*-with-registerer and
// AlreadyRegisteredError-tolerant registration helpers.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the harness-wide Prometheus collectors.
type Metrics struct {
	testsTotal     *prometheus.CounterVec
	testDuration   *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	rateLimiterCur *prometheus.GaugeVec
	awaiterTimeout *prometheus.CounterVec
	activeFlows    prometheus.Gauge
	workerPoolBusy *prometheus.GaugeVec
}

// New creates harness metrics registered against the default registerer.
func New() *Metrics {
	return newWithRegisterer(prometheus.DefaultRegisterer)
}

func newWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		testsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bombardier_tests_total",
			Help: "Total number of scenario runs, by service and outcome",
		}, []string{"service", "outcome"}),
		testDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bombardier_test_duration_seconds",
			Help:    "Duration of a full scenario run in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "outcome"}),
		stageDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bombardier_stage_duration_seconds",
			Help:    "Duration of an individual pipeline stage in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"service", "stage", "outcome"}),
		rateLimiterCur: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "bombardier_rate_limiter_current_rate",
			Help: "Current ramped rate of a service's rate limiter, in tests per second",
		}, []string{"service"}),
		awaiterTimeout: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bombardier_awaiter_timeouts_total",
			Help: "Total number of awaiter conditions that never became true before their deadline, by stage",
		}, []string{"stage"}),
		activeFlows: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bombardier_active_flows",
			Help: "Number of testing flows currently running across all services",
		}),
		workerPoolBusy: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "bombardier_worker_pool_active",
			Help: "Number of worker goroutines currently executing a scenario run, by service",
		}, []string{"service"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTestCompleted records the terminal outcome and wall-clock duration
// of one full scenario run.
func (m *Metrics) RecordTestCompleted(service, outcome string, duration time.Duration) {
	m.testsTotal.WithLabelValues(service, outcome).Inc()
	m.testDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

// RecordStageDuration implements stage.MetricsRecorder: it is called by
// MetricRecordableStage after every stage run, decorated or not.
func (m *Metrics) RecordStageDuration(service, stage, outcome string, duration time.Duration) {
	m.stageDuration.WithLabelValues(service, stage, outcome).Observe(duration.Seconds())
}

// RecordRateLimiterRate publishes a rate limiter's current ramped rate.
func (m *Metrics) RecordRateLimiterRate(service string, rate float64) {
	m.rateLimiterCur.WithLabelValues(service).Set(rate)
}

// RecordAwaiterTimeout increments the timeout counter for the stage whose
// awaiter condition never became true.
func (m *Metrics) RecordAwaiterTimeout(stage string) {
	m.awaiterTimeout.WithLabelValues(stage).Inc()
}

// FlowStarted/FlowFinished track the number of testing flows running.
func (m *Metrics) FlowStarted() {
	m.activeFlows.Inc()
}

func (m *Metrics) FlowFinished() {
	m.activeFlows.Dec()
}

// SetWorkerPoolActive publishes the number of busy workers for a service's
// pool.
func (m *Metrics) SetWorkerPoolActive(service string, active int) {
	m.workerPoolBusy.WithLabelValues(service).Set(float64(active))
}
