package metrics

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/outcome"
)

// Recorder owns every heartbeat metric. All methods are safe for concurrent use and never panic:
// a failure to record is logged and dropped so that it cannot interrupt a write loop.
type Recorder struct {
	writeAttempts      *prometheus.CounterVec
	writeLatencyLast   *prometheus.GaugeVec
	writeLatency       *prometheus.HistogramVec
	writeSuccess       *prometheus.CounterVec
	writeFailure       *prometheus.CounterVec
	writeTimeout       *prometheus.CounterVec
	connectAttempts    *prometheus.CounterVec
	connectLatencyLast *prometheus.GaugeVec
	connectLatency     *prometheus.HistogramVec
	engineReady        *prometheus.GaugeVec
	enginesReady       prometheus.Gauge
	allMetrics         []prometheus.Collector

	readyMutex sync.Mutex
	ready      map[string]bool
}

func NewRecorder(prefix string) *Recorder {
	writeAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "write_attempts_total",
			Help: "Heartbeat write attempts by outcome",
		},
		[]string{targetLabel, statusLabel, isTimeoutLabel},
	)
	writeLatencyLast := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "write_latency_seconds_last",
			Help: "Latency of the most recent heartbeat write in seconds",
		},
		[]string{targetLabel, statusLabel},
	)
	writeLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "write_latency_seconds",
			Help:    "Latency of heartbeat writes in seconds",
			Buckets: LatencyBuckets,
		},
		[]string{targetLabel},
	)
	writeSuccess := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "write_success_total",
			Help: "Successful heartbeat writes",
		},
		[]string{targetLabel},
	)
	writeFailure := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "write_failure_total",
			Help: "Failed heartbeat writes, including timeouts",
		},
		[]string{targetLabel},
	)
	writeTimeout := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "write_timeout_total",
			Help: "Heartbeat writes that failed with a connection or timeout error",
		},
		[]string{targetLabel},
	)
	connectAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "connect_attempts_total",
			Help: "Database connection attempts by outcome",
		},
		[]string{targetLabel, statusLabel, isTimeoutLabel},
	)
	connectLatencyLast := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "connect_latency_seconds_last",
			Help: "Latency of the most recent connection attempt in seconds",
		},
		[]string{targetLabel, statusLabel},
	)
	connectLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "connect_latency_seconds",
			Help:    "Latency of connection attempts in seconds",
			Buckets: LatencyBuckets,
		},
		[]string{targetLabel},
	)
	engineReady := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "engine_ready",
			Help: "1 if the target currently has a live connection, 0 otherwise",
		},
		[]string{targetLabel},
	)
	enginesReady := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "engines_ready",
			Help: "Number of targets that currently have a live connection",
		},
	)
	return &Recorder{
		writeAttempts:      writeAttempts,
		writeLatencyLast:   writeLatencyLast,
		writeLatency:       writeLatency,
		writeSuccess:       writeSuccess,
		writeFailure:       writeFailure,
		writeTimeout:       writeTimeout,
		connectAttempts:    connectAttempts,
		connectLatencyLast: connectLatencyLast,
		connectLatency:     connectLatency,
		engineReady:        engineReady,
		enginesReady:       enginesReady,
		allMetrics: []prometheus.Collector{
			writeAttempts,
			writeLatencyLast,
			writeLatency,
			writeSuccess,
			writeFailure,
			writeTimeout,
			connectAttempts,
			connectLatencyLast,
			connectLatency,
			engineReady,
			enginesReady,
		},
		ready: map[string]bool{},
	}
}

// Register adds the recorder to registerer and creates zero-valued series for every target, so that
// a target with no activity yet is distinguishable from one that is not configured.
func (r *Recorder) Register(registerer prometheus.Registerer, targets []string) error {
	if err := registerer.Register(r); err != nil {
		return errors.WithStack(err)
	}
	r.Initialise(targets)
	return nil
}

func (r *Recorder) Initialise(targets []string) {
	defer r.recoverRecordingError("initialise")
	for _, target := range targets {
		for _, vec := range []*prometheus.CounterVec{r.writeAttempts, r.connectAttempts} {
			vec.WithLabelValues(target, statusSuccess, "false")
			vec.WithLabelValues(target, statusFailure, "false")
			vec.WithLabelValues(target, statusFailure, "true")
		}
		for _, vec := range []*prometheus.CounterVec{r.writeSuccess, r.writeFailure, r.writeTimeout} {
			vec.WithLabelValues(target)
		}
		r.readyMutex.Lock()
		if _, known := r.ready[target]; !known {
			r.ready[target] = false
			r.engineReady.WithLabelValues(target).Set(0)
		}
		r.readyMutex.Unlock()
	}
	r.readyMutex.Lock()
	defer r.readyMutex.Unlock()
	r.enginesReady.Set(float64(r.countReadyLocked()))
}

func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range r.allMetrics {
		metric.Describe(ch)
	}
}

func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range r.allMetrics {
		metric.Collect(ch)
	}
}

// RecordWrite records one completed write attempt. Exactly one status series and one latency
// observation are updated per call.
func (r *Recorder) RecordWrite(o outcome.Outcome) {
	defer r.recoverRecordingError("write")
	seconds := o.Latency.Seconds()
	r.writeAttempts.WithLabelValues(o.Target, o.Kind.Status(), strconv.FormatBool(o.Kind.IsTimeout())).Inc()
	r.writeLatencyLast.WithLabelValues(o.Target, o.Kind.Status()).Set(seconds)
	r.writeLatency.WithLabelValues(o.Target).Observe(seconds)
	if o.Kind.IsFailure() {
		r.writeFailure.WithLabelValues(o.Target).Inc()
		if o.Kind.IsTimeout() {
			r.writeTimeout.WithLabelValues(o.Target).Inc()
		}
	} else {
		r.writeSuccess.WithLabelValues(o.Target).Inc()
	}
}

// RecordConnect records one connection attempt, successful or not.
func (r *Recorder) RecordConnect(o outcome.Outcome) {
	defer r.recoverRecordingError("connect")
	seconds := o.Latency.Seconds()
	r.connectAttempts.WithLabelValues(o.Target, o.Kind.Status(), strconv.FormatBool(o.Kind.IsTimeout())).Inc()
	r.connectLatencyLast.WithLabelValues(o.Target, o.Kind.Status()).Set(seconds)
	r.connectLatency.WithLabelValues(o.Target).Observe(seconds)
}

func (r *Recorder) SetReady(target string, ready bool) {
	defer r.recoverRecordingError("readiness")
	value := 0.0
	if ready {
		value = 1
	}

	r.readyMutex.Lock()
	defer r.readyMutex.Unlock()
	r.engineReady.WithLabelValues(target).Set(value)
	r.ready[target] = ready
	r.enginesReady.Set(float64(r.countReadyLocked()))
}

func (r *Recorder) countReadyLocked() int {
	count := 0
	for _, ready := range r.ready {
		if ready {
			count++
		}
	}
	return count
}

func (r *Recorder) recoverRecordingError(kind string) {
	if recovered := recover(); recovered != nil {
		log.WithField("metric", kind).Errorf("Failed to record metric: %v", recovered)
	}
}
