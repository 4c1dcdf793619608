package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_gateway_active_sessions",
		Help: "Number of active realtime sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_gateway_sessions_total",
		Help: "Total number of sessions processed",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_gateway_session_duration_seconds",
		Help:    "Duration of realtime sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_turns_total",
		Help: "Total detected turns by outcome",
	}, []string{"outcome"}) // "completed", "abandoned", "no_speech"

	interactionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_gateway_interaction_queue_depth",
		Help: "Interactions enqueued but not yet completed",
	})

	bargeInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_gateway_barge_ins_total",
		Help: "Total responses interrupted by user speech",
	})

	// Recognition metrics
	recognitionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_recognition_requests_total",
		Help: "Total number of speech recognition turns",
	}, []string{"status"})

	recognitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_gateway_recognition_latency_seconds",
		Help:    "Speech recognition turn latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 40.0},
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_synthesis_requests_total",
		Help: "Total number of synthesis requests",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_gateway_synthesis_latency_seconds",
		Help:    "Synthesis processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Completion metrics
	completionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_completion_requests_total",
		Help: "Total number of completion requests",
	}, []string{"status"})

	completionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_gateway_completion_latency_seconds",
		Help:    "Completion processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Response metrics
	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_responses_total",
		Help: "Total responses by terminal status",
	}, []string{"status"}) // "completed", "cancelled", "failed"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "realtime_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single session
type Metrics struct {
	sessionID            string
	startTime            time.Time
	recognitionStartTime time.Time
	synthesisStartTime   time.Time
	completionStartTime  time.Time
	mu                   sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	duration := time.Since(m.startTime).Seconds()
	sessionDuration.Observe(duration)
}

// RecordTurn records the outcome of one detected turn
func (m *Metrics) RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordBargeIn records a response interrupted by user speech
func (m *Metrics) RecordBargeIn() {
	bargeInsTotal.Inc()
}

// RecordRecognitionStart records the start of a recognition turn
func (m *Metrics) RecordRecognitionStart() {
	m.mu.Lock()
	m.recognitionStartTime = time.Now()
	m.mu.Unlock()
}

// RecordRecognitionEnd records the end of a recognition turn
func (m *Metrics) RecordRecognitionEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recognitionStartTime.IsZero() {
		latency := time.Since(m.recognitionStartTime).Seconds()
		recognitionLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	recognitionRequests.WithLabelValues(status).Inc()
}

// RecordSynthesisStart records the start of synthesis processing
func (m *Metrics) RecordSynthesisStart() {
	m.mu.Lock()
	m.synthesisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSynthesisEnd records the end of synthesis processing
func (m *Metrics) RecordSynthesisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.synthesisStartTime.IsZero() {
		latency := time.Since(m.synthesisStartTime).Seconds()
		synthesisLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
}

// RecordCompletionStart records the start of completion processing
func (m *Metrics) RecordCompletionStart() {
	m.mu.Lock()
	m.completionStartTime = time.Now()
	m.mu.Unlock()
}

// RecordCompletionEnd records the end of completion processing
func (m *Metrics) RecordCompletionEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.completionStartTime.IsZero() {
		latency := time.Since(m.completionStartTime).Seconds()
		completionLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	completionRequests.WithLabelValues(status).Inc()
}

// RecordResponse records a response reaching a terminal status
func (m *Metrics) RecordResponse(status string) {
	responsesTotal.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// SetQueueDepth updates the interaction queue depth gauge
func SetQueueDepth(depth int) {
	interactionQueueDepth.Set(float64(depth))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
