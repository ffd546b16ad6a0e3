package goAccount

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// Sessions.
	MetricSessionCreated MetricID = iota
	MetricSessionValidateSuccess
	MetricSessionValidateFailure
	MetricSessionDestroyed
	MetricSessionsInvalidated

	// Accounts and logins.
	MetricAccountCreationSuccess
	MetricAccountCreationDuplicate
	MetricAccountCreationRateLimited
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited

	// Email verification.
	MetricEmailVerificationRequest
	MetricEmailVerificationResend
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure

	// Password reset.
	MetricPasswordResetRequest
	MetricPasswordResetResend
	MetricPasswordResetVerifySuccess
	MetricPasswordResetVerifyFailure
	MetricPasswordResetExhausted
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure

	MetricNotificationFailure

	// MetricValidateLatency is the only histogram; it has no counter.
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the upper bounds of the validate-latency buckets. The
// last bucket catches everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	latencyBucketCount = len(latencyBounds) + 1
	cacheLineSize      = 64
)

// counter sits on its own cache line so hot counters do not contend.
type counter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional validate-latency histogram.
// The zero value and a nil pointer are valid and record nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counter
	latency       [latencyBucketCount]uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histograms holds
// per-bucket (not cumulative) counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics for cfg. Latency is recorded only when both
// flags are set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id. Unknown ids and the histogram id are ignored.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricValidateLatency || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d. Only MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricValidateLatency || !m.LatencyEnabled() {
		return
	}
	atomic.AddUint64(&m.latency[bucketIndex(d)], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histogram when latency is on.
// Disabled metrics give empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < MetricValidateLatency; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
