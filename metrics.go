package authclient

import (
	"sync/atomic"
	"time"
)

// MetricID names one client counter or histogram.
type MetricID uint16

const (
	// MetricRequestSuccess counts logical requests that ended with a 2xx
	// response, including those that needed a replay.
	MetricRequestSuccess MetricID = iota
	// MetricRequestFailure counts logical requests surfaced as *Error.
	MetricRequestFailure
	// MetricAuthFlowFailure counts failed requests to auth-flow paths.
	MetricAuthFlowFailure
	// MetricRefreshEligible counts failures classified as an expired access token.
	MetricRefreshEligible
	// MetricRefreshStarted counts refresh calls sent to the server.
	MetricRefreshStarted
	// MetricRefreshSuccess counts refresh calls that produced a new access token.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh calls that failed and logged the user out.
	MetricRefreshFailure
	// MetricRefreshWaiter counts requests that queued behind an outstanding refresh.
	MetricRefreshWaiter
	// MetricRefreshReused counts late expiries answered with an already refreshed token.
	MetricRefreshReused
	// MetricReplaySuccess counts replays that succeeded.
	MetricReplaySuccess
	// MetricReplayFailure counts replays that failed again.
	MetricReplayFailure
	// MetricRetryExhausted counts eligible failures surfaced because the
	// request had already been replayed once.
	MetricRetryExhausted
	// MetricCredentialsCleared counts vault clears caused by refresh failure.
	MetricCredentialsCleared
	MetricLoginSuccess
	MetricLoginFailure
	MetricLogout
	// MetricRefreshLatency is the only histogram: wall time of the refresh call.
	MetricRefreshLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRequestSuccess:     "request_success",
	MetricRequestFailure:     "request_failure",
	MetricAuthFlowFailure:    "auth_flow_failure",
	MetricRefreshEligible:    "refresh_eligible",
	MetricRefreshStarted:     "refresh_started",
	MetricRefreshSuccess:     "refresh_success",
	MetricRefreshFailure:     "refresh_failure",
	MetricRefreshWaiter:      "refresh_waiter",
	MetricRefreshReused:      "refresh_reused",
	MetricReplaySuccess:      "replay_success",
	MetricReplayFailure:      "replay_failure",
	MetricRetryExhausted:     "retry_exhausted",
	MetricCredentialsCleared: "credentials_cleared",
	MetricLoginSuccess:       "login_success",
	MetricLoginFailure:       "login_failure",
	MetricLogout:             "logout",
	MetricRefreshLatency:     "refresh_latency",
}

// String returns the snake_case name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil or disabled Metrics ignores writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histogram buckets
// are per-bucket counts with upper bounds 5, 10, 25, 50, 100, 250, 500 ms and +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRefreshLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
