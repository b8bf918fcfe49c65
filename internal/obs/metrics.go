package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies one bridge counter.
type Counter int

const (
	ConnectAttempts Counter = iota
	Connects
	ConnectErrors
	Disconnects
	UncleanDisconnects
	MessagesIn
	MessagesOut
	SendFailures
	BinaryDropped
	PendingDrops
	StaleDrops
	PingsSent

	counterCount
)

var counterNames = [counterCount]string{
	ConnectAttempts:    "connect_attempts",
	Connects:           "connects",
	ConnectErrors:      "connect_errors",
	Disconnects:        "disconnects",
	UncleanDisconnects: "unclean_disconnects",
	MessagesIn:         "messages_in",
	MessagesOut:        "messages_out",
	SendFailures:       "send_failures",
	BinaryDropped:      "binary_dropped",
	PendingDrops:       "pending_drops",
	StaleDrops:         "stale_drops",
	PingsSent:          "pings_sent",
}

func (c Counter) String() string {
	if c < 0 || c >= counterCount {
		return "unknown"
	}
	return counterNames[c]
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	counters [counterCount]uint64

	handshakeLatency LatencyStats
	dispatchLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counters         map[string]uint64
	HandshakeLatency LatencySnapshot
	DispatchLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments a counter.
func (m *Metrics) Inc(c Counter) {
	if m == nil || c < 0 || c >= counterCount {
		return
	}
	atomic.AddUint64(&m.counters[c], 1)
}

// Load returns the current value of a counter.
func (m *Metrics) Load(c Counter) uint64 {
	if m == nil || c < 0 || c >= counterCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[c])
}

// ObserveHandshake measures time from connect attempt to open connection.
func (m *Metrics) ObserveHandshake(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeLatency.Observe(d)
}

// ObserveDispatch measures time a pending request waited for the host tick.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counters := make(map[string]uint64, counterCount)
	for i := range m.counters {
		counters[Counter(i).String()] = atomic.LoadUint64(&m.counters[i])
	}
	return Snapshot{
		Counters:         counters,
		HandshakeLatency: m.handshakeLatency.Snapshot(),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
