// Package obs holds in-process counters plus the Prometheus export
// surface. The in-process side feeds the heartbeat and the shutdown
// summary; Prometheus feeds dashboards.
package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	reasonCounts map[schema.Reason]*uint64
	consumed     uint64
	dropped      uint64
	executed     uint64
	closed       uint64

	admitLatency LatencyStats
	loopLatency  LatencyStats
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
	ReasonCounts map[schema.Reason]uint64
	Consumed     uint64
	Dropped      uint64
	Executed     uint64
	Closed       uint64
	AdmitLatency LatencySnapshot
	LoopLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container with a slot per decision reason.
func NewMetrics() *Metrics {
	counts := make(map[schema.Reason]*uint64, len(schema.Reasons))
	for _, r := range schema.Reasons {
		counts[r] = new(uint64)
	}
	return &Metrics{reasonCounts: counts}
}

// IncReason counts an admission outcome by reason code.
func (m *Metrics) IncReason(reason schema.Reason) {
	if m == nil {
		return
	}
	if c, ok := m.reasonCounts[reason]; ok {
		atomic.AddUint64(c, 1)
	}
	decisionsTotal.WithLabelValues(string(reason)).Inc()
}

// IncConsumed counts a signal line consumed from the intake log.
func (m *Metrics) IncConsumed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.consumed, 1)
	signalsConsumed.Inc()
}

// AddDropped counts signals discarded before admission (malformed,
// stale, or duplicate).
func (m *Metrics) AddDropped(kind string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.dropped, n)
	signalsDropped.WithLabelValues(kind).Add(float64(n))
}

// IncExecuted counts a confirmed opening fill.
func (m *Metrics) IncExecuted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.executed, 1)
	ordersExecuted.Inc()
}

// IncClosed counts a position closure and its realized PnL.
func (m *Metrics) IncClosed(pnl float64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.closed, 1)
	positionsClosed.Inc()
	realizedPnl.Add(pnl)
}

// ObserveAdmit measures one admission evaluation.
func (m *Metrics) ObserveAdmit(d time.Duration) {
	if m == nil {
		return
	}
	m.admitLatency.Observe(d)
	admitLatency.Observe(d.Seconds() * 1000)
}

// ObserveLoop measures one full core loop iteration.
func (m *Metrics) ObserveLoop(d time.Duration) {
	if m == nil {
		return
	}
	m.loopLatency.Observe(d)
	loopLatency.Observe(d.Seconds() * 1000)
}

// SetGauges refreshes the slow-moving gauges, once per loop.
func (m *Metrics) SetGauges(openPositions int, queueDepth int, dailyPnL float64) {
	if m == nil {
		return
	}
	openPositionsGauge.Set(float64(openPositions))
	queueDepthGauge.Set(float64(queueDepth))
	dailyPnlGauge.Set(dailyPnL)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	reasons := make(map[schema.Reason]uint64, len(m.reasonCounts))
	for r, c := range m.reasonCounts {
		if v := atomic.LoadUint64(c); v > 0 {
			reasons[r] = v
		}
	}
	return Snapshot{
		ReasonCounts: reasons,
		Consumed:     atomic.LoadUint64(&m.consumed),
		Dropped:      atomic.LoadUint64(&m.dropped),
		Executed:     atomic.LoadUint64(&m.executed),
		Closed:       atomic.LoadUint64(&m.closed),
		AdmitLatency: m.admitLatency.Snapshot(),
		LoopLatency:  m.loopLatency.Snapshot(),
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
