package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
)

var (
	signalsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "intake",
		Name:      "signals_consumed_total",
		Help:      "Signal lines consumed from the intake log",
	})

	signalsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "intake",
		Name:      "signals_dropped_total",
		Help:      "Signals discarded before admission",
	}, []string{"kind"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Admission decisions by reason code",
	}, []string{"reason"})

	ordersExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "exec",
		Name:      "orders_executed_total",
		Help:      "Confirmed opening fills",
	})

	positionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "ledger",
		Name:      "positions_closed_total",
		Help:      "Positions moved to closed history",
	})

	realizedPnl = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "ledger",
		Name:      "realized_pnl_usd",
		Help:      "Cumulative realized PnL in USD, losses included",
	})

	openPositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "ledger",
		Name:      "open_positions",
		Help:      "Currently open positions",
	})

	queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "intake",
		Name:      "queue_depth",
		Help:      "Pending signals awaiting admission",
	})

	dailyPnlGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "daily_pnl_usd",
		Help:      "Realized PnL for the current UTC day in USD",
	})

	admitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradecore",
		Subsystem: "admission",
		Name:      "admit_latency_ms",
		Help:      "Time to evaluate one signal in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	loopLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradecore",
		Subsystem: "core",
		Name:      "loop_latency_ms",
		Help:      "Time for one core loop iteration in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	})
)

// ServeMetrics exposes /metrics on addr in a background goroutine.
// An empty addr disables the endpoint.
func ServeMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logs.Infof("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics server: %v", err)
		}
	}()
}
