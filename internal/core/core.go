// Package core wires the components together and runs the single-threaded
// trading loop. All cross-process coordination happens through files; the
// loop itself holds no locks between cycles.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/admission"
	"tradecore/internal/exec"
	"tradecore/internal/health"
	"tradecore/internal/intake"
	"tradecore/internal/ledger"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/schema"
	"tradecore/internal/store"
	"tradecore/internal/watchdog"
)

// ErrStopped reports that the stop flag is present. The loop refuses to
// run until an operator removes the file.
var ErrStopped = errors.New("core: stop flag present, refusing to trade")

// Core is the assembled trading loop state. Built once at startup, no
// globals.
type Core struct {
	cfg     ops.Config
	intake  *intake.Intake
	engine  *admission.Engine
	ledger  *ledger.Ledger
	facade  exec.Facade
	books   exec.BookSource
	health  *health.Writer
	metrics *obs.Metrics
	now     func() time.Time

	lastError   string
	intakeStats intake.Stats
}

// Build constructs every component from the configuration. venue supplies
// the live-mode facade and may be nil otherwise.
func Build(cfg ops.Config, venue exec.Facade) (*Core, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, yerrors.Wrap(err, "create data dir")
	}

	in, err := intake.New(intake.Config{
		LogPath:     cfg.SignalLogPath(),
		OffsetPath:  cfg.IntakeOffsetPath(),
		TTL:         cfg.Intake.TTL.Std(),
		DedupWindow: cfg.Intake.DedupWindow.Std(),
		LockTimeout: cfg.LockTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	engine, err := admission.New(cfg.Limits, cfg.RiskSnapshotPath(), nil)
	if err != nil {
		return nil, err
	}

	led, err := ledger.New(ledger.Config{
		OpenPath:       cfg.OpenPositionsPath(),
		History:        store.NewAppendLog(cfg.HistoryLogPath(), ops.SchemaClosedPosition, cfg.LockTimeout.Std()),
		Events:         store.NewAppendLog(cfg.OrderEventsPath(), ops.SchemaOrderEvent, cfg.LockTimeout.Std()),
		Risk:           engine,
		AdditiveSizing: cfg.Limits.AdditiveSizing,
	})
	if err != nil {
		return nil, err
	}
	// Admission counters follow whatever the ledger recovered from disk.
	engine.SeedOpenPositions(led.Snapshot())

	facade, err := buildFacade(cfg, venue)
	if err != nil {
		return nil, err
	}

	return &Core{
		cfg:    cfg,
		intake: in,
		engine: engine,
		ledger: led,
		facade: facade,
		books: exec.FileBooks{
			Dir:    cfg.Exec.BookDir,
			MaxAge: cfg.Exec.BookMaxAge.Std(),
		},
		health:  health.NewWriter(cfg.HealthPath(), cfg.Mode, nil),
		metrics: obs.NewMetrics(),
		now:     time.Now,
	}, nil
}

func buildFacade(cfg ops.Config, venue exec.Facade) (exec.Facade, error) {
	var inner exec.Facade
	switch cfg.Mode {
	case ops.ModeDryRun:
		inner = exec.DryRun{}
	case ops.ModePaper:
		inner = exec.Paper{SlippageBps: cfg.Exec.SlippageBps}
	case ops.ModeLive:
		if venue == nil {
			return nil, yerrors.New("live mode requires a venue facade")
		}
		inner = venue
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	r := exec.NewRetrying(inner, cfg.Exec.OrderTimeout.Std())
	if cfg.Exec.MaxAttempts > 0 {
		r.Cfg.MaxAttempts = cfg.Exec.MaxAttempts
	}
	return r, nil
}

// Metrics exposes the in-process counters, mainly for the shutdown
// summary and tests.
func (c *Core) Metrics() *obs.Metrics {
	return c.metrics
}

// Run executes the loop until the context is canceled (nil) or a fatal
// condition is hit. ErrStopped means the stop flag was present.
func (c *Core) Run(ctx context.Context) error {
	logs.Infof("core: starting mode=%s data=%s open=%d daily_pnl=%.2f",
		c.cfg.Mode, c.cfg.DataDir, c.ledger.OpenCount(), c.engine.DailyPnL())
	defer c.logSummary()

	for {
		start := c.now()
		if err := c.Cycle(ctx); err != nil {
			return err
		}
		c.metrics.ObserveLoop(c.now().Sub(start))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.LoopInterval.Std()):
		}
	}
}

// Cycle runs one loop iteration: stop-flag check, day rollover, heartbeat,
// then at most one signal end to end.
func (c *Core) Cycle(ctx context.Context) error {
	if watchdog.StopExists(c.cfg.StopFlagPath()) {
		return ErrStopped
	}

	if _, err := c.engine.Rollover(); err != nil {
		return err
	}

	if err := c.health.Beat(c.ledger.OpenCount(), c.engine.DailyPnL(), c.intake.QueueDepth(), c.lastError); err != nil {
		return err
	}
	c.metrics.SetGauges(c.ledger.OpenCount(), c.intake.QueueDepth(), c.engine.DailyPnL())

	sig, err := c.intake.PollNext(c.ledger.HasOpen())
	c.syncIntakeStats()
	if err != nil {
		return err
	}
	if sig == nil {
		return nil
	}
	c.metrics.IncConsumed()
	return c.handle(ctx, *sig)
}

// syncIntakeStats forwards new intake drop counts to the metrics.
func (c *Core) syncIntakeStats() {
	st := c.intake.Stats()
	c.metrics.AddDropped("malformed", st.Malformed-c.intakeStats.Malformed)
	c.metrics.AddDropped("stale", st.Stale-c.intakeStats.Stale)
	c.metrics.AddDropped("duplicate", st.Duplicates-c.intakeStats.Duplicates)
	c.intakeStats = st
}

func (c *Core) handle(ctx context.Context, sig schema.Signal) error {
	book, err := c.books.Snapshot(sig.Symbol)
	if err != nil {
		// An unreadable snapshot is the same as no snapshot: the
		// liquidity stage will reject the entry.
		logs.Errorf("core: orderbook for %s unreadable: %v", sig.Symbol, err)
		book = nil
	}

	admitStart := c.now()
	dec := c.engine.Admit(sig, admission.Context{
		EquityUSD: c.cfg.EquityUSD + c.engine.DailyPnL(),
		Orderbook: book,
		Stopped:   watchdog.StopExists(c.cfg.StopFlagPath()),
	})
	c.metrics.ObserveAdmit(c.now().Sub(admitStart))
	c.metrics.IncReason(dec.Reason)

	if !dec.Allow {
		logs.Infof("core: rejected %s %s: %s", sig.Side, sig.Symbol, dec.Reason)
		return nil
	}

	if sig.Side == schema.SideClose {
		return c.closePosition(ctx, sig)
	}
	return c.openPosition(ctx, sig, dec.AdjustedRisk)
}

func (c *Core) openPosition(ctx context.Context, sig schema.Signal, riskUSD float64) error {
	if sig.Price <= 0 {
		logs.Infof("core: skipped %s %s: no price on signal", sig.Side, sig.Symbol)
		return nil
	}
	order := exec.Order{
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Qty:    riskUSD / sig.Price,
		Price:  sig.Price,
	}
	fill, err := c.facade.PlaceOrder(ctx, order)
	if err != nil {
		// A position is never recorded without a confirmed fill.
		c.lastError = err.Error()
		return yerrors.Wrap(err, "open placement failed")
	}

	created, err := c.ledger.Open(fill.Symbol, sig.Side, fill.Price, fill.Qty)
	if err != nil {
		return err
	}
	c.metrics.IncExecuted()
	verb := "opened"
	if !created {
		verb = "added to"
	}
	logs.Infof("core: %s %s %s qty=%.8f px=%.8f risk=%.2f", verb, sig.Side, sig.Symbol, fill.Qty, fill.Price, riskUSD)
	return nil
}

func (c *Core) closePosition(ctx context.Context, sig schema.Signal) error {
	pos, ok := c.ledger.Get(sig.Symbol)
	if !ok {
		// A close with nothing open is an input anomaly, not a fault.
		logs.Infof("core: close for %s ignored: no open position", sig.Symbol)
		return nil
	}
	price := sig.Price
	if price <= 0 {
		if book, _ := c.books.Snapshot(sig.Symbol); book != nil {
			if mid, ok := book.Mid(); ok {
				price = mid
			}
		}
	}
	if price <= 0 {
		logs.Infof("core: close for %s ignored: no price available", sig.Symbol)
		return nil
	}

	order := exec.Order{
		Symbol: sig.Symbol,
		Side:   pos.Side,
		Qty:    pos.Qty,
		Price:  price,
		Reduce: true,
	}
	fill, err := c.facade.PlaceOrder(ctx, order)
	if err != nil {
		c.lastError = err.Error()
		return yerrors.Wrap(err, "close placement failed")
	}

	closed, err := c.ledger.Close(sig.Symbol, fill.Price, "signal")
	if err != nil {
		return err
	}
	c.metrics.IncClosed(closed.PnLUSD)
	logs.Infof("core: closed %s %s qty=%.8f px=%.8f pnl=%.2f", closed.Side, closed.Symbol, closed.Qty, fill.Price, closed.PnLUSD)
	return nil
}

func (c *Core) logSummary() {
	snap := c.metrics.Snapshot()
	logs.Infof("core: summary consumed=%d dropped=%d executed=%d closed=%d open=%d daily_pnl=%.2f",
		snap.Consumed, snap.Dropped, snap.Executed, snap.Closed, c.ledger.OpenCount(), c.engine.DailyPnL())
	for reason, n := range snap.ReasonCounts {
		logs.Infof("core: decisions %s=%d", reason, n)
	}
}
