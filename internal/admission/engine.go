// Package admission gates every signal between intake and execution. It
// fails closed: indeterminate input (missing orderbook, zero equity, a
// present stop flag) rejects the trade.
package admission

import (
	"time"

	"tradecore/internal/schema"
)

// Limits are the static risk and liquidity thresholds, read once at
// startup.
type Limits struct {
	// DailyLossFloorUSD halts entries when daily PnL is at or below it
	// (a negative number, e.g. -50).
	DailyLossFloorUSD float64
	MaxConcurrent     int
	AdditiveSizing    bool
	MinTradeUSD       float64
	MaxTradeUSD       float64
	// EquityFraction caps a single trade's risk at this share of equity.
	EquityFraction float64

	MaxSpreadBps    float64
	DepthMultiplier float64
	MaxImpactBps    float64
}

// Context carries the per-decision environment the engine does not own.
type Context struct {
	EquityUSD float64
	Orderbook *schema.Orderbook
	// Stopped mirrors stop-flag presence; it rejects everything,
	// including exits.
	Stopped bool
}

// Engine evaluates admission decisions against the current risk state.
// Decisions are deterministic given identical state and context.
type Engine struct {
	limits       Limits
	snapshotPath string
	now          func() time.Time
	state        riskState
}

// New loads the persisted day snapshot (or seeds a fresh one) and returns
// a ready engine.
func New(limits Limits, snapshotPath string, now func() time.Time) (*Engine, error) {
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		limits:       limits,
		snapshotPath: snapshotPath,
		now:          now,
	}
	if err := e.loadState(); err != nil {
		return nil, err
	}
	return e, nil
}

// Admit runs both stages in fixed order; the first failing check wins.
func (e *Engine) Admit(sig schema.Signal, actx Context) schema.Decision {
	if actx.Stopped {
		return schema.Deny(schema.ReasonStopFlag)
	}
	if !sig.Side.Opening() {
		// Exits never add risk and are only blocked by the stop flag.
		return schema.Allow(0)
	}

	// Stage A: risk limits.
	if e.state.dailyPnL <= e.limits.DailyLossFloorUSD {
		return schema.Deny(schema.ReasonDailyStop)
	}
	if e.state.openCount >= e.limits.MaxConcurrent {
		return schema.Deny(schema.ReasonTooManyPositions)
	}
	if e.state.perSymbol[sig.Symbol] > 0 && !e.limits.AdditiveSizing {
		return schema.Deny(schema.ReasonPositionExists)
	}
	risk := sig.RiskUSD
	if e.limits.MaxTradeUSD > 0 && risk > e.limits.MaxTradeUSD {
		risk = e.limits.MaxTradeUSD
	}
	if risk < e.limits.MinTradeUSD {
		return schema.Deny(schema.ReasonSizeTooSmall)
	}
	if actx.EquityUSD <= 0 {
		return schema.Deny(schema.ReasonLowEquity)
	}
	if e.limits.EquityFraction > 0 {
		if cap := actx.EquityUSD * e.limits.EquityFraction; risk > cap {
			risk = cap
		}
	}

	// Stage B: liquidity, opening sides only.
	if dec, ok := evaluateLiquidity(sig.Side, risk, actx.Orderbook, e.limits); !ok {
		return dec
	}
	return schema.Allow(risk)
}
