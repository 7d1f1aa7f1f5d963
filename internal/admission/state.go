package admission

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
	"tradecore/internal/store"
)

// riskState is the mutable day state behind admission decisions. Open
// counts are rebuilt from the ledger at startup; daily PnL survives
// restarts through the persisted snapshot.
type riskState struct {
	dailyPnL    float64
	ordersToday int
	dayOpen     time.Time
	openCount   int
	perSymbol   map[string]int
}

func utcDayOpen(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *Engine) loadState() error {
	e.state = riskState{perSymbol: make(map[string]int)}
	now := e.now()

	var snap schema.RiskSnapshot
	err := store.Load(e.snapshotPath, &snap)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "load risk snapshot")
		}
		e.state.dayOpen = utcDayOpen(now)
		return e.persist()
	}

	dayOpen, parseErr := time.Parse(time.RFC3339, snap.DayOpenISO)
	if parseErr != nil || !utcDayOpen(dayOpen).Equal(utcDayOpen(now)) {
		// Stale or unreadable snapshot starts a fresh trading day.
		e.state.dayOpen = utcDayOpen(now)
		return e.persist()
	}

	e.state.dayOpen = utcDayOpen(dayOpen)
	e.state.dailyPnL = snap.DailyPnL
	e.state.ordersToday = snap.OrdersToday
	return nil
}

func (e *Engine) persist() error {
	snap := schema.RiskSnapshot{
		DayOpenISO:  e.state.dayOpen.Format(time.RFC3339),
		DailyPnL:    e.state.dailyPnL,
		OrdersToday: e.state.ordersToday,
	}
	if err := store.Replace(e.snapshotPath, snap); err != nil {
		return errors.Wrap(err, "persist risk snapshot")
	}
	return nil
}

// Rollover resets the day state when the UTC day boundary has been
// crossed. Call once per loop cycle.
func (e *Engine) Rollover() (bool, error) {
	now := e.now()
	if utcDayOpen(now).Equal(e.state.dayOpen) {
		return false, nil
	}
	e.state.dailyPnL = 0
	e.state.ordersToday = 0
	e.state.dayOpen = utcDayOpen(now)
	if err := e.persist(); err != nil {
		return false, err
	}
	logs.Infof("admission: new trading day %s", e.state.dayOpen.Format("2006-01-02"))
	return true, nil
}

// SeedOpenPositions rebuilds the open counters from the ledger at
// startup.
func (e *Engine) SeedOpenPositions(positions []schema.Position) {
	e.state.openCount = 0
	e.state.perSymbol = make(map[string]int, len(positions))
	for _, p := range positions {
		if p.State != schema.PositionOpen {
			continue
		}
		e.state.openCount++
		e.state.perSymbol[p.Symbol]++
	}
}

// OnOpen records an executed entry and persists the snapshot. An
// additive fill into an existing position keeps the open counters flat.
func (e *Engine) OnOpen(symbol string, created bool) error {
	if created {
		e.state.openCount++
		e.state.perSymbol[symbol]++
	}
	e.state.ordersToday++
	return e.persist()
}

// OnClose records an executed exit with its realized PnL. Daily PnL moves
// only here, never on open.
func (e *Engine) OnClose(symbol string, pnl float64) error {
	if e.state.perSymbol[symbol] > 0 {
		delete(e.state.perSymbol, symbol)
		e.state.openCount--
	}
	e.state.dailyPnL += pnl
	e.state.ordersToday++
	return e.persist()
}

// DailyPnL reports the realized PnL accumulated today.
func (e *Engine) DailyPnL() float64 {
	return e.state.dailyPnL
}

// OpenCount reports how many positions the engine believes are open.
func (e *Engine) OpenCount() int {
	return e.state.openCount
}
