// Package ledger owns the authoritative set of open positions. The live
// set is one JSON document replaced atomically; closed positions are
// archived to an append-only history log and never deleted.
package ledger

import (
	"errors"
	"os"
	"sort"
	"time"

	yerrors "github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/internal/store"
)

var (
	ErrPositionExists = errors.New("ledger: position already open for symbol")
	ErrSideConflict   = errors.New("ledger: additive fill side does not match open position")
	ErrNotOpen        = errors.New("ledger: no open position for symbol")
)

// RiskSink receives counter updates for every ledger mutation.
type RiskSink interface {
	OnOpen(symbol string, created bool) error
	OnClose(symbol string, pnl float64) error
}

// Config wires the ledger to its files and policy.
type Config struct {
	OpenPath string
	History  *store.AppendLog
	Events   *store.AppendLog
	Risk     RiskSink

	// AdditiveSizing lets an admitted entry add to an already-open
	// position; the entry price is averaged volume-weighted.
	AdditiveSizing bool

	Now func() time.Time
}

type openDocument struct {
	Value []schema.Position `json:"value"`
}

// Ledger is the per-symbol state machine NONE -> OPEN -> CLOSED. A new
// open after a close creates a fresh record.
type Ledger struct {
	cfg       Config
	positions map[string]schema.Position
}

// New reloads the live open-set from disk (empty when absent).
func New(cfg Config) (*Ledger, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Ledger{
		cfg:       cfg,
		positions: make(map[string]schema.Position),
	}
	var doc openDocument
	if err := store.Load(cfg.OpenPath, &doc); err != nil {
		if !os.IsNotExist(err) {
			return nil, yerrors.Wrap(err, "load open positions")
		}
		return l, nil
	}
	for _, p := range doc.Value {
		if p.State == schema.PositionOpen {
			l.positions[p.Symbol] = p
		}
	}
	return l, nil
}

// Open creates (or, with additive sizing, grows) the position for a
// confirmed entry fill. created reports whether a fresh record was made.
func (l *Ledger) Open(symbol string, side schema.Side, price, qty float64) (created bool, err error) {
	if !side.Opening() {
		return false, yerrors.New("ledger: open requires LONG or SHORT")
	}
	existing, exists := l.positions[symbol]
	switch {
	case exists && !l.cfg.AdditiveSizing:
		return false, ErrPositionExists
	case exists && existing.Side != side:
		return false, ErrSideConflict
	case exists:
		// Volume-weighted average across fills; quantities sum.
		total := existing.Qty + qty
		existing.EntryPrice = (existing.EntryPrice*existing.Qty + price*qty) / total
		existing.Qty = total
		l.positions[symbol] = existing
	default:
		l.positions[symbol] = schema.Position{
			Symbol:     symbol,
			Side:       side,
			Qty:        qty,
			EntryPrice: price,
			OpenedTs:   schema.EpochSeconds(l.cfg.Now()),
			State:      schema.PositionOpen,
		}
		created = true
	}

	if err := l.persist(); err != nil {
		return created, err
	}
	if err := l.appendEvent(schema.OrderEventOpen, symbol, side, qty, price, ""); err != nil {
		return created, err
	}
	if l.cfg.Risk != nil {
		if err := l.cfg.Risk.OnOpen(symbol, created); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Close transitions the symbol OPEN -> CLOSED at the given exit price,
// computes realized PnL and archives the record. Closing a symbol that is
// not open returns ErrNotOpen.
func (l *Ledger) Close(symbol string, price float64, reason string) (schema.Position, error) {
	pos, ok := l.positions[symbol]
	if !ok {
		return schema.Position{}, ErrNotOpen
	}

	pnl := pos.RealizedPnL(price)
	pos.State = schema.PositionClosed
	pos.ClosePrice = price
	pos.ClosedTs = schema.EpochSeconds(l.cfg.Now())
	pos.PnLUSD = pnl
	pos.CloseNote = reason

	delete(l.positions, symbol)
	if err := l.persist(); err != nil {
		return schema.Position{}, err
	}
	if l.cfg.History != nil {
		if _, err := l.cfg.History.Append(pos); err != nil {
			return schema.Position{}, yerrors.Wrap(err, "append closed position")
		}
	}
	if err := l.appendEvent(schema.OrderEventClose, symbol, pos.Side, pos.Qty, price, reason); err != nil {
		return schema.Position{}, err
	}
	if l.cfg.Risk != nil {
		if err := l.cfg.Risk.OnClose(symbol, pnl); err != nil {
			return schema.Position{}, err
		}
	}
	return pos, nil
}

// Get returns the open position for a symbol.
func (l *Ledger) Get(symbol string) (schema.Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// HasOpen reports whether any position is open.
func (l *Ledger) HasOpen() bool {
	return len(l.positions) > 0
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	return len(l.positions)
}

// Snapshot returns the open positions sorted by symbol.
func (l *Ledger) Snapshot() []schema.Position {
	out := make([]schema.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (l *Ledger) persist() error {
	doc := openDocument{Value: l.Snapshot()}
	if err := store.Replace(l.cfg.OpenPath, doc); err != nil {
		return yerrors.Wrap(err, "persist open positions")
	}
	return nil
}

func (l *Ledger) appendEvent(kind schema.OrderEventKind, symbol string, side schema.Side, qty, price float64, reason string) error {
	if l.cfg.Events == nil {
		return nil
	}
	ev := schema.OrderEvent{
		Ts:     schema.EpochSeconds(l.cfg.Now()),
		Kind:   kind,
		Symbol: symbol,
		Side:   side,
		Qty:    qty,
		Price:  price,
		Reason: reason,
	}
	if _, err := l.cfg.Events.Append(ev); err != nil {
		return yerrors.Wrap(err, "append order event")
	}
	return nil
}
