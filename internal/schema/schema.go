package schema

import (
	"fmt"
	"time"
)

// Side is the direction carried by a signal or held by a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideClose Side = "CLOSE"
)

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	switch s {
	case SideLong, SideShort, SideClose:
		return true
	default:
		return false
	}
}

// Opening reports whether the side opens exposure.
func (s Side) Opening() bool {
	return s == SideLong || s == SideShort
}

// Signal is one externally produced trading signal, one JSON object per
// line in the signal log. Immutable once read.
type Signal struct {
	Ts       float64 `json:"ts"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	RiskUSD  float64 `json:"risk_usd"`
	Source   string  `json:"source"`
	SignalID string  `json:"signal_id"`
}

// Time converts the reported epoch-seconds timestamp.
func (s Signal) Time() time.Time {
	sec := int64(s.Ts)
	nsec := int64((s.Ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Key identifies the signal. Falls back to symbol+side+timestamp when the
// producer did not assign an ID.
func (s Signal) Key() string {
	if s.SignalID != "" {
		return s.SignalID
	}
	return fmt.Sprintf("%s|%s|%.6f", s.Symbol, s.Side, s.Ts)
}

// DedupKey groups signals for duplicate suppression.
type DedupKey struct {
	Symbol string
	Side   Side
}

// Dedup returns the (symbol, side) suppression key.
func (s Signal) Dedup() DedupKey {
	return DedupKey{Symbol: s.Symbol, Side: s.Side}
}

// PositionState tracks the per-symbol lifecycle NONE -> OPEN -> CLOSED.
type PositionState string

const (
	PositionOpen   PositionState = "OPEN"
	PositionClosed PositionState = "CLOSED"
)

// Position is the ledger's record of exposure in one symbol. Quantity and
// entry price are fixed at open; additive sizing averages them in place
// before the record is exposed.
type Position struct {
	Symbol     string        `json:"symbol"`
	Side       Side          `json:"side"`
	Qty        float64       `json:"qty"`
	EntryPrice float64       `json:"entry_price"`
	OpenedTs   float64       `json:"opened_ts"`
	State      PositionState `json:"state"`
	ClosedTs   float64       `json:"closed_ts,omitempty"`
	ClosePrice float64       `json:"close_price,omitempty"`
	PnLUSD     float64       `json:"pnl_usd,omitempty"`
	CloseNote  string        `json:"close_note,omitempty"`
}

// RealizedPnL computes the close-time PnL, sign-adjusted for shorts.
func (p Position) RealizedPnL(exitPrice float64) float64 {
	pnl := (exitPrice - p.EntryPrice) * p.Qty
	if p.Side == SideShort {
		pnl = -pnl
	}
	return pnl
}

// HealthRecord is the heartbeat document the core overwrites every cycle.
type HealthRecord struct {
	Ts            float64 `json:"ts"`
	UptimeSec     float64 `json:"uptime_sec"`
	Mode          string  `json:"mode"`
	OpenPositions int     `json:"open_positions"`
	DailyPnL      float64 `json:"daily_pnl"`
	QueueSize     int     `json:"queue_size"`
	LastError     string  `json:"last_error"`
}

// Time converts the heartbeat timestamp.
func (h HealthRecord) Time() time.Time {
	sec := int64(h.Ts)
	nsec := int64((h.Ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// OrderEventKind labels entries in the order-event audit log.
type OrderEventKind string

const (
	OrderEventOpen  OrderEventKind = "OPEN"
	OrderEventClose OrderEventKind = "CLOSE"
)

// OrderEvent is appended for every executed order. The watchdog's rate
// limiter counts these within its sliding window.
type OrderEvent struct {
	Ts     float64        `json:"ts"`
	Kind   OrderEventKind `json:"kind"`
	Symbol string         `json:"symbol"`
	Side   Side           `json:"side"`
	Qty    float64        `json:"qty"`
	Price  float64        `json:"price"`
	Reason string         `json:"reason,omitempty"`
}

// EpochSeconds converts a time to the float epoch format used on the wire.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
