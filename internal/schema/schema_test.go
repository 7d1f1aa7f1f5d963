package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSideValid(t *testing.T) {
	assert.True(t, SideLong.Valid())
	assert.True(t, SideShort.Valid())
	assert.True(t, SideClose.Valid())
	assert.False(t, Side("BUY").Valid())
	assert.False(t, Side("").Valid())
}

func TestSideOpening(t *testing.T) {
	assert.True(t, SideLong.Opening())
	assert.True(t, SideShort.Opening())
	assert.False(t, SideClose.Opening())
}

func TestSignalKeyFallsBackToFields(t *testing.T) {
	sig := Signal{Ts: 1700000000.25, Symbol: "BTC-USD", Side: SideLong}
	assert.Equal(t, "BTC-USD|LONG|1700000000.250000", sig.Key())

	sig.SignalID = "abc"
	assert.Equal(t, "abc", sig.Key())
}

func TestSignalTime(t *testing.T) {
	sig := Signal{Ts: 1700000000.5}
	want := time.Unix(1700000000, 500000000).UTC()
	assert.WithinDuration(t, want, sig.Time(), time.Millisecond)
}

func TestRealizedPnL(t *testing.T) {
	long := Position{Side: SideLong, Qty: 2, EntryPrice: 100}
	assert.InDelta(t, 20, long.RealizedPnL(110), 1e-9)
	assert.InDelta(t, -20, long.RealizedPnL(90), 1e-9)

	short := Position{Side: SideShort, Qty: 2, EntryPrice: 100}
	assert.InDelta(t, -20, short.RealizedPnL(110), 1e-9)
	assert.InDelta(t, 20, short.RealizedPnL(90), 1e-9)
}

func TestOrderbookSpreadBps(t *testing.T) {
	book := &Orderbook{
		Bids: []Level{{Price: 100.00, Size: 1}},
		Asks: []Level{{Price: 100.60, Size: 1}},
	}
	spread, ok := book.SpreadBps()
	assert.True(t, ok)
	// mid = 100.30, spread = 10000 * 0.60 / 100.30
	assert.InDelta(t, 59.82, spread, 0.01)
}

func TestOrderbookBestRejectsCrossedBook(t *testing.T) {
	book := &Orderbook{
		Bids: []Level{{Price: 101, Size: 1}},
		Asks: []Level{{Price: 100, Size: 1}},
	}
	_, _, ok := book.Best()
	assert.False(t, ok)
}

func TestOrderbookConsumedSide(t *testing.T) {
	book := &Orderbook{
		Bids: []Level{{Price: 99, Size: 1}},
		Asks: []Level{{Price: 101, Size: 2}},
	}
	assert.Equal(t, book.Asks, book.ConsumedSide(SideLong))
	assert.Equal(t, book.Bids, book.ConsumedSide(SideShort))
}
