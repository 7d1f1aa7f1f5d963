package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
	"tradecore/internal/store"
)

type recordingSink struct {
	opens  []string
	closes []float64
}

func (r *recordingSink) OnOpen(symbol string, created bool) error {
	if created {
		r.opens = append(r.opens, symbol)
	}
	return nil
}

func (r *recordingSink) OnClose(symbol string, pnl float64) error {
	r.closes = append(r.closes, pnl)
	return nil
}

func newTestLedger(t *testing.T, additive bool) (*Ledger, Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		OpenPath:       filepath.Join(dir, "positions_open.json"),
		History:        store.NewAppendLog(filepath.Join(dir, "positions_closed.log"), "position.closed.v1", time.Second),
		Events:         store.NewAppendLog(filepath.Join(dir, "order_events.log"), "order.event.v1", time.Second),
		Risk:           &recordingSink{},
		AdditiveSizing: additive,
	}
	l, err := New(cfg)
	require.NoError(t, err)
	return l, cfg
}

func TestOpenThenCloseLong(t *testing.T) {
	l, cfg := newTestLedger(t, false)

	created, err := l.Open("BTC-USD", schema.SideLong, 100, 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, l.HasOpen())

	pos, err := l.Close("BTC-USD", 110, "signal")
	require.NoError(t, err)
	assert.Equal(t, schema.PositionClosed, pos.State)
	assert.InDelta(t, 20, pos.PnLUSD, 1e-9)
	assert.False(t, l.HasOpen())

	history, err := store.ReadAll[schema.Position](cfg.History)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 20, history[0].PnLUSD, 1e-9)
}

func TestCloseShortProfitsWhenPriceFalls(t *testing.T) {
	l, _ := newTestLedger(t, false)
	_, err := l.Open("ETH-USD", schema.SideShort, 200, 1)
	require.NoError(t, err)

	pos, err := l.Close("ETH-USD", 180, "signal")
	require.NoError(t, err)
	assert.InDelta(t, 20, pos.PnLUSD, 1e-9)
}

func TestDoubleOpenRejectedWithoutAdditiveSizing(t *testing.T) {
	l, _ := newTestLedger(t, false)
	_, err := l.Open("BTC-USD", schema.SideLong, 100, 1)
	require.NoError(t, err)

	_, err = l.Open("BTC-USD", schema.SideLong, 105, 1)
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestAdditiveOpenAveragesEntry(t *testing.T) {
	l, _ := newTestLedger(t, true)
	created, err := l.Open("BTC-USD", schema.SideLong, 100, 1)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.Open("BTC-USD", schema.SideLong, 110, 3)
	require.NoError(t, err)
	assert.False(t, created)

	pos, ok := l.Get("BTC-USD")
	require.True(t, ok)
	assert.InDelta(t, 4, pos.Qty, 1e-9)
	assert.InDelta(t, 107.5, pos.EntryPrice, 1e-9)
	assert.Equal(t, 1, l.OpenCount())
}

func TestAdditiveOpenRejectsSideFlip(t *testing.T) {
	l, _ := newTestLedger(t, true)
	_, err := l.Open("BTC-USD", schema.SideLong, 100, 1)
	require.NoError(t, err)

	_, err = l.Open("BTC-USD", schema.SideShort, 100, 1)
	assert.ErrorIs(t, err, ErrSideConflict)
}

func TestCloseWithoutOpenIsError(t *testing.T) {
	l, _ := newTestLedger(t, false)
	_, err := l.Close("BTC-USD", 100, "signal")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestOpenRequiresOpeningSide(t *testing.T) {
	l, _ := newTestLedger(t, false)
	_, err := l.Open("BTC-USD", schema.SideClose, 100, 1)
	assert.Error(t, err)
}

func TestOpenSetSurvivesRestart(t *testing.T) {
	l, cfg := newTestLedger(t, false)
	_, err := l.Open("BTC-USD", schema.SideLong, 100, 2)
	require.NoError(t, err)
	_, err = l.Open("ETH-USD", schema.SideShort, 200, 1)
	require.NoError(t, err)

	reloaded, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.OpenCount())
	pos, ok := reloaded.Get("BTC-USD")
	require.True(t, ok)
	assert.InDelta(t, 100, pos.EntryPrice, 1e-9)
	assert.Equal(t, schema.SideLong, pos.Side)
}

func TestMutationsEmitOrderEvents(t *testing.T) {
	l, cfg := newTestLedger(t, false)
	_, err := l.Open("BTC-USD", schema.SideLong, 100, 2)
	require.NoError(t, err)
	_, err = l.Close("BTC-USD", 101, "signal")
	require.NoError(t, err)

	events, err := store.ReadAll[schema.OrderEvent](cfg.Events)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, schema.OrderEventOpen, events[0].Kind)
	assert.Equal(t, schema.OrderEventClose, events[1].Kind)
	assert.Equal(t, "signal", events[1].Reason)
}

func TestRiskSinkSeesMutations(t *testing.T) {
	sink := &recordingSink{}
	dir := t.TempDir()
	l, err := New(Config{
		OpenPath: filepath.Join(dir, "positions_open.json"),
		Risk:     sink,
	})
	require.NoError(t, err)

	_, err = l.Open("BTC-USD", schema.SideLong, 100, 1)
	require.NoError(t, err)
	_, err = l.Close("BTC-USD", 90, "signal")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC-USD"}, sink.opens)
	require.Len(t, sink.closes, 1)
	assert.InDelta(t, -10, sink.closes[0], 1e-9)
}

func TestSnapshotIsSorted(t *testing.T) {
	l, _ := newTestLedger(t, false)
	_, err := l.Open("ETH-USD", schema.SideLong, 1, 1)
	require.NoError(t, err)
	_, err = l.Open("BTC-USD", schema.SideLong, 1, 1)
	require.NoError(t, err)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "BTC-USD", snap[0].Symbol)
	assert.Equal(t, "ETH-USD", snap[1].Symbol)
}
