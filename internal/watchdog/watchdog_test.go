package watchdog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/health"
	"tradecore/internal/schema"
	"tradecore/internal/store"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	dir     string
	w       *Watchdog
	notices []string
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}
	f.w = New(Config{
		HealthPath:        filepath.Join(f.dir, "health.json"),
		StopFlagPath:      filepath.Join(f.dir, "STOP"),
		RiskSnapshotPath:  filepath.Join(f.dir, "risk_day.json"),
		Events:            store.NewAppendLog(filepath.Join(f.dir, "order_events.log"), "order.event.v1", time.Second),
		HeartbeatMax:      120 * time.Second,
		DailyLossFloorUSD: -50,
		RateWindow:        time.Minute,
		RateLimit:         3,
		Now:               func() time.Time { return now },
		Notify:            func(reason string) { f.notices = append(f.notices, reason) },
	})
	return f
}

func (f *fixture) beat(t *testing.T, at time.Time) {
	t.Helper()
	w := health.NewWriter(filepath.Join(f.dir, "health.json"), "paper", func() time.Time { return at })
	require.NoError(t, w.Beat(0, 0, 0, ""))
}

func (f *fixture) writeSnapshot(t *testing.T, day time.Time, pnl float64) {
	t.Helper()
	snap := schema.RiskSnapshot{
		DayOpenISO: day.Format(time.RFC3339),
		DailyPnL:   pnl,
	}
	require.NoError(t, store.Replace(filepath.Join(f.dir, "risk_day.json"), snap))
}

func TestMissingHeartbeatTrips(t *testing.T) {
	f := newFixture(t, testNow)
	tripped, reason, err := f.w.Check()
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Contains(t, reason, "heartbeat file missing")
	assert.True(t, StopExists(filepath.Join(f.dir, "STOP")))
}

func TestStaleHeartbeatTrips(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow.Add(-3*time.Minute))

	tripped, reason, err := f.w.Check()
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Contains(t, reason, "heartbeat stale")
}

func TestFreshHeartbeatPasses(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow.Add(-10*time.Second))

	tripped, _, err := f.w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)
	assert.False(t, StopExists(filepath.Join(f.dir, "STOP")))
}

func TestTripIsWriteOnce(t *testing.T) {
	f := newFixture(t, testNow)

	tripped, _, err := f.w.Check()
	require.NoError(t, err)
	require.True(t, tripped)
	require.Len(t, f.notices, 1)

	flag, err := ReadStop(filepath.Join(f.dir, "STOP"))
	require.NoError(t, err)

	// A present flag short-circuits all later checks: no rewrite, no
	// second alert.
	tripped, _, err = f.w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)
	assert.Len(t, f.notices, 1)

	again, err := ReadStop(filepath.Join(f.dir, "STOP"))
	require.NoError(t, err)
	assert.Equal(t, flag, again)
}

func TestDailyLossFloorTrips(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow)
	f.writeSnapshot(t, testNow, -60)

	tripped, reason, err := f.w.Check()
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Contains(t, reason, "daily loss floor")
}

func TestPreviousDaySnapshotIsIgnored(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow)
	f.writeSnapshot(t, testNow.Add(-24*time.Hour), -60)

	tripped, _, err := f.w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)
}

func TestOrderRateTrips(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow)

	events := store.NewAppendLog(filepath.Join(f.dir, "order_events.log"), "order.event.v1", time.Second)
	for i := 0; i < 4; i++ {
		_, err := events.Append(schema.OrderEvent{
			Ts:     schema.EpochSeconds(testNow.Add(-10 * time.Second)),
			Kind:   schema.OrderEventOpen,
			Symbol: "BTC-USD",
		})
		require.NoError(t, err)
	}

	tripped, reason, err := f.w.Check()
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Contains(t, reason, "order rate exceeded")
}

func TestOldOrderEventsOutsideWindowPass(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow)

	events := store.NewAppendLog(filepath.Join(f.dir, "order_events.log"), "order.event.v1", time.Second)
	for i := 0; i < 10; i++ {
		_, err := events.Append(schema.OrderEvent{
			Ts:   schema.EpochSeconds(testNow.Add(-5 * time.Minute)),
			Kind: schema.OrderEventOpen,
		})
		require.NoError(t, err)
	}

	tripped, _, err := f.w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)
}

func TestOrderRateWindowIsIncremental(t *testing.T) {
	dir := t.TempDir()
	now := testNow
	logPath := filepath.Join(dir, "order_events.log")
	w := New(Config{
		HealthPath:       filepath.Join(dir, "health.json"),
		StopFlagPath:     filepath.Join(dir, "STOP"),
		RiskSnapshotPath: filepath.Join(dir, "risk_day.json"),
		Events:           store.NewAppendLog(logPath, "order.event.v1", time.Second),
		HeartbeatMax:     120 * time.Second,
		RateWindow:       time.Minute,
		RateLimit:        3,
		Now:              func() time.Time { return now },
	})
	beat := func(at time.Time) {
		hw := health.NewWriter(filepath.Join(dir, "health.json"), "paper", func() time.Time { return at })
		require.NoError(t, hw.Beat(0, 0, 0, ""))
	}
	events := store.NewAppendLog(logPath, "order.event.v1", time.Second)
	appendBatch := func(at time.Time, n int) {
		for i := 0; i < n; i++ {
			_, err := events.Append(schema.OrderEvent{
				Ts:     schema.EpochSeconds(at),
				Kind:   schema.OrderEventOpen,
				Symbol: "BTC-USD",
			})
			require.NoError(t, err)
		}
	}

	beat(now)
	appendBatch(now, 3)
	tripped, _, err := w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), w.eventsOffset)

	// A pass with no new events stays at the same offset.
	tripped, _, err = w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)
	assert.Equal(t, info.Size(), w.eventsOffset)

	// Two minutes on, the first batch has aged out of the window; a
	// fresh batch of three passes even with six events on disk.
	now = now.Add(2 * time.Minute)
	beat(now)
	appendBatch(now, 3)
	tripped, _, err = w.Check()
	require.NoError(t, err)
	assert.False(t, tripped)

	appendBatch(now, 1)
	tripped, reason, err := w.Check()
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Contains(t, reason, "order rate exceeded")
}

func TestTruncatedOrderEventLogTrips(t *testing.T) {
	f := newFixture(t, testNow)
	f.beat(t, testNow)

	events := store.NewAppendLog(filepath.Join(f.dir, "order_events.log"), "order.event.v1", time.Second)
	_, err := events.Append(schema.OrderEvent{
		Ts:   schema.EpochSeconds(testNow.Add(-10 * time.Second)),
		Kind: schema.OrderEventOpen,
	})
	require.NoError(t, err)

	tripped, _, err := f.w.Check()
	require.NoError(t, err)
	require.False(t, tripped)

	require.NoError(t, os.Truncate(filepath.Join(f.dir, "order_events.log"), 0))
	tripped, reason, err := f.w.Check()
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Contains(t, reason, "order event log")
}

func TestWriteReadStopFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "STOP")
	require.NoError(t, WriteStop(path, "manual halt", testNow))

	flag, err := ReadStop(path)
	require.NoError(t, err)
	assert.Equal(t, "manual halt", flag.Reason)
	assert.Equal(t, "2026-02-10T12:00:00Z", flag.Ts)
}
