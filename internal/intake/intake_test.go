package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newTestIntake(t *testing.T) (*Intake, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "signals.log")
	in, err := New(Config{
		LogPath:     logPath,
		OffsetPath:  filepath.Join(dir, "offset.json"),
		TTL:         5 * time.Minute,
		DedupWindow: 60 * time.Second,
		LockTimeout: time.Second,
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return in, logPath
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func signalLine(symbol string, side schema.Side, age time.Duration) string {
	ts := schema.EpochSeconds(testNow.Add(-age))
	return fmt.Sprintf(`{"ts":%.3f,"symbol":%q,"side":%q,"price":100,"risk_usd":25,"source":"test"}`+"\n",
		ts, symbol, side)
}

func TestPollNextReturnsBufferedSignal(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, time.Minute))

	sig, err := in.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "BTC-USD", sig.Symbol)
	assert.Equal(t, schema.SideLong, sig.Side)
	assert.Equal(t, 0, in.QueueDepth())
}

func TestPollNextPrefersCloseWhilePositionOpen(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, 2*time.Minute))
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideClose, time.Minute))

	sig, err := in.PollNext(true)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, schema.SideClose, sig.Side)

	// The opening signal stays withheld while a position is open.
	sig, err = in.PollNext(true)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, 1, in.QueueDepth())

	sig, err = in.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, schema.SideLong, sig.Side)
}

func TestPollNextReturnsEarliestFirst(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("ETH-USD", schema.SideShort, time.Minute))
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, 3*time.Minute))

	sig, err := in.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "BTC-USD", sig.Symbol)
}

func TestStaleSignalsAreDropped(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, 10*time.Minute))

	sig, err := in.PollNext(false)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, uint64(1), in.Stats().Stale)
}

func TestDuplicateWithinWindowIsDropped(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, 90*time.Second))
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, 60*time.Second))
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideShort, 60*time.Second))

	sig, err := in.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)

	st := in.Stats()
	assert.Equal(t, uint64(1), st.Duplicates, "same (symbol, side) within the window")
	assert.Equal(t, uint64(2), st.Accepted, "a different side is not a duplicate")
}

func TestRepeatOutsideWindowIsKept(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, 4*time.Minute))
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, time.Minute))

	_, err := in.PollNext(false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), in.Stats().Accepted)
	assert.Equal(t, uint64(0), in.Stats().Duplicates)
}

func TestMalformedLinesAreCountedNotFatal(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, "not json at all\n")
	appendLine(t, logPath, `{"ts":0,"symbol":"BTC-USD","side":"LONG"}`+"\n")
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, time.Minute))

	sig, err := in.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, uint64(2), in.Stats().Malformed)
}

func TestIncompleteTrailingLineWaitsForNextPoll(t *testing.T) {
	in, logPath := newTestIntake(t)
	full := signalLine("BTC-USD", schema.SideLong, time.Minute)
	appendLine(t, logPath, full[:len(full)-10])

	sig, err := in.PollNext(false)
	require.NoError(t, err)
	assert.Nil(t, sig)

	appendLine(t, logPath, full[len(full)-10:])
	sig, err = in.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "BTC-USD", sig.Symbol)
}

func TestOffsetSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "signals.log")
	offsetPath := filepath.Join(dir, "offset.json")
	cfg := Config{
		LogPath:     logPath,
		OffsetPath:  offsetPath,
		TTL:         5 * time.Minute,
		DedupWindow: time.Second,
		LockTimeout: time.Second,
		Now:         func() time.Time { return testNow },
	}

	first, err := New(cfg)
	require.NoError(t, err)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, time.Minute))
	sig, err := first.PollNext(false)
	require.NoError(t, err)
	require.NotNil(t, sig)

	// A fresh intake must not replay the consumed line.
	second, err := New(cfg)
	require.NoError(t, err)
	sig, err = second.PollNext(false)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, uint64(0), second.Stats().LinesRead)
}

func TestShrunkenLogIsFatal(t *testing.T) {
	in, logPath := newTestIntake(t)
	appendLine(t, logPath, signalLine("BTC-USD", schema.SideLong, time.Minute))
	_, err := in.PollNext(false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(logPath, nil, 0o644))
	_, err = in.PollNext(false)
	assert.ErrorIs(t, err, ErrLogShrank)
}
