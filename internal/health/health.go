// Package health writes and reads the heartbeat document the watchdog
// uses to judge whether the trading loop is alive.
package health

import (
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/internal/store"
)

// Writer overwrites the health file atomically once per loop cycle.
type Writer struct {
	path  string
	mode  string
	start time.Time
	now   func() time.Time
}

// NewWriter binds the heartbeat to its file and run mode.
func NewWriter(path, mode string, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{path: path, mode: mode, start: now(), now: now}
}

// Beat publishes the current cycle's health record.
func (w *Writer) Beat(openPositions int, dailyPnL float64, queueSize int, lastError string) error {
	now := w.now()
	rec := schema.HealthRecord{
		Ts:            schema.EpochSeconds(now),
		UptimeSec:     now.Sub(w.start).Seconds(),
		Mode:          w.mode,
		OpenPositions: openPositions,
		DailyPnL:      dailyPnL,
		QueueSize:     queueSize,
		LastError:     lastError,
	}
	if err := store.Replace(w.path, rec); err != nil {
		return errors.Wrap(err, "write heartbeat")
	}
	return nil
}

// Read loads the heartbeat; read-only for everyone but the writer.
func Read(path string) (schema.HealthRecord, error) {
	var rec schema.HealthRecord
	if err := store.Load(path, &rec); err != nil {
		return schema.HealthRecord{}, err
	}
	return rec, nil
}

// Age reports how old the record is relative to now.
func Age(rec schema.HealthRecord, now time.Time) time.Duration {
	return now.Sub(rec.Time())
}
