// Package watchdog is the independent supervisory loop. It monitors the
// heartbeat, the daily PnL and the order rate through files only, and on
// any trip performs one irreversible action: writing the stop flag. It
// never restarts the core and never clears the flag.
package watchdog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/health"
	"tradecore/internal/schema"
	"tradecore/internal/store"
)

const (
	DefaultInterval     = 15 * time.Second
	DefaultHeartbeatMax = 120 * time.Second
)

// Config wires the watchdog to the core's files and thresholds.
type Config struct {
	HealthPath       string
	StopFlagPath     string
	RiskSnapshotPath string
	Events           *store.AppendLog

	// HeartbeatMax is the oldest a health record may be before the core
	// is treated as hung or crashed.
	HeartbeatMax time.Duration
	// DailyLossFloorUSD trips the breaker immediately, independent of
	// heartbeat freshness.
	DailyLossFloorUSD float64
	// RateWindow/RateLimit bound order events in a sliding window,
	// guarding against a runaway loop.
	RateWindow time.Duration
	RateLimit  int

	Interval time.Duration

	Now func() time.Time
	// Notify runs after the stop flag is durably written, never before.
	Notify func(reason string)
}

// Watchdog polls the shared files and trips the stop flag on any breach.
type Watchdog struct {
	cfg Config

	// Incremental view of the order-event log: only bytes past
	// eventsOffset are read each pass, and recent keeps the event
	// timestamps still inside the rate window.
	eventsOffset int64
	recent       []float64
}

// New applies defaults and returns a ready watchdog.
func New(cfg Config) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HeartbeatMax <= 0 {
		cfg.HeartbeatMax = DefaultHeartbeatMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watchdog{cfg: cfg}
}

// Run polls until the context is canceled. A trip does not stop the
// loop; the flag simply stays down and later checks are no-ops.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tripped, reason, err := w.Check()
			if err != nil {
				logs.Errorf("watchdog: check failed: %v", err)
				continue
			}
			if tripped {
				logs.Infof("watchdog: tripped: %s", reason)
			}
		}
	}
}

// Check runs one supervision pass. The stop flag is written at most
// once: an existing flag short-circuits everything.
func (w *Watchdog) Check() (tripped bool, reason string, err error) {
	if StopExists(w.cfg.StopFlagPath) {
		return false, "", nil
	}
	now := w.cfg.Now()

	if reason := w.heartbeatBreach(now); reason != "" {
		return true, reason, w.trip(reason, now)
	}
	if reason := w.breakerBreach(now); reason != "" {
		return true, reason, w.trip(reason, now)
	}
	breach, err := w.rateBreach(now)
	if err != nil {
		// Unreadable audit log is itself an unknown state: halt.
		reason := fmt.Sprintf("order event log unreadable: %v", err)
		return true, reason, w.trip(reason, now)
	}
	if breach != "" {
		return true, breach, w.trip(breach, now)
	}
	return false, "", nil
}

func (w *Watchdog) heartbeatBreach(now time.Time) string {
	rec, err := health.Read(w.cfg.HealthPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "heartbeat file missing"
		}
		return fmt.Sprintf("heartbeat unreadable: %v", err)
	}
	if age := health.Age(rec, now); age > w.cfg.HeartbeatMax {
		return fmt.Sprintf("heartbeat stale: age=%s max=%s", age.Truncate(time.Second), w.cfg.HeartbeatMax)
	}
	return ""
}

func (w *Watchdog) breakerBreach(now time.Time) string {
	var snap schema.RiskSnapshot
	if err := store.Load(w.cfg.RiskSnapshotPath, &snap); err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		return fmt.Sprintf("risk snapshot unreadable: %v", err)
	}
	dayOpen, err := time.Parse(time.RFC3339, snap.DayOpenISO)
	if err != nil || !sameUTCDay(dayOpen, now) {
		// A previous day's snapshot carries no live breach.
		return ""
	}
	if snap.DailyPnL <= w.cfg.DailyLossFloorUSD {
		return fmt.Sprintf("daily loss floor breached: pnl=%.2f floor=%.2f", snap.DailyPnL, w.cfg.DailyLossFloorUSD)
	}
	return ""
}

func (w *Watchdog) rateBreach(now time.Time) (string, error) {
	if w.cfg.Events == nil || w.cfg.RateLimit <= 0 || w.cfg.RateWindow <= 0 {
		return "", nil
	}
	if info, err := os.Stat(w.cfg.Events.Path()); err == nil && info.Size() < w.eventsOffset {
		return "", errors.New("order event log shrank below read offset")
	}
	events, next, err := store.ReadFrom[schema.OrderEvent](w.cfg.Events, w.eventsOffset)
	if err != nil {
		return "", err
	}
	w.eventsOffset = next
	for _, ev := range events {
		w.recent = append(w.recent, ev.Ts)
	}

	cutoff := schema.EpochSeconds(now.Add(-w.cfg.RateWindow))
	kept := w.recent[:0]
	for _, ts := range w.recent {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	w.recent = kept

	if len(w.recent) > w.cfg.RateLimit {
		return fmt.Sprintf("order rate exceeded: %d events in %s (limit %d)", len(w.recent), w.cfg.RateWindow, w.cfg.RateLimit), nil
	}
	return "", nil
}

// trip writes the stop flag, then notifies. Alerting never gates the
// write.
func (w *Watchdog) trip(reason string, now time.Time) error {
	if err := WriteStop(w.cfg.StopFlagPath, reason, now); err != nil {
		return err
	}
	if w.cfg.Notify != nil {
		w.cfg.Notify(reason)
	}
	return nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
