// Package intake tails the external signal log and hands the trading loop
// the next admissible signal: exits before entries, no duplicates, no
// stale signals, exactly-once consumption across restarts.
package intake

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
	"tradecore/internal/store"
	"tradecore/pkg/flock"
)

var ErrLogShrank = errors.New("intake: signal log shrank below persisted offset")

const (
	DefaultTTL         = 5 * time.Minute
	DefaultDedupWindow = 60 * time.Second
)

// Config wires the intake to its two files and tuning knobs.
type Config struct {
	LogPath    string
	OffsetPath string

	// TTL drops signals whose reported time is older than this.
	TTL time.Duration
	// DedupWindow suppresses a repeat (symbol, side) within this span of
	// signal-reported time.
	DedupWindow time.Duration

	LockTimeout time.Duration

	// Now is swappable for tests.
	Now func() time.Time
}

// Stats counts intake outcomes since startup.
type Stats struct {
	LinesRead  uint64
	Malformed  uint64
	Stale      uint64
	Duplicates uint64
	Accepted   uint64
}

type offsetState struct {
	Offset int64 `json:"offset"`
}

// Intake consumes the signal log incrementally. The byte offset is
// persisted after every consumed line so a crash never replays an
// already-consumed line nor skips a partially written one.
type Intake struct {
	cfg    Config
	offset int64
	buffer []schema.Signal
	recent map[schema.DedupKey]time.Time
	lastGC time.Time
	stats  Stats
}

// New loads the persisted offset (zero when absent) and returns a ready
// intake.
func New(cfg Config) (*Intake, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	in := &Intake{
		cfg:    cfg,
		recent: make(map[schema.DedupKey]time.Time),
	}
	var st offsetState
	if err := store.Load(cfg.OffsetPath, &st); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "load intake offset")
		}
	} else {
		in.offset = st.Offset
	}
	in.lastGC = cfg.Now()
	return in, nil
}

// PollNext ingests new log lines and returns the next signal to act on.
// CLOSE signals win, earliest first; opening signals are withheld while a
// position is open. Returns nil when nothing is admissible.
func (i *Intake) PollNext(hasOpenPosition bool) (*schema.Signal, error) {
	if err := i.ingest(); err != nil {
		return nil, err
	}
	i.pruneStale()
	i.gc()

	if idx := i.earliest(func(s schema.Signal) bool { return s.Side == schema.SideClose }); idx >= 0 {
		return i.pop(idx), nil
	}
	if hasOpenPosition {
		return nil, nil
	}
	if idx := i.earliest(func(s schema.Signal) bool { return s.Side.Opening() }); idx >= 0 {
		return i.pop(idx), nil
	}
	return nil, nil
}

// QueueDepth reports how many signals are buffered and undispatched.
func (i *Intake) QueueDepth() int {
	return len(i.buffer)
}

// Stats returns a copy of the intake counters.
func (i *Intake) Stats() Stats {
	return i.stats
}

func (i *Intake) ingest() error {
	lk, err := flock.Acquire(i.cfg.LogPath+".lock", i.cfg.LockTimeout)
	if err != nil {
		return errors.Wrap(err, "acquire signal log lock")
	}
	defer func() {
		_ = lk.Release()
	}()

	f, err := os.Open(i.cfg.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "open signal log")
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat signal log")
	}
	if info.Size() < i.offset {
		return ErrLogShrank
	}
	if _, err := f.Seek(i.offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek signal log")
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Incomplete trailing write stays for the next poll.
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read signal log")
		}
		i.consume(line)
		if err := i.advance(int64(len(line))); err != nil {
			return err
		}
	}
}

// consume classifies one complete line: malformed, stale, duplicate, or
// buffered. Never fatal.
func (i *Intake) consume(line []byte) {
	i.stats.LinesRead++
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var sig schema.Signal
	if err := sonic.Unmarshal(line, &sig); err != nil {
		i.stats.Malformed++
		logs.Infof("intake: dropped malformed line: %v", err)
		return
	}
	if sig.Symbol == "" || !sig.Side.Valid() || sig.Ts <= 0 {
		i.stats.Malformed++
		return
	}

	now := i.cfg.Now()
	if now.Sub(sig.Time()) > i.cfg.TTL {
		i.stats.Stale++
		return
	}

	key := sig.Dedup()
	if last, ok := i.recent[key]; ok {
		delta := sig.Time().Sub(last)
		if delta < 0 {
			delta = -delta
		}
		if delta < i.cfg.DedupWindow {
			i.stats.Duplicates++
			return
		}
	}

	i.recent[key] = sig.Time()
	i.buffer = append(i.buffer, sig)
	i.stats.Accepted++
}

func (i *Intake) advance(n int64) error {
	i.offset += n
	if err := store.Replace(i.cfg.OffsetPath, offsetState{Offset: i.offset}); err != nil {
		return errors.Wrap(err, "persist intake offset")
	}
	return nil
}

// pruneStale drops buffered signals that aged past the TTL while queued.
func (i *Intake) pruneStale() {
	now := i.cfg.Now()
	kept := i.buffer[:0]
	for _, s := range i.buffer {
		if now.Sub(s.Time()) > i.cfg.TTL {
			i.stats.Stale++
			continue
		}
		kept = append(kept, s)
	}
	i.buffer = kept
}

// gc drops recency entries older than twice the TTL.
func (i *Intake) gc() {
	now := i.cfg.Now()
	if now.Sub(i.lastGC) < i.cfg.TTL {
		return
	}
	for key, t := range i.recent {
		if now.Sub(t) > 2*i.cfg.TTL {
			delete(i.recent, key)
		}
	}
	i.lastGC = now
}

// earliest returns the buffer index of the oldest signal (by reported
// time) matching the filter, or -1.
func (i *Intake) earliest(match func(schema.Signal) bool) int {
	best := -1
	for idx, s := range i.buffer {
		if !match(s) {
			continue
		}
		if best == -1 || s.Ts < i.buffer[best].Ts {
			best = idx
		}
	}
	return best
}

func (i *Intake) pop(idx int) *schema.Signal {
	s := i.buffer[idx]
	i.buffer = append(i.buffer[:idx], i.buffer[idx+1:]...)
	return &s
}
