// Package ops loads the runtime configuration: a JSON file, an optional
// .env, and environment overrides, resolved once at startup. There is no
// mid-run reload; the core reads its world from files every cycle instead.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"tradecore/internal/admission"
)

// Run modes. Live mode needs a venue facade wired by the caller; the
// bundled executors cover the first two.
const (
	ModeDryRun = "dry-run"
	ModePaper  = "paper"
	ModeLive   = "live"
)

// Well-known file names under the data directory. Shared by the trader,
// the watchdog and the ops tools, so they are fixed here rather than
// configured per file.
const (
	FileSignals       = "signals.log"
	FileIntakeOffset  = "intake_offset.json"
	FileOpenPositions = "positions_open.json"
	FileHistory       = "positions_closed.log"
	FileOrderEvents   = "order_events.log"
	FileRiskSnapshot  = "risk_day.json"
	FileHealth        = "health.json"
	FileStopFlag      = "STOP"
)

// Schema tags for the append-only logs.
const (
	SchemaClosedPosition = "position.closed.v1"
	SchemaOrderEvent     = "order.event.v1"
)

// Config is the resolved runtime configuration.
type Config struct {
	Mode    string `json:"mode"`
	DataDir string `json:"dataDir"`

	EquityUSD    float64  `json:"equityUsd"`
	LoopInterval Duration `json:"loopInterval"`
	LockTimeout  Duration `json:"lockTimeout"`

	Intake IntakeConfig     `json:"intake"`
	Limits admission.Limits `json:"limits"`
	Exec   ExecConfig       `json:"exec"`
	Watch  WatchConfig      `json:"watchdog"`
	Obs    ObsConfig        `json:"obs"`
}

// IntakeConfig tunes the signal tailer.
type IntakeConfig struct {
	TTL         Duration `json:"ttl"`
	DedupWindow Duration `json:"dedupWindow"`
}

// ExecConfig tunes the execution facade.
type ExecConfig struct {
	BookDir      string   `json:"bookDir"`
	BookMaxAge   Duration `json:"bookMaxAge"`
	SlippageBps  float64  `json:"slippageBps"`
	OrderTimeout Duration `json:"orderTimeout"`
	MaxAttempts  int      `json:"maxAttempts"`
}

// WatchConfig tunes the supervisory loop.
type WatchConfig struct {
	Interval     Duration `json:"interval"`
	HeartbeatMax Duration `json:"heartbeatMax"`
	RateWindow   Duration `json:"rateWindow"`
	RateLimit    int      `json:"rateLimit"`
}

// ObsConfig controls the optional observability surfaces.
type ObsConfig struct {
	MetricsAddr  string `json:"metricsAddr"`
	PyroscopeURL string `json:"pyroscopeUrl"`
}

// Duration parses JSON strings like "30s" as time.Duration.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Mode:         ModeDryRun,
		DataDir:      "data",
		EquityUSD:    1000,
		LoopInterval: Duration(2 * time.Second),
		LockTimeout:  Duration(5 * time.Second),
		Intake: IntakeConfig{
			TTL:         Duration(5 * time.Minute),
			DedupWindow: Duration(60 * time.Second),
		},
		Limits: admission.Limits{
			DailyLossFloorUSD: -50,
			MaxConcurrent:     1,
			MinTradeUSD:       10,
			MaxTradeUSD:       250,
			EquityFraction:    0.25,
			MaxSpreadBps:      50,
			DepthMultiplier:   3,
			MaxImpactBps:      25,
		},
		Exec: ExecConfig{
			BookDir:      "data/orderbooks",
			BookMaxAge:   Duration(30 * time.Second),
			SlippageBps:  5,
			OrderTimeout: Duration(10 * time.Second),
			MaxAttempts:  4,
		},
		Watch: WatchConfig{
			Interval:     Duration(15 * time.Second),
			HeartbeatMax: Duration(120 * time.Second),
			RateWindow:   Duration(time.Minute),
			RateLimit:    30,
		},
	}
}

// Load resolves the configuration: defaults, then the JSON file when
// path is non-empty, then .env and environment overrides, then
// validation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Mode = getenvDefault("TRADECORE_MODE", c.Mode)
	c.DataDir = getenvDefault("TRADECORE_DATA_DIR", c.DataDir)
	c.EquityUSD = floatFromEnv("TRADECORE_EQUITY_USD", c.EquityUSD)
	c.LoopInterval = durationFromEnv("TRADECORE_LOOP_INTERVAL", c.LoopInterval)
	c.Limits.DailyLossFloorUSD = floatFromEnv("TRADECORE_DAILY_LOSS_FLOOR_USD", c.Limits.DailyLossFloorUSD)
	c.Limits.MaxConcurrent = intFromEnv("TRADECORE_MAX_CONCURRENT", c.Limits.MaxConcurrent)
	c.Limits.MinTradeUSD = floatFromEnv("TRADECORE_MIN_TRADE_USD", c.Limits.MinTradeUSD)
	c.Limits.MaxTradeUSD = floatFromEnv("TRADECORE_MAX_TRADE_USD", c.Limits.MaxTradeUSD)
	c.Exec.BookDir = getenvDefault("TRADECORE_BOOK_DIR", c.Exec.BookDir)
	c.Obs.MetricsAddr = getenvDefault("TRADECORE_METRICS_ADDR", c.Obs.MetricsAddr)
	c.Obs.PyroscopeURL = getenvDefault("TRADECORE_PYROSCOPE_URL", c.Obs.PyroscopeURL)
}

// Validate rejects configurations the loop cannot run safely on.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDryRun, ModePaper, ModeLive:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is empty")
	}
	if c.EquityUSD <= 0 {
		return fmt.Errorf("equityUsd must be > 0")
	}
	if c.LoopInterval <= 0 {
		return fmt.Errorf("loopInterval must be > 0")
	}
	if c.Limits.DailyLossFloorUSD >= 0 {
		return fmt.Errorf("limits.dailyLossFloorUsd must be negative")
	}
	if c.Limits.MaxConcurrent < 1 {
		return fmt.Errorf("limits.maxConcurrent must be >= 1")
	}
	if c.Limits.MinTradeUSD < 0 || (c.Limits.MaxTradeUSD > 0 && c.Limits.MaxTradeUSD < c.Limits.MinTradeUSD) {
		return fmt.Errorf("limits.minTradeUsd/maxTradeUsd are inconsistent")
	}
	if c.Limits.EquityFraction < 0 || c.Limits.EquityFraction > 1 {
		return fmt.Errorf("limits.equityFraction must be in [0,1]")
	}
	if c.Watch.HeartbeatMax <= 0 {
		return fmt.Errorf("watchdog.heartbeatMax must be > 0")
	}
	return nil
}

// Path helpers: everything lives under DataDir.

func (c Config) SignalLogPath() string     { return filepath.Join(c.DataDir, FileSignals) }
func (c Config) IntakeOffsetPath() string  { return filepath.Join(c.DataDir, FileIntakeOffset) }
func (c Config) OpenPositionsPath() string { return filepath.Join(c.DataDir, FileOpenPositions) }
func (c Config) HistoryLogPath() string    { return filepath.Join(c.DataDir, FileHistory) }
func (c Config) OrderEventsPath() string   { return filepath.Join(c.DataDir, FileOrderEvents) }
func (c Config) RiskSnapshotPath() string  { return filepath.Join(c.DataDir, FileRiskSnapshot) }
func (c Config) HealthPath() string        { return filepath.Join(c.DataDir, FileHealth) }
func (c Config) StopFlagPath() string      { return filepath.Join(c.DataDir, FileStopFlag) }

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func durationFromEnv(key string, def Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return def
}
