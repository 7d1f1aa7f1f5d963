package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/logs"

	"tradecore/internal/ops"
	"tradecore/internal/store"
	"tradecore/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	dataDir := flag.String("data-dir", "", "Data directory override")
	once := flag.Bool("once", false, "Run a single check and exit")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	w := watchdog.New(watchdog.Config{
		HealthPath:        cfg.HealthPath(),
		StopFlagPath:      cfg.StopFlagPath(),
		RiskSnapshotPath:  cfg.RiskSnapshotPath(),
		Events:            store.NewAppendLog(cfg.OrderEventsPath(), ops.SchemaOrderEvent, cfg.LockTimeout.Std()),
		HeartbeatMax:      cfg.Watch.HeartbeatMax.Std(),
		DailyLossFloorUSD: cfg.Limits.DailyLossFloorUSD,
		RateWindow:        cfg.Watch.RateWindow.Std(),
		RateLimit:         cfg.Watch.RateLimit,
		Interval:          cfg.Watch.Interval.Std(),
		Notify: func(reason string) {
			logs.Errorf("HALT: %s", reason)
		},
	})

	if *once {
		tripped, reason, err := w.Check()
		if err != nil {
			fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
			os.Exit(1)
		}
		if tripped {
			logs.Infof("tripped: %s", reason)
			os.Exit(2)
		}
		logs.Info("healthy")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logs.Infof("watchdog started interval=%s heartbeat_max=%s", cfg.Watch.Interval.Std(), cfg.Watch.HeartbeatMax.Std())
	if err := w.Run(ctx); err != nil {
		logs.Errorf("watchdog failed: %v", err)
		os.Exit(1)
	}
}
