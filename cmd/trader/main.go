package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"tradecore/internal/core"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/watchdog"
)

// Exit codes: 0 clean shutdown, 1 fatal error, 2 stop flag present.
const (
	exitOK      = 0
	exitFatal   = 1
	exitStopped = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to JSON config")
	mode := flag.String("mode", "", "Run mode override: dry-run, paper or live")
	dataDir := flag.String("data-dir", "", "Data directory override")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return exitFatal
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.ServeMetrics(cfg.Obs.MetricsAddr)
	if stopProfiler := startProfiler(cfg); stopProfiler != nil {
		defer stopProfiler()
	}

	c, err := core.Build(cfg, nil)
	if err != nil {
		logs.Errorf("startup failed: %v", err)
		return exitFatal
	}

	if err := c.Run(ctx); err != nil {
		if errors.Is(err, core.ErrStopped) {
			if f, readErr := watchdog.ReadStop(cfg.StopFlagPath()); readErr == nil {
				logs.Errorf("stop flag present: %s (%s)", f.Reason, f.Ts)
			} else {
				logs.Errorf("stop flag present")
			}
			return exitStopped
		}
		logs.Errorf("trading loop failed: %v", err)
		return exitFatal
	}
	logs.Info("shutdown complete")
	return exitOK
}

func startProfiler(cfg ops.Config) func() {
	if cfg.Obs.PyroscopeURL == "" {
		return nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "tradecore.trader",
		ServerAddress:   cfg.Obs.PyroscopeURL,
		Tags:            map[string]string{"mode": cfg.Mode},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		logs.Errorf("pyroscope start failed: %v", err)
		return nil
	}
	return func() {
		_ = profiler.Stop()
	}
}
