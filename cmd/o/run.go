package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// runRun loads config, bootstraps @root and the scheduler, and runs
// the autonomous tick loop until SIGINT/SIGTERM or MaxTicks is
// reached.
func runRun(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(cfg)

	logger.Info("starting O", "tick_interval", cfg.TickInterval, "state_dir", cfg.StateDir, "memory_dir", cfg.MemoryDir)

	rt, err := bootstrap(logger, cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if rt.Channel != nil {
		startChannel(ctx, rt.Channel, logger)
	}

	logger.Info("entering tick loop", "max_ticks", cfg.MaxTicks)
	if err := rt.Scheduler.Run(ctx); err != nil {
		logger.Error("scheduler run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete", "final_tick", rt.World.Clock())
}
