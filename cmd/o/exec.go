package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// runExec bootstraps a runtime and runs a single command as @root
// synchronously, bypassing the wake/external-read/think steps of a
// tick. Used for bootstrap scripting and manual testing; it prints the result and persists the
// (single-execution) tick buffer before exiting.
func runExec(logger *slog.Logger, configPath string, commandText string) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(cfg)

	rt, err := bootstrap(logger, cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	output := rt.Scheduler.ExecuteNow(ctx, rootEntity, commandText)
	fmt.Println(output)

	if err := rt.Scheduler.FlushAndAdvance(ctx); err != nil {
		logger.Error("persisting execution failed", "error", err)
		os.Exit(1)
	}
}
