// Package main is the entry point for the O runtime.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mutantcacti/o/internal/buildinfo"
	"github.com/mutantcacti/o/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "run":
		runRun(logger, *configPath)
	case "exec":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: o exec <command-text>")
			os.Exit(1)
		}
		runExec(logger, *configPath, flag.Arg(1))
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	case "render":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: o render <path>")
			os.Exit(1)
		}
		runRender(flag.Arg(1))
	case "inspect":
		runInspect(logger, *configPath, flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("O - a tick-driven cooperative runtime for autonomous entities")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      Start the tick scheduler and run until shutdown")
	fmt.Println("  exec     Bootstrap and execute a single command as @root")
	fmt.Println("  version  Show version")
	fmt.Println("  render   Render a published markdown artifact to HTML")
	fmt.Println("  inspect  Query the secondary index for a space or entity")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// loadConfig locates and loads the config file, exiting the process on
// failure. A missing config file is not an error: Load is only called
// once FindConfig has resolved a path, and FindConfig returning "" with
// a nil error means no file was found anywhere in the search path, in
// which case the caller falls back to config.Default().
func loadConfig(logger *slog.Logger, explicit string) *config.Config {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if cfgPath == "" {
		logger.Warn("no config file found, using defaults")
		return config.Default()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger.Info("config loaded", "path", cfgPath)
	return cfg
}

// reconfigureLogger rebuilds logger at the level named by cfg.LogLevel,
// once the config (which may override the process's initial Info level)
// is available.
func reconfigureLogger(cfg *config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
