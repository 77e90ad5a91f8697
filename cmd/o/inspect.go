package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mutantcacti/o/internal/index"
)

// runInspect rebuilds the secondary index from the on-disk logs and
// reports the messages or stdout entries matching a query substring.
// It never touches the scheduler or World — purely a read-side tool
// over files the core already wrote.
func runInspect(logger *slog.Logger, configPath string, args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	space := fs.String("space", "", "space id whose messages to list (exact match)")
	entity := fs.String("entity", "", "entity whose stdout log to list")
	query := fs.String("query", "", "substring to match (used with -space or -entity)")
	fs.Parse(args)

	cfg := loadConfig(logger, configPath)

	dbPath := filepath.Join(cfg.StateDir, "index.db")
	ix, err := index.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o inspect: %v\n", err)
		os.Exit(1)
	}
	defer ix.Close()

	if err := ix.Rebuild(cfg.StateDir, cfg.MemoryDir); err != nil {
		fmt.Fprintf(os.Stderr, "o inspect: rebuild: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *space != "" || (*entity == "" && *query != ""):
		hits, err := ix.QuerySpaceMessages(*query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "o inspect: %v\n", err)
			os.Exit(1)
		}
		for _, h := range hits {
			if *space != "" && h.Space != *space {
				continue
			}
			fmt.Printf("[tick %d] %s %s: %s\n", h.Tick, h.Space, h.Sender, h.Content)
		}
	case *entity != "":
		hits, err := ix.QueryStdout(*query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "o inspect: %v\n", err)
			os.Exit(1)
		}
		for _, h := range hits {
			if h.Entity != *entity {
				continue
			}
			fmt.Printf("[tick %d] %s\n", h.Tick, h.Content)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: o inspect (-space <id>|-entity <id>) [-query <substring>]")
		os.Exit(1)
	}
}
