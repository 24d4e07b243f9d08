// Package main provides the go-browser-perf CLI entry point.
//
// go-browser-perf loads web pages repeatedly in a real Chrome or Edge and
// reports timings, HAR files, CPU usage and visual metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/randomizedcoder/go-browser-perf/internal/config"
	"github.com/randomizedcoder/go-browser-perf/internal/logging"
	"github.com/randomizedcoder/go-browser-perf/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-browser-perf
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-browser-perf %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Apply --check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error:\n%v\n", err)
		return 1
	}

	if cfg.Check {
		logger.Info("check_mode_enabled", "iterations", cfg.Iterations)
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"urls", cfg.URLs,
		"iterations", cfg.Iterations,
		"browser", cfg.Browser,
		"config_file", cfg.ConfigFile,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	// Create and run orchestrator
	orch, err := orchestrator.New(cfg, logger, orchestrator.WithVersion(version))
	if err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        go-browser-perf                            ║")
	fmt.Println("║          Web Page Performance in a Real Browser                   ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  URLs:        %s\n", strings.Join(cfg.URLs, ", "))
	fmt.Printf("  Iterations:  %d\n", cfg.Iterations)
	fmt.Printf("  Browser:     %s (headless: %v)\n", cfg.Browser, cfg.Headless)
	if cfg.NeedsVideo() {
		fmt.Printf("  Video:       display :%d at %d fps\n", cfg.Display, cfg.Framerate)
	}
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
