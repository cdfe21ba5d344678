package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"find-me-internet/internal/config"
	"find-me-internet/internal/dedup"
	"find-me-internet/internal/display"
	"find-me-internet/internal/filter"
	"find-me-internet/internal/geoip"
	"find-me-internet/internal/logger"
	"find-me-internet/internal/model"
	"find-me-internet/internal/parser"
	"find-me-internet/internal/portalloc"
	"find-me-internet/internal/scanner"
	"find-me-internet/internal/sink"
	"find-me-internet/internal/source"
	"find-me-internet/internal/telegram"
	"find-me-internet/internal/tester"
)

const notifyTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.Setup(cfg.LogLevel, os.Stdout)

	// Ctrl+C stops launching work; finished chunks stay on disk.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("scan_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	endpoints, input, err := loadEndpoints(ctx, cfg)
	if err != nil {
		return err
	}

	ports, err := portalloc.New(cfg.PortStrategy, cfg.PortMin, cfg.PortMax)
	if err != nil {
		return err
	}
	runner := tester.NewRunner(cfg.SingBoxPath, cfg.TestURL, cfg.TestTimeout, ports)
	runner.SettleDelay = cfg.SettleDelay
	runner.StopTimeout = cfg.StopTimeout

	if cfg.VerifyEnabled {
		if err := runner.Ensure(); err != nil {
			if cfg.RequireEngine {
				return fmt.Errorf("%w: %v", scanner.ErrEngineRequired, err)
			}
			slog.Warn("engine_unavailable", "bin", cfg.SingBoxPath, "policy", "reachability_only")
		}
	}

	reach := filter.NewPipeline(cfg.TCPTries, cfg.TCPTimeout)
	reach.UDPEnabled = cfg.UDPEnabled
	reach.UDPTimeout = cfg.UDPTimeout
	reach.TLSEnabled = cfg.TLSCheck

	checker := &scanner.Checker{
		Reach:         reach,
		Verifier:      runner,
		VerifyEnabled: cfg.VerifyEnabled,
	}
	if cfg.GeoIPPath != "" {
		db, err := geoip.Open(cfg.GeoIPPath)
		if err != nil {
			slog.Warn("geoip_unavailable", "path", cfg.GeoIPPath, "error", err)
		} else {
			defer db.Close()
			checker.Countries = db
		}
	}
	verified := checker.Verified()

	// Output files must exist before any chunk runs.
	paths := sink.NewRunPaths(cfg.OutputRoot, time.Now())
	out, err := sink.Open(paths, cfg.JSONLOutputPath)
	if err != nil {
		return fmt.Errorf("init output: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			slog.Error("output_close_failed", "error", err)
		}
	}()

	slog.Info("scan_start",
		"input", input,
		"configs", len(endpoints),
		"workers", cfg.Workers,
		"chunk_size", cfg.ChunkSize,
		"engine", verified,
		"results", paths.Results,
	)

	progress := display.NewProgressDisplay(len(endpoints), verified)
	sc := scanner.New(checker, out, scanner.Options{
		Workers:   cfg.Workers,
		ChunkSize: cfg.ChunkSize,
		Verified:  verified,
	})
	sc.OnResult = progress.OnResult
	sc.OnChunk = progress.OnChunk

	summary, err := sc.Run(ctx, endpoints)
	progress.Finish(summary.State)
	if err != nil {
		return err
	}
	display.PrintSummary(os.Stdout, summary, paths)

	if cfg.NotifyEnabled() && summary.Alive > 0 {
		notify(cfg, paths.Alive)
	}
	return nil
}

func loadEndpoints(ctx context.Context, cfg *config.Config) ([]model.Endpoint, string, error) {
	var (
		lines []string
		input string
		err   error
	)
	if cfg.InputURL != "" {
		input = cfg.InputURL
		lines, err = source.LoadFromURL(ctx, cfg.InputURL)
	} else {
		input = cfg.InputPath
		lines, err = source.LoadFromFile(cfg.InputPath)
	}
	if err != nil {
		return nil, input, fmt.Errorf("load input %s: %w", input, err)
	}

	endpoints := parser.Extract(lines)
	if cfg.Dedup {
		endpoints = dedup.Unique(endpoints)
	}
	if len(endpoints) == 0 {
		return nil, input, errors.New("no usable descriptors in input")
	}
	slog.Debug("input_parsed", "lines", len(lines), "endpoints", len(endpoints))
	return endpoints, input, nil
}

// notify runs on its own context: the scan context may already be
// cancelled when a stopped run still has alive results worth sending.
func notify(cfg *config.Config, alivePath string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	n := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	sent, err := n.SendProxiesFromFile(ctx, alivePath)
	if err != nil {
		slog.Error("telegram_send_failed", "sent", sent, "error", err)
		return
	}
	slog.Info("telegram_sent", "messages", sent)
}
