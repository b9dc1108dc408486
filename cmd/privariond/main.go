// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Privariond is the mediation daemon. It loads the protection policy
// set, assembles the handler chain, connects to the kernel event
// bridge, and renders allow/deny verdicts for security-sensitive
// events until it is signalled to stop.
//
// On startup:
//  1. Loads configuration (--config flag or PRIVARION_CONFIG).
//  2. Loads policy documents from the policy directory.
//  3. Opens the audit log (and its encryption key, when configured).
//  4. Builds the handler chain and processor.
//  5. Connects and subscribes to the bridge, publishing lifecycle
//     status transitions to the status file.
//  6. Runs until SIGINT/SIGTERM or a bridge disconnect.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/privarion/privarion/audit"
	"github.com/privarion/privarion/bridge"
	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/handler"
	"github.com/privarion/privarion/lib/config"
	"github.com/privarion/privarion/lib/secret"
	"github.com/privarion/privarion/lifecycle"
	"github.com/privarion/privarion/policy"
	"github.com/privarion/privarion/processor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		logLevel   string
	)
	pflag.StringVar(&configPath, "config", "", "path to privarion.yaml (overrides PRIVARION_CONFIG)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runDaemon(ctx, cfg, logger)
}

func newLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})), nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("PRIVARION_CONFIG") != "" {
		return config.Load()
	}
	// No config specified: run on defaults.
	return config.Default(), nil
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	setStatus := func(status lifecycle.Status) {
		if err := lifecycle.WriteStatus(cfg.Paths.StatusFile, status); err != nil {
			logger.Error("writing status file", "path", cfg.Paths.StatusFile, "error", err)
		}
	}
	failWith := func(cause error) error {
		setStatus(lifecycle.ErrorStatus(cause.Error()))
		return cause
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.StatusFile), 0o755); err != nil {
		return fmt.Errorf("creating status directory: %w", err)
	}
	setStatus(lifecycle.Status{Type: lifecycle.StatusActivating})

	// Policies.
	store := policy.NewStore()
	loaded, err := policy.LoadDirectory(store, cfg.Paths.PolicyDir)
	if err != nil {
		return failWith(fmt.Errorf("loading policies from %s: %w", cfg.Paths.PolicyDir, err))
	}
	logger.Info("policies loaded", "directory", cfg.Paths.PolicyDir, "count", loaded)

	// Audit trail.
	options, key, err := auditOptions(cfg)
	if err != nil {
		return failWith(err)
	}
	if key != nil {
		defer key.Close()
	}
	auditLog, err := audit.Open(cfg.Paths.AuditDir, options)
	if err != nil {
		return failWith(fmt.Errorf("opening audit log: %w", err))
	}
	defer auditLog.Close()

	// Handler chain. Registration order is side-effect order: the
	// logging handler records every event before any filter can deny
	// it.
	chain := handler.NewChain(
		handler.NewLoggingHandler(logger, auditLog),
		handler.NewSuspiciousPathBlocker(logger, cfg.Mediation.SuspiciousPaths...),
		handler.NewSensitiveFileAccessMonitor(logger, auditLog, cfg.Mediation.SensitivePatterns...),
		handler.NewRateLimitingHandler(logger, cfg.Mediation.MaxExecutionsPerSecond),
		handler.NewNetworkPolicyHandler(logger, auditLog),
		handler.NewDNSPolicyHandler(logger),
	)
	mediator := processor.New(store, chain, processor.Options{
		Budget: cfg.Mediation.Budget,
		Logger: logger,
	})

	// Bridge subscription.
	categories, err := subscribeCategories(cfg)
	if err != nil {
		return failWith(err)
	}
	source := bridge.NewSource(cfg.Paths.BridgeSocket, logger)
	client := lifecycle.NewClient(source, mediator, logger)

	if err := client.Initialize(ctx); err != nil {
		return failWith(fmt.Errorf("initializing bridge client: %w", err))
	}
	if err := client.Subscribe(ctx, categories); err != nil {
		return failWith(fmt.Errorf("subscribing to bridge events: %w", err))
	}
	setStatus(lifecycle.Status{Type: lifecycle.StatusActive})
	logger.Info("mediation active",
		"bridge_socket", cfg.Paths.BridgeSocket,
		"categories", len(categories),
		"budget", cfg.Mediation.Budget)

	// Run until shutdown or disconnect.
	select {
	case <-ctx.Done():
		setStatus(lifecycle.Status{Type: lifecycle.StatusDeactivating})
		if err := client.Unsubscribe(); err != nil {
			return failWith(fmt.Errorf("unsubscribing: %w", err))
		}
		setStatus(lifecycle.Status{Type: lifecycle.StatusInstalled})
		logger.Info("shutdown complete")
		return nil
	case <-client.Done():
		// The client's disconnect watcher consumed the source's Done
		// value and recorded the cause; read it back for the status
		// file.
		_, message := client.State()
		if message == "" {
			message = "bridge connection lost"
		}
		return failWith(errors.New(message))
	}
}

// auditOptions builds the audit log options from configuration,
// loading the encryption key when one is configured. The key file
// content moves into an mlock'd buffer and the caller owns closing
// it.
func auditOptions(cfg *config.Config) (audit.Options, *secret.Buffer, error) {
	compression, err := audit.ParseCompression(cfg.Audit.Compression)
	if err != nil {
		return audit.Options{}, nil, err
	}
	options := audit.Options{
		MaxSegmentBytes: cfg.Audit.MaxSegmentBytes,
		Compression:     compression,
	}

	if cfg.Audit.KeyFile == "" {
		return options, nil, nil
	}
	keyBytes, err := os.ReadFile(cfg.Audit.KeyFile)
	if err != nil {
		return audit.Options{}, nil, fmt.Errorf("reading audit key file: %w", err)
	}
	if len(keyBytes) != audit.KeySize {
		return audit.Options{}, nil, fmt.Errorf("audit key file %s holds %d bytes, want %d",
			cfg.Audit.KeyFile, len(keyBytes), audit.KeySize)
	}
	key, err := secret.NewFromBytes(keyBytes)
	if err != nil {
		return audit.Options{}, nil, fmt.Errorf("sealing audit key in memory: %w", err)
	}
	options.Key = key
	return options, key, nil
}

func subscribeCategories(cfg *config.Config) ([]event.Category, error) {
	if len(cfg.Mediation.Categories) == 0 {
		return event.Categories(), nil
	}
	categories := make([]event.Category, 0, len(cfg.Mediation.Categories))
	for _, name := range cfg.Mediation.Categories {
		category, err := event.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("mediation.categories: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, nil
}
