package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quote_core/internal/config"
	"quote_core/internal/engine"
	"quote_core/internal/history"
	"quote_core/internal/infrastructure/metrics"
	"quote_core/internal/risk"
	"quote_core/internal/session"
	"quote_core/internal/state"
	"quote_core/pkg/logging"
	"quote_core/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/decision_server.yaml", "Path to configuration file")
	listenAddr := flag.String("listen", "", "Session listen address (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("decision_server version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Session.ListenAddr = *listenAddr
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)
	defer logger.Sync()

	logger.Info("starting decision_server",
		"version", version,
		"profile", cfg.App.StrategyProfile,
		"listen_addr", cfg.Session.ListenAddr,
	)

	tel, err := telemetry.Setup("quote_core")
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without it", "error", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("failed to open state store", "error", err)
	}
	defer store.Close()

	kill := risk.NewKillSwitch(cfg.Risk.DrawdownStopFraction)

	eng, err := engine.New(cfg, kill, nil, logger)
	if err != nil {
		logger.Fatal("failed to build engine", "error", err)
	}

	var archiver *history.Archiver
	if cfg.Archive.Enabled {
		archiver = history.NewArchiver(history.Config{
			Workers:   cfg.Archive.Workers,
			QueueSize: cfg.Archive.QueueSize,
		}, store, eng.States(), logger)
		eng.AttachArchiver(archiver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
	}

	server := session.NewServer(cfg.Session, eng, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.Session.ListenAddr)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
	}

	logger.Info("shutting down")
	if archiver != nil {
		archiver.Stop()
	}
	if metricsServer != nil {
		metricsServer.Stop(context.Background())
	}
	if tel != nil {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

func buildStore(cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case config.StateBackendSQLite:
		return state.NewSQLiteStore(cfg.State.SQLitePath)
	default:
		return state.NewMemoryStore(), nil
	}
}
