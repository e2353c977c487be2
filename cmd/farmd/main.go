package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epkfarm/config"
	"epkfarm/core"
	"epkfarm/core/events"
	"epkfarm/core/genesis"
	"epkfarm/gateway/middleware"
	"epkfarm/gateway/routes"
	"epkfarm/observability"
	"epkfarm/observability/logging"
	"epkfarm/observability/metrics"
	telemetry "epkfarm/observability/otel"
	"epkfarm/services/eventindex"
)

const (
	configPathEnv  = "EPKFARM_CONFIG"
	genesisPathEnv = "EPKFARM_GENESIS"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "farmd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaultConfig := os.Getenv(configPathEnv)
	if defaultConfig == "" {
		defaultConfig = "./config.toml"
	}
	cfgPath := flag.String("config", defaultConfig, "path to the node configuration file")
	genesisPath := flag.String("genesis", os.Getenv(genesisPathEnv), "optional genesis file overriding GenesisFile")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *genesisPath != "" {
		cfg.GenesisFile = *genesisPath
	}

	logger, logCloser := logging.Setup(cfg.LoggingConfig())
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.GenesisFile != "" {
		applied, err := genesis.LoadAndApply(cfg.GenesisFile, db)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis", "file", cfg.GenesisFile, "applied", applied)
	}

	start, err := resumeHeight(db, cfg.Clock.StartHeight)
	if err != nil {
		return err
	}
	clock := core.NewTickerClock(start, cfg.BlockInterval(), nil, logger.With("component", "clock"))

	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, clock, nodeCfg)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}
	node.SetLogger(logger)
	node.SetMetrics(metrics.Farm())

	emitters := events.Fanout{observability.Events()}
	var history routes.EventHistory
	if cfg.Index.Enabled {
		gdb, err := eventindex.Open(cfg.Index.Driver, cfg.Index.DSN)
		if err != nil {
			return fmt.Errorf("open event index: %w", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		store, err := eventindex.NewStore(gdb)
		if err != nil {
			return err
		}
		emitters = append(emitters, eventindex.NewIndexer(store, clock, logger))
		history = store
	}
	node.SetEmitter(emitters)

	gw := cfg.Gateway
	limits := make([]middleware.RateLimit, 0, len(gw.RateLimits))
	for _, limit := range gw.RateLimits {
		limits = append(limits, middleware.RateLimit{
			ID:                limit.ID,
			RequestsPerMinute: limit.RequestsPerMinute,
			Burst:             limit.Burst,
			Paths:             limit.Paths,
		})
	}
	routerCfg := routes.Config{
		Node:    node,
		History: history,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:           gw.Auth.Enabled,
			HMACSecret:        gw.Auth.HMACSecret,
			Issuer:            gw.Auth.Issuer,
			Audience:          gw.Auth.Audience,
			ClockSkew:         gw.Auth.ClockSkew(),
			AllowCallerHeader: gw.Auth.AllowCallerHeader,
		}, logger),
		RateLimiter:    middleware.NewRateLimiter(limits, logger),
		Observability:  middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: gw.LogRequests}, logger),
		RequestTimeout: gw.RequestTimeout(),
		ServiceName:    cfg.Observability.ServiceName,
	}
	if cfg.Observability.MetricsAddress == "" {
		routerCfg.MetricsHandler = promhttp.Handler()
	}

	servers := []*http.Server{{
		Addr:         gw.ListenAddress,
		Handler:      routes.New(routerCfg),
		ReadTimeout:  gw.ReadTimeout(),
		WriteTimeout: gw.WriteTimeout(),
		IdleTimeout:  gw.IdleTimeout(),
	}}
	if addr := cfg.Observability.MetricsAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go clock.Run(ctx)

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
		logger.Error("server failed", "error", runErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			logger.Warn("forced server close", "addr", srv.Addr, "error", err)
		}
	}
	if report, err := node.Audit(shutdownCtx); err != nil {
		logger.Error("shutdown audit failed", "error", err)
	} else {
		logger.Info("shutdown audit", slog.Int("stakers", report.Stakers), slog.Uint64("height", report.Height))
	}
	return runErr
}
