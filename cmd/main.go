// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	oteltrace "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/absmach/chatflux/cache"
	"github.com/absmach/chatflux/config"
	"github.com/absmach/chatflux/consumer"
	"github.com/absmach/chatflux/producer"
	"github.com/absmach/chatflux/ratelimit"
	"github.com/absmach/chatflux/registry"
	"github.com/absmach/chatflux/server/api"
	"github.com/absmach/chatflux/server/health"
	"github.com/absmach/chatflux/server/otel"
	"github.com/absmach/chatflux/server/websocket"
	"github.com/absmach/chatflux/storage"
	"github.com/absmach/chatflux/storage/memory"
	"github.com/absmach/chatflux/storage/postgres"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Starting chat distribution core", "version", "0.1.0")
	slog.Info("Configuration loaded",
		"http_listener", cfg.Server.HTTPAddr,
		"health_listener", cfg.Server.HealthAddr,
		"brokers", cfg.Broker.Brokers,
		"topic", cfg.Broker.Topic,
		"group_id", cfg.Broker.GroupID,
		"storage_type", cfg.Storage.Type,
		"log_level", cfg.Log.Level)

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	var store storage.Store
	switch cfg.Storage.Type {
	case "memory":
		store = memory.New()
		slog.Info("Using in-memory storage")
	case "postgres":
		pgStore, err := postgres.New(startCtx, cfg.Storage.PostgresURL)
		if err != nil {
			slog.Error("Failed to connect to PostgreSQL", "error", err)
			startCancel()
			os.Exit(1)
		}
		store = pgStore
		slog.Info("Using PostgreSQL storage")
	default:
		slog.Error("Unknown storage type", "type", cfg.Storage.Type)
		startCancel()
		os.Exit(1)
	}
	startCancel()
	defer store.Close()

	var otelShutdown func(context.Context) error
	var metrics *otel.Metrics
	var tracer trace.Tracer

	if cfg.Otel.Enabled {
		hostname, _ := os.Hostname()
		shutdown, err := otel.InitProvider(cfg.Otel, hostname)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		otelShutdown = shutdown
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Otel.Endpoint)

		if cfg.Otel.MetricsEnabled {
			m, err := otel.NewMetrics()
			if err != nil {
				slog.Error("Failed to create metrics", "error", err)
				os.Exit(1)
			}
			metrics = m
			slog.Info("OTel metrics enabled")
		}

		if cfg.Otel.TracesEnabled {
			tracer = oteltrace.Tracer("chatflux")
			slog.Info("Distributed tracing enabled", "sample_rate", cfg.Otel.TraceSampleRate)
		}
	} else {
		slog.Info("OpenTelemetry disabled")
	}

	reg := registry.New(cfg.Registry.MailboxSize)
	defer reg.Close()

	members := cache.NewMembers(store, cfg.Cache.TTL)

	pub := producer.NewKafka(cfg.Broker.Brokers, cfg.Broker.Topic, logger)
	defer pub.Close()

	var limiter *ratelimit.SenderLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewSenderLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.CleanupInterval)
		defer limiter.Stop()
		slog.Info("Publish rate limiting enabled",
			slog.Float64("rate", cfg.RateLimit.Rate),
			slog.Int("burst", cfg.RateLimit.Burst))
	}

	pipeline := consumer.New(consumer.Config{
		Brokers:           cfg.Broker.Brokers,
		Topic:             cfg.Broker.Topic,
		GroupID:           cfg.Broker.GroupID,
		MaxConcurrency:    cfg.Consumer.MaxConcurrency,
		RestartDelay:      cfg.Consumer.RestartDelay,
		ErrorRestartDelay: cfg.Consumer.ErrorRestartDelay,
	}, store, members, reg, metrics, tracer, logger)

	lagMonitor := consumer.NewLagMonitor(
		cfg.Broker.Brokers,
		cfg.Broker.Topic,
		cfg.Broker.GroupID,
		cfg.Consumer.LagInterval,
		metrics,
		logger,
	)

	wsHandler := websocket.NewHandler(reg, metrics, logger)
	apiServer := api.New(api.Config{
		Address:         cfg.Server.HTTPAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, store, pub, limiter, wsHandler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	serverErr := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		lagMonitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Listen(ctx); err != nil {
			serverErr <- err
		}
	}()

	if cfg.Server.HealthEnabled {
		healthServer := health.New(health.Config{
			Address:         cfg.Server.HealthAddr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, store, reg, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	slog.Info("Chat distribution core started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
	}

	cancel()
	wg.Wait()

	if otelShutdown != nil {
		otelCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer otelCancel()
		if err := otelShutdown(otelCtx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}

	slog.Info("Chat distribution core stopped")
}
