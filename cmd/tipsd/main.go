package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vwtips/cmd/internal/contract"
	"vwtips/config"
	"vwtips/observability/logging"
	"vwtips/observability/metrics"
	telemetry "vwtips/observability/otel"
	"vwtips/rpc"
)

func main() {
	configFile := flag.String("config", "./tips.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Override the configured listen address")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("tipsd", cfg.Network, logging.Output{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if *listenFlag != "" {
		cfg.Server.ListenAddress = *listenFlag
	}
	if err := serve(cfg, logger); err != nil {
		logger.Error("tipsd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "tipsd",
			Environment: cfg.Network,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     true,
			Traces:      true,
			SampleRatio: cfg.Telemetry.Sample,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	rt, err := contract.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.Record == nil {
		logger.Warn("no deployment record; status endpoints report uninitialized until tipsctl deploy runs",
			slog.String("network", cfg.Network))
	}

	metrics.Tips().TrackLedger(rt.Engine.LedgerBalance)
	defer metrics.Tips().TrackLedger(nil)

	readTimeout := time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	server := rpc.NewServer(rt.Engine, rpc.ServerConfig{
		ServiceName: "tipsd",
		RateLimit: rpc.RateLimit{
			RatePerSecond: cfg.Server.RateLimitPerSecond,
			Burst:         cfg.Server.RateLimitBurst,
		},
		Network:     cfg.Network,
		ChainID:     rt.Network.ChainID,
		RateTimeout: readTimeout,
		Observer:    metrics.Tips(),
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           server.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      2 * readTimeout,
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("tipsd listening", slog.String("address", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}
