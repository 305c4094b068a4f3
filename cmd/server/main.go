package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsejet/go-vod-chop/internal/config"
	"github.com/pulsejet/go-vod-chop/internal/httpapi"
	"github.com/pulsejet/go-vod-chop/internal/logging"
	"github.com/pulsejet/go-vod-chop/internal/stream"
	"github.com/pulsejet/go-vod-chop/internal/telemetry"
	"github.com/pulsejet/go-vod-chop/internal/telemetry/mysqltelemetry"
	"github.com/pulsejet/go-vod-chop/internal/telemetry/noop"
	"github.com/pulsejet/go-vod-chop/internal/variantstore"
	"github.com/pulsejet/go-vod-chop/internal/variantstore/localstore"
	"github.com/pulsejet/go-vod-chop/internal/variantstore/miniostore"
	"github.com/pulsejet/go-vod-chop/internal/videocache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing variant store")
	}

	sink := buildTelemetry(ctx, cfg, log)
	defer sink.Close()

	cache := videocache.New(store, cfg.MemBudgetBytes, cfg.SignedAuth, log)
	go cache.RunEvictor(ctx, time.Duration(cfg.EvictionSeconds)*time.Second)

	sender := stream.NewSender(cache, time.Duration(cfg.SendTimeout)*time.Second)
	handler := &httpapi.StreamHandler{
		Cache:     cache,
		Sender:    sender,
		Telemetry: sink,
		Log:       log,
	}
	router := httpapi.NewRouter(handler)

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.SendTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Str("backend", string(cfg.StorageBackend)).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-quit
	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (variantstore.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMinio:
		return miniostore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return localstore.New(cfg.VideoRoot), nil
	}
}

func buildTelemetry(ctx context.Context, cfg *config.Config, log zerolog.Logger) telemetry.Sink {
	if cfg.TelemetryDSN == "" {
		return noop.New()
	}
	const telemetryConnectTimeout = 30 * time.Second
	connectCtx, connectCancel := context.WithTimeout(ctx, telemetryConnectTimeout)
	defer connectCancel()
	sink, err := mysqltelemetry.Connect(connectCtx, cfg.TelemetryDSN, log)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry database unavailable, falling back to noop sink")
		return noop.New()
	}
	return sink
}
