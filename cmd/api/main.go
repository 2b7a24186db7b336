package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "framecast/internal/api"
	"framecast/internal/config"
	"framecast/internal/fal"
	"framecast/internal/gemini"
	"framecast/internal/jobs"
	"framecast/internal/ratelimit"
	"framecast/internal/storage"
	"framecast/internal/store"
	"framecast/internal/video"
	"framecast/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.Open(ctx, cfg.RedisURL, logger)
	defer st.Close()

	var janitor *store.Janitor
	if mem, ok := st.(*store.MemoryStore); ok {
		j, err := store.NewJanitor(mem, cfg.MemorySweepSchedule, logger)
		if err != nil {
			logger.Error("memory sweep disabled", "error", err)
		} else {
			janitor = j
			janitor.Start()
		}
	}

	uploader, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Error("durable storage disabled", "backend", cfg.StorageBackend, "error", err)
	}
	var mediaDir string
	if local, ok := uploader.(*storage.LocalUploader); ok {
		mediaDir = local.Dir()
	}

	falClient := fal.NewClient(cfg, logger)
	generator := video.NewGenerator(falClient, uploader, video.Options{
		MaxAttempts:     cfg.GenerationMaxAttempts,
		DownloadTimeout: cfg.VideoDownloadTimeout,
		MaxBytes:        cfg.VideoMaxBytes,
		Logger:          logger,
	})

	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, logger)
	pool.Start(ctx)

	svc := jobs.NewService(cfg, jobs.Deps{
		Store:     st,
		Scheduler: pool,
		Analyzer:  gemini.NewClient(cfg, logger),
		Editor:    falClient,
		Generator: generator,
		Logger:    logger,
	})

	opts := api.Options{MediaDir: mediaDir, Logger: logger}
	// Buckets need a store shared across replicas; memory mode runs unlimited.
	if rs, ok := st.(*store.RedisStore); ok {
		opts.Limiter = ratelimit.NewTokenBucket(rs.Client(), cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	server := api.New(cfg, svc, opts)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "port", cfg.HTTPPort, "store", st.Backend(), "storage", cfg.StorageBackend)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", "error", err)
	}
	if janitor != nil {
		janitor.Stop(shutdownCtx)
	}
}
