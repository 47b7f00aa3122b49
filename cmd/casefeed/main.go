// Package main wires together the case ingestion service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/api"
	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/clock"
	"github.com/topoom/casefeed/internal/config"
	"github.com/topoom/casefeed/internal/consumer"
	"github.com/topoom/casefeed/internal/extern"
	"github.com/topoom/casefeed/internal/logging"
	"github.com/topoom/casefeed/internal/metrics"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/storage"
	"github.com/topoom/casefeed/internal/store"
	"github.com/topoom/casefeed/internal/sweeper"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	queueBroker, err := newBroker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("broker init failed: %w", err)
	}
	defer func() {
		if err := queueBroker.Close(); err != nil {
			logger.Warn("broker close failed", zap.Error(err))
		}
	}()

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("blob store init failed: %w", err)
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			logger.Warn("blob store close failed", zap.Error(err))
		}
	}()

	cases, ledger, err := newCaseStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("case store init failed: %w", err)
	}
	defer func() {
		if err := cases.Close(); err != nil {
			logger.Warn("case store close failed", zap.Error(err))
		}
	}()

	crawler, err := extern.NewCollyPostCrawler(extern.CrawlerConfig{
		UserAgent:       cfg.Crawler.UserAgent,
		RequestTimeout:  time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
		TempDir:         cfg.Crawler.TempDir,
		TitleSelector:   cfg.Crawler.TitleSelector,
		ContentSelector: cfg.Crawler.ContentSelector,
		ImageSelector:   cfg.Crawler.ImageSelector,
	}, logger.Named("crawler"))
	if err != nil {
		return fmt.Errorf("crawler init failed: %w", err)
	}

	deps := consumer.Deps{
		Producer:   pipeline.NewProducer(queueBroker, logger.Named("producer")),
		Cases:      cases,
		Blobs:      blobs,
		Crawler:    crawler,
		Classifier: extern.NewStaticClassifier(pipeline.ImageTextCapture),
		OCR: extern.NewHTTPOCRClient(
			cfg.OCR.Endpoint,
			time.Duration(cfg.OCR.TimeoutSeconds)*time.Second,
			logger.Named("ocr")),
		Geocoder: extern.NewKakaoGeocoder(
			cfg.Geocode.BaseURL,
			cfg.Geocode.APIKey,
			time.Duration(cfg.Geocode.TimeoutSeconds)*time.Second,
			logger.Named("geocoder")),
		Log: logger,
	}

	retry := broker.RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff(),
		Multiplier:     cfg.Retry.Multiplier,
		MaxBackoff:     cfg.Retry.MaxBackoff(),
	}

	var wg sync.WaitGroup
	for queue, handler := range consumer.Handlers(deps) {
		listener := broker.NewListener(queueBroker, handler, broker.ListenerConfig{
			Queue:       queue,
			Concurrency: cfg.Consumers.Concurrency,
			Retry:       retry,
			ReceiveWait: cfg.Consumers.ReceiveWait(),
			Classify: func(err error) string {
				class, _ := pipeline.ClassifyFailure(err)
				return class
			},
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = listener.Run(ctx)
		}()
	}

	sweep := sweeper.New(queueBroker, ledger, cases, sweeper.Config{
		Interval:            cfg.Sweeper.Interval(),
		MaxSweepAttempts:    cfg.Sweeper.MaxSweepAttempts,
		MaxMessagesPerSweep: cfg.Sweeper.MaxPerSweep,
	}, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sweep.Run(ctx)
	}()

	apiServer := api.NewServer(deps.Producer, sweep, clock.NewSystem(), logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

func newBroker(ctx context.Context, cfg config.Config) (broker.Broker, error) {
	switch cfg.Broker.Kind {
	case "memory":
		return broker.NewMemory(cfg.Broker.MemoryQueueDepth), nil
	case "pubsub":
		return broker.NewPubSub(ctx, cfg.Broker.ProjectID)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Broker.RedisAddr,
			Password: cfg.Broker.RedisPassword,
			DB:       cfg.Broker.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return broker.NewRedis(client), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}

func newBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Storage.Kind {
	case "memory":
		return storage.NewMemoryProvider(), nil
	case "gcs":
		return storage.NewGCSProvider(ctx, cfg.Storage.GCSBucket, nil, logger.Named("gcs"))
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

func newCaseStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.CaseStore, store.FailureLedger, error) {
	switch cfg.DB.Kind {
	case "memory":
		m := store.NewMemory()
		return m, m, nil
	case "postgres":
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}, logger.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	default:
		return nil, nil, fmt.Errorf("unknown db kind %q", cfg.DB.Kind)
	}
}
