package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pricing"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/config"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/ingest"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/logging"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/metrics"
	"github.com/weiwei-tsao/grocery-price-compare/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	if !cfg.KafkaEnabled() {
		logger.Fatal("KAFKA_BROKERS is required for ingest")
	}

	backend, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("store init: %v", err)
	}
	defer backend.Close()

	m := metrics.NewRegistry()
	p := pipeline.New(pricing.NewCalculator(cfg.DecimalPlaces), markets.Default(),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	)
	service := pipeline.NewService(p, backend.Stores,
		pipeline.WithWorkers(cfg.WorkerCount),
		pipeline.WithServiceLogger(logger),
	)

	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		server := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	reader := ingest.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	consumer := ingest.NewConsumer(reader, service,
		ingest.WithBatchSize(cfg.IngestBatchSize),
		ingest.WithFlushInterval(cfg.IngestFlush),
		ingest.WithLogger(logger),
		ingest.WithMetrics(m),
	)
	logger.WithFields(log.Fields{
		"topic":   cfg.KafkaTopic,
		"group":   cfg.KafkaGroupID,
		"backend": backend.Name,
	}).Info("ingest consumer started")

	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Error("ingest stopped")
		return
	}
	logger.Info("ingest exited")
}
