package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pricing"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/config"
	apirouter "github.com/weiwei-tsao/grocery-price-compare/internal/platform/http"
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

	gin.SetMode(cfg.GinMode)

	backend, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("store init: %v", err)
	}
	defer backend.Close()
	logger.WithField("backend", backend.Name).Info("stores ready")

	registry := markets.Default()
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		m := metrics.NewRegistry()
		opts = append(opts, pipeline.WithMetrics(m))
		metricsHandler = m.Handler()
	}
	p := pipeline.New(pricing.NewCalculator(cfg.DecimalPlaces), registry, opts...)
	service := pipeline.NewService(p, backend.Stores,
		pipeline.WithWorkers(cfg.WorkerCount),
		pipeline.WithServiceLogger(logger),
	)

	router := apirouter.NewRouter(service, registry, apirouter.Options{
		Metrics:        metricsHandler,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()
	logger.Infof("server listening on :%s", cfg.Port)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
	for _, job := range service.Jobs().Running() {
		service.Cancel(job.RunID)
	}
	logger.Info("server exited")
}
