package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/collector"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pricing"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/config"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/ingest"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/logging"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
	"github.com/weiwei-tsao/grocery-price-compare/internal/repository"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

func main() {
	input := flag.String("input", "", "Raw records as JSON Lines, or a saved search page (.html) with -market")
	marketID := flag.String("market", "", "Market id of an HTML input")
	query := flag.String("query", "", "Search query stamped on records that lack one")
	cep := flag.String("cep", "", "CEP stamped on records that lack one")
	outJSON := flag.String("out", "", "Write the collection result as JSON to this file")
	outCSV := flag.String("csv", "", "Write ranked offers as CSV to this file")
	store := flag.String("store", "", "Override STORE_BACKEND (memory, sqlite, firestore)")
	publish := flag.Bool("publish", false, "Publish records to KAFKA_TOPIC instead of processing them")
	logLevel := flag.String("loglevel", "", "Override LOG_LEVEL")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if *store != "" {
		cfg.StoreBackend = strings.ToLower(*store)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	registry := markets.Default()
	records, skipped, err := readRecords(*input, *marketID, registry, collector.CollectionContext{SearchQuery: *query, CEP: *cep})
	if err != nil {
		logger.Fatalf("read input: %v", err)
	}
	logger.WithFields(log.Fields{"records": len(records), "skipped": skipped}).Info("input loaded")

	if *publish {
		if !cfg.KafkaEnabled() {
			logger.Fatal("KAFKA_BROKERS is required with -publish")
		}
		pub := ingest.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer pub.Close()
		if err := pub.Publish(ctx, records); err != nil {
			logger.Fatalf("publish: %v", err)
		}
		fmt.Printf("Published %d records to %s\n", len(records), cfg.KafkaTopic)
		return
	}

	backend, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("store init: %v", err)
	}
	defer backend.Close()

	p := pipeline.New(pricing.NewCalculator(cfg.DecimalPlaces), registry, pipeline.WithLogger(logger))
	service := pipeline.NewService(p, backend.Stores,
		pipeline.WithWorkers(cfg.WorkerCount),
		pipeline.WithServiceLogger(logger),
	)

	res, err := service.Collect(ctx, pipeline.CollectRequest{SearchQuery: *query, CEP: *cep, Records: records})
	if err != nil {
		logger.Fatalf("collect: %v", err)
	}

	if *outJSON != "" {
		if err := writeJSON(*outJSON, res); err != nil {
			logger.Fatalf("write %s: %v", *outJSON, err)
		}
	}
	if *outCSV != "" {
		if err := writeCSV(*outCSV, res.Offers); err != nil {
			logger.Fatalf("write %s: %v", *outCSV, err)
		}
	}

	printSummary(os.Stdout, res)
}

func readRecords(path, marketID string, registry *markets.Registry, cc collector.CollectionContext) ([]model.RawRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		if marketID == "" {
			return nil, 0, fmt.Errorf("-market is required for HTML input")
		}
		market, err := registry.Lookup(marketID)
		if err != nil {
			return nil, 0, err
		}
		page, err := collector.ParseProductCards(f, market, cc)
		if err != nil {
			return nil, 0, err
		}
		return page.Records, page.Skipped, nil
	default:
		records, err := collector.LoadJSONL(f)
		return records, 0, err
	}
}

func writeJSON(path string, res pipeline.CollectResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeCSV(path string, offers []model.PriceOffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pipeline.WriteOffersCSV(f, offers); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, res pipeline.CollectResult) {
	run := res.Run
	fmt.Fprintf(w, "Run %s: %s\n", run.RunID, run.Status)
	if d, ok := run.Duration(); ok {
		fmt.Fprintf(w, "Took %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Records: %d  Offers: %d  Comparable: %d  Dropped: %d\n",
		run.TotalRecords, run.TotalOffers, run.TotalComparable, run.TotalDropped)

	if ps := res.Statistics.PriceStats; ps != nil {
		fmt.Fprintf(w, "Normalized price: min %s  avg %s  max %s\n",
			util.FormatBRL(ps.Min), util.FormatBRL(ps.Avg), util.FormatBRL(ps.Max))
	}
	if best := res.Best; best != nil {
		fmt.Fprintf(w, "Best offer: %s at %s (%s)\n", best.Title, best.MarketName, best.PriceDisplay)
	}
	for _, o := range res.Offers {
		fmt.Fprintf(w, "  %-10s %-50.50s %12s  %s\n", o.MarketID, o.Title, util.FormatBRL(o.Price), o.PriceDisplay)
	}
}
