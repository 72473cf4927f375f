package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/config"
	firestoreclient "github.com/weiwei-tsao/grocery-price-compare/internal/platform/firestore"
	"github.com/weiwei-tsao/grocery-price-compare/internal/repository"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

func main() {
	runID := flag.String("run", "", "Print one collection run")
	query := flag.String("query", "", "Print stored statistics and cheapest offers for a search query")
	limit := flag.Int("limit", 5, "How many runs or offers to print")
	flag.Parse()

	ctx := context.Background()
	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, credsSource, err := firestoreclient.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer client.Close()
	log.Printf("Connected to Firestore project %s using %s credentials", cfg.FirebaseProjectID, credsSource)

	runs := repository.NewRunRepository(client)

	switch {
	case *runID != "":
		run, err := runs.GetRun(ctx, *runID)
		if err != nil {
			log.Fatalf("Failed to get run %s: %v", *runID, err)
		}
		printJSON("Run", run)

	case *query != "":
		stats, err := repository.NewStatsRepository(client).GetStatistics(ctx, *query)
		if err != nil {
			log.Fatalf("Failed to get statistics for %q: %v", *query, err)
		}
		printJSON("Statistics", stats)

		offers, err := repository.NewOfferRepository(client).ListOffers(ctx, model.OfferQuery{
			SearchQuery:    *query,
			ComparableOnly: true,
			Limit:          *limit,
		})
		if err != nil {
			log.Fatalf("Failed to list offers: %v", err)
		}
		fmt.Printf("\n=== %d comparable offers ===\n", len(offers))
		for _, o := range offers {
			fmt.Printf("%-10s %-50.50s %s\n", o.MarketID, o.Title, o.PriceDisplay)
		}

	default:
		list, err := runs.ListRuns(ctx, *limit)
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		fmt.Printf("=== Latest %d runs ===\n", len(list))
		for _, r := range list {
			fmt.Printf("%s  %-10s %-10s %-20s offers=%d dropped=%d\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Status, r.SearchQuery, r.TotalOffers, r.TotalDropped)
		}
	}
}

func printJSON(label string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal: %v", err)
	}
	fmt.Printf("%s:\n%s\n", label, data)
}
