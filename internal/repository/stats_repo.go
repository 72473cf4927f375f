package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const statsCollection = "statistics"

// StatsRepository keeps the latest statistics document per search query.
type StatsRepository struct {
	client *firestore.Client
}

func NewStatsRepository(client *firestore.Client) *StatsRepository {
	return &StatsRepository{client: client}
}

type statsDocument struct {
	SearchQuery string                           `firestore:"searchQuery"`
	Total       int                              `firestore:"total"`
	Comparable  int                              `firestore:"comparable"`
	Partial     int                              `firestore:"partial"`
	Failed      int                              `firestore:"failed"`
	ByMarket    map[string]model.MarketBreakdown `firestore:"byMarket"`
	ByStatus    map[string]int                   `firestore:"byStatus"`
	MinPrice    string                           `firestore:"minPrice,omitempty"`
	MaxPrice    string                           `firestore:"maxPrice,omitempty"`
	AvgPrice    string                           `firestore:"avgPrice,omitempty"`
	LastUpdated time.Time                        `firestore:"lastUpdated"`
}

func (r *StatsRepository) SaveStatistics(ctx context.Context, searchQuery string, stats model.Statistics) error {
	doc := statsDocument{
		SearchQuery: searchQuery,
		Total:       stats.Total,
		Comparable:  stats.Comparable,
		Partial:     stats.Partial,
		Failed:      stats.Failed,
		ByMarket:    stats.ByMarket,
		ByStatus:    make(map[string]int, len(stats.ByStatus)),
		LastUpdated: time.Now().UTC(),
	}
	for s, n := range stats.ByStatus {
		doc.ByStatus[string(s)] = n
	}
	if ps := stats.PriceStats; ps != nil {
		doc.MinPrice, doc.MaxPrice, doc.AvgPrice = ps.Min.String(), ps.Max.String(), ps.Avg.String()
	}
	ref := r.client.Collection(statsCollection).Doc(util.HashString(searchQuery))
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

func (r *StatsRepository) GetStatistics(ctx context.Context, searchQuery string) (model.Statistics, error) {
	snap, err := r.client.Collection(statsCollection).Doc(util.HashString(searchQuery)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return model.Statistics{}, fmt.Errorf("statistics for %q: %w", searchQuery, model.ErrNotFound)
	}
	if err != nil {
		return model.Statistics{}, fmt.Errorf("get statistics: %w", err)
	}
	var doc statsDocument
	if err := snap.DataTo(&doc); err != nil {
		return model.Statistics{}, fmt.Errorf("decode statistics: %w", err)
	}

	stats := model.Statistics{
		Total:      doc.Total,
		Comparable: doc.Comparable,
		Partial:    doc.Partial,
		Failed:     doc.Failed,
		ByMarket:   doc.ByMarket,
		ByStatus:   make(map[model.NormalizationStatus]int, len(doc.ByStatus)),
	}
	for s, n := range doc.ByStatus {
		stats.ByStatus[model.NormalizationStatus(s)] = n
	}
	if doc.MinPrice != "" {
		ps := &model.PriceStats{}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&ps.Min, doc.MinPrice}, {&ps.Max, doc.MaxPrice}, {&ps.Avg, doc.AvgPrice}} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return model.Statistics{}, fmt.Errorf("decode price stats: %w", err)
			}
			*f.dst = d
		}
		stats.PriceStats = ps
	}
	return stats, nil
}
