package pipeline

import (
	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// Statistics reduces offers into counts per status and market plus normalized price bounds.
func Statistics(offers []model.PriceOffer) model.Statistics {
	stats := model.Statistics{
		Total:    len(offers),
		ByMarket: make(map[string]model.MarketBreakdown),
		ByStatus: make(map[model.NormalizationStatus]int),
	}

	var sum, lo, hi decimal.Decimal
	var priced int64
	for _, o := range offers {
		market := stats.ByMarket[o.MarketID]
		market.Total++
		stats.ByStatus[o.Status]++

		switch {
		case o.IsComparable():
			stats.Comparable++
			market.Comparable++
			np := *o.NormalizedPrice
			if priced == 0 || np.LessThan(lo) {
				lo = np
			}
			if priced == 0 || np.GreaterThan(hi) {
				hi = np
			}
			sum = sum.Add(np)
			priced++
		case o.Status == model.StatusPartial:
			stats.Partial++
		case o.Status == model.StatusFailed:
			stats.Failed++
		}
		stats.ByMarket[o.MarketID] = market
	}

	if priced > 0 {
		stats.PriceStats = &model.PriceStats{
			Min: lo,
			Max: hi,
			Avg: sum.Div(decimal.NewFromInt(priced)),
		}
	}
	return stats
}
