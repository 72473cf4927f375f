package pipeline

import (
	"context"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// OfferStore abstracts the persistence layer for offers.
type OfferStore interface {
	SaveOffers(ctx context.Context, offers []model.PriceOffer) error
	ListOffers(ctx context.Context, q model.OfferQuery) ([]model.PriceOffer, error)
}

// RawStore keeps raw records so they can be reprocessed when parsing rules change.
type RawStore interface {
	SaveRaw(ctx context.Context, raws []model.StoredRaw) error
	FetchRaw(ctx context.Context) ([]model.StoredRaw, error)
}

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run model.CollectionRun) error
	UpdateRun(ctx context.Context, run model.CollectionRun) error
	GetRun(ctx context.Context, runID string) (model.CollectionRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error)
}

// StatsStore keeps the latest statistics per search query.
type StatsStore interface {
	SaveStatistics(ctx context.Context, searchQuery string, stats model.Statistics) error
	GetStatistics(ctx context.Context, searchQuery string) (model.Statistics, error)
}

// Stores groups the persistence dependencies of a Service. Raws and Stats are optional.
type Stores struct {
	Offers OfferStore
	Raws   RawStore
	Runs   RunStore
	Stats  StatsStore
}
