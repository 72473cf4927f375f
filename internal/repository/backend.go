package repository

import (
	"context"
	"fmt"

	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/config"
	fsclient "github.com/weiwei-tsao/grocery-price-compare/internal/platform/firestore"
)

// Backend is an opened set of stores and the function that releases them.
type Backend struct {
	Name   string
	Stores pipeline.Stores
	Close  func() error
}

// Open builds the stores selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		m := NewMemoryStore()
		return Backend{
			Name:   config.BackendMemory,
			Stores: pipeline.Stores{Offers: m, Raws: m, Runs: m, Stats: m},
			Close:  func() error { return nil },
		}, nil

	case config.BackendSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return Backend{}, err
		}
		return Backend{
			Name:   config.BackendSQLite,
			Stores: pipeline.Stores{Offers: s, Raws: s, Runs: s, Stats: s},
			Close:  s.Close,
		}, nil

	case config.BackendFirestore:
		client, source, err := fsclient.New(ctx, cfg)
		if err != nil {
			return Backend{}, err
		}
		if err := fsclient.Ping(ctx, client); err != nil {
			client.Close()
			return Backend{}, fmt.Errorf("firestore ping (creds from %s): %w", source, err)
		}
		return Backend{
			Name: config.BackendFirestore,
			Stores: pipeline.Stores{
				Offers: NewOfferRepository(client),
				Raws:   NewRawRepository(client),
				Runs:   NewRunRepository(client),
				Stats:  NewStatsRepository(client),
			},
			Close: client.Close,
		}, nil
	}
	return Backend{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
