package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"google.golang.org/api/iterator"
)

const rawCollection = "raw_records"

// RawRepository keeps raw records in Firestore for reprocessing.
type RawRepository struct {
	client *firestore.Client
}

func NewRawRepository(client *firestore.Client) *RawRepository {
	return &RawRepository{client: client}
}

func (r *RawRepository) SaveRaw(ctx context.Context, raws []model.StoredRaw) error {
	for start := 0; start < len(raws); start += firestoreBatch {
		end := start + firestoreBatch
		if end > len(raws) {
			end = len(raws)
		}
		batch := r.client.Batch()
		for _, raw := range raws[start:end] {
			if raw.ID == "" {
				return fmt.Errorf("raw record id is required")
			}
			batch.Set(r.client.Collection(rawCollection).Doc(raw.ID), raw)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("commit raw batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (r *RawRepository) FetchRaw(ctx context.Context) ([]model.StoredRaw, error) {
	iter := r.client.Collection(rawCollection).Documents(ctx)
	defer iter.Stop()
	var out []model.StoredRaw
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate raw records: %w", err)
		}
		var raw model.StoredRaw
		if err := doc.DataTo(&raw); err != nil {
			return nil, fmt.Errorf("decode raw record %s: %w", doc.Ref.ID, err)
		}
		if raw.ID == "" {
			raw.ID = doc.Ref.ID
		}
		out = append(out, raw)
	}
	return out, nil
}
