package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const runsCollection = "collection_runs"

// RunRepository manages collection run lifecycle records.
type RunRepository struct {
	client *firestore.Client
}

func NewRunRepository(client *firestore.Client) *RunRepository {
	return &RunRepository{client: client}
}

func (r *RunRepository) CreateRun(ctx context.Context, run model.CollectionRun) error {
	if run.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	ref := r.client.Collection(runsCollection).Doc(run.RunID)
	if _, err := ref.Set(ctx, run); err != nil {
		return fmt.Errorf("create run %s: %w", run.RunID, err)
	}
	return nil
}

func (r *RunRepository) UpdateRun(ctx context.Context, run model.CollectionRun) error {
	if run.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	ref := r.client.Collection(runsCollection).Doc(run.RunID)
	if _, err := ref.Set(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.RunID, err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (model.CollectionRun, error) {
	snap, err := r.client.Collection(runsCollection).Doc(runID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return model.CollectionRun{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if err != nil {
		return model.CollectionRun{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var run model.CollectionRun
	if err := snap.DataTo(&run); err != nil {
		return model.CollectionRun{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	query := r.client.Collection(runsCollection).OrderBy("startedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()
	var out []model.CollectionRun
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate runs: %w", err)
		}
		var run model.CollectionRun
		if err := doc.DataTo(&run); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", doc.Ref.ID, err)
		}
		out = append(out, run)
	}
	return out, nil
}
