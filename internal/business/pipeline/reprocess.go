package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// ReprocessOptions configures how reprocessing is performed.
type ReprocessOptions struct {
	TargetVersion string    `json:"targetVersion"` // defaults to the pipeline's parser version
	OnlyOutdated  bool      `json:"onlyOutdated"`  // skip records already parsed at TargetVersion
	SinceTime     time.Time `json:"sinceTime"`     // only records last parsed after this time
	MarketID      string    `json:"marketId"`
	BatchSize     int       `json:"batchSize"` // offers written per store call
}

// ReprocessStats tracks progress of a reprocessing operation.
type ReprocessStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	UpToDate  int `json:"upToDate"`
}

// Reprocess re-runs the pipeline over stored raw records without collecting them again.
// Offers are upserted in batches and each raw record is stamped with the target version.
func (s *Service) Reprocess(ctx context.Context, opts ReprocessOptions, onProgress func(ReprocessStats)) (ReprocessStats, error) {
	if s.stores.Raws == nil {
		return ReprocessStats{}, fmt.Errorf("raws: %w", ErrNoStore)
	}
	if opts.TargetVersion == "" {
		opts.TargetVersion = s.pipeline.version
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.writeBatch
	}

	stats := ReprocessStats{}
	existing, err := s.stores.Raws.FetchRaw(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch raw records: %w", err)
	}
	stats.Total = len(existing)
	logger := s.log.WithField("target", opts.TargetVersion)
	logger.WithField("records", stats.Total).Info("reprocessing started")

	var offers []model.PriceOffer
	var raws []model.StoredRaw
	flush := func() error {
		if len(offers) > 0 && s.stores.Offers != nil {
			if err := s.stores.Offers.SaveOffers(ctx, offers); err != nil {
				return fmt.Errorf("save offers: %w", err)
			}
		}
		if len(raws) > 0 {
			if err := s.stores.Raws.SaveRaw(ctx, raws); err != nil {
				return fmt.Errorf("save raw records: %w", err)
			}
		}
		logger.WithField("count", len(offers)).Debug("reprocessed offers written")
		offers, raws = offers[:0], raws[:0]
		if onProgress != nil {
			onProgress(stats)
		}
		return nil
	}

	for _, stored := range existing {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if opts.MarketID != "" && stored.Record.MarketID != opts.MarketID {
			stats.Skipped++
			continue
		}
		if opts.OnlyOutdated && stored.ParserVersion == opts.TargetVersion {
			stats.UpToDate++
			stats.Skipped++
			continue
		}
		if !opts.SinceTime.IsZero() && stored.LastParsedAt.Before(opts.SinceTime) {
			stats.Skipped++
			continue
		}

		offer, err := s.pipeline.ProcessOne(stored.Record)
		if err != nil {
			stats.Failed++
			logger.WithFields(log.Fields{"id": stored.ID, "market": stored.Record.MarketID}).WithError(err).Warn("reprocess failed")
			continue
		}
		offer.ParserVersion = opts.TargetVersion
		stored.ParserVersion = opts.TargetVersion
		stored.LastParsedAt = time.Now().UTC()

		offers = append(offers, offer)
		raws = append(raws, stored)
		stats.Processed++

		if len(offers) >= opts.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if len(offers) > 0 {
		if err := flush(); err != nil {
			return stats, err
		}
	}

	logger.WithFields(log.Fields{
		"processed": stats.Processed,
		"skipped":   stats.Skipped,
		"upToDate":  stats.UpToDate,
		"failed":    stats.Failed,
	}).Info("reprocessing complete")
	return stats, nil
}

// StartReprocess runs Reprocess in the background under a run of kind reprocess.
func (s *Service) StartReprocess(ctx context.Context, opts ReprocessOptions) (string, error) {
	if s.stores.Runs == nil {
		return "", fmt.Errorf("runs: %w", ErrNoStore)
	}
	if s.stores.Raws == nil {
		return "", fmt.Errorf("raws: %w", ErrNoStore)
	}
	run := model.CollectionRun{
		RunID:     generateRunID(),
		Kind:      model.KindReprocess,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if opts.MarketID != "" {
		run.MarketsRequested = []string{opts.MarketID}
	}
	if err := s.stores.Runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.jobs.Register(run.RunID, model.KindReprocess, cancel)
	go func() {
		defer s.jobs.Unregister(run.RunID)
		defer cancel()

		stats, err := s.Reprocess(jobCtx, opts, func(st ReprocessStats) {
			progress := run
			progress.TotalRecords = st.Total
			progress.TotalOffers = st.Processed
			progress.TotalDropped = st.Failed
			if err := s.stores.Runs.UpdateRun(jobCtx, progress); err != nil {
				s.log.WithField("run", run.RunID).WithError(err).Warn("update reprocess progress")
			}
		})

		run.TotalRecords = stats.Total
		run.TotalOffers = stats.Processed
		run.TotalDropped = stats.Failed
		run.FinishedAt = time.Now().UTC()
		switch {
		case jobCtx.Err() != nil:
			run.Status = model.RunCancelled
		case err != nil:
			run.Status = model.RunFailed
			run.ErrorSample = []model.ErrorSample{{Reason: err.Error()}}
		case stats.Total == 0:
			run.Status = model.RunNoResults
		case stats.Failed > 0:
			run.Status = model.RunPartial
		default:
			run.Status = model.RunSuccess
		}
		if err := s.stores.Runs.UpdateRun(context.Background(), run); err != nil {
			s.log.WithField("run", run.RunID).WithError(err).Error("update reprocess run")
		}
	}()
	return run.RunID, nil
}
