package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// incrementalWriteThreshold is how many offers are buffered before each store write.
const incrementalWriteThreshold = 20

const maxErrorSamples = 5

// ErrNoStore is returned when an operation needs a store the service was built without.
var ErrNoStore = errors.New("store not configured")

// Service orchestrates collection runs: persist raw records, price them, save offers.
type Service struct {
	pipeline   *Pipeline
	stores     Stores
	jobs       *JobManager
	log        log.FieldLogger
	workers    int
	writeBatch int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWorkers sets the number of concurrent pipeline workers per run.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) { s.workers = n }
}

// WithWriteBatch sets how many offers are written per store call.
func WithWriteBatch(n int) ServiceOption {
	return func(s *Service) { s.writeBatch = n }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l log.FieldLogger) ServiceOption {
	return func(s *Service) { s.log = l }
}

func NewService(p *Pipeline, stores Stores, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline:   p,
		stores:     stores,
		jobs:       NewJobManager(),
		log:        p.log,
		workers:    DefaultWorkers,
		writeBatch: incrementalWriteThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writeBatch <= 0 {
		s.writeBatch = incrementalWriteThreshold
	}
	return s
}

// Pipeline returns the underlying pipeline.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Stores returns the stores the service writes to.
func (s *Service) Stores() Stores { return s.stores }

// Jobs returns the background job tracker.
func (s *Service) Jobs() *JobManager { return s.jobs }

// CollectRequest is a set of raw records gathered for one search.
type CollectRequest struct {
	SearchQuery string            `json:"searchQuery"`
	CEP         string            `json:"cep"`
	Markets     []string          `json:"markets"`
	Records     []model.RawRecord `json:"records"`
}

// CollectResult is the outcome of a finished collection run.
type CollectResult struct {
	Run        model.CollectionRun `json:"run"`
	Offers     []model.PriceOffer  `json:"offers"`
	Statistics model.Statistics    `json:"statistics"`
	Best       *model.PriceOffer   `json:"best,omitempty"`
}

// Collect runs a collection synchronously and returns the ranked offers.
func (s *Service) Collect(ctx context.Context, req CollectRequest) (CollectResult, error) {
	run, err := s.startRun(ctx, &req)
	if err != nil {
		return CollectResult{}, err
	}
	return s.finishCollect(ctx, run, req)
}

// StartCollect creates the run record and processes it in the background.
// The run can be canceled through Cancel.
func (s *Service) StartCollect(ctx context.Context, req CollectRequest) (string, error) {
	run, err := s.startRun(ctx, &req)
	if err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.jobs.Register(run.RunID, model.KindCollect, cancel)
	go func() {
		defer s.jobs.Unregister(run.RunID)
		defer cancel()
		if _, err := s.finishCollect(jobCtx, run, req); err != nil {
			s.log.WithField("run", run.RunID).WithError(err).Error("collection run failed")
		}
	}()
	return run.RunID, nil
}

// Cancel stops a background run.
func (s *Service) Cancel(runID string) bool {
	return s.jobs.Cancel(runID)
}

func (s *Service) startRun(ctx context.Context, req *CollectRequest) (model.CollectionRun, error) {
	if s.stores.Runs == nil {
		return model.CollectionRun{}, fmt.Errorf("runs: %w", ErrNoStore)
	}
	for i := range req.Records {
		if req.Records[i].SearchQuery == "" {
			req.Records[i].SearchQuery = req.SearchQuery
		}
		if req.Records[i].CEP == "" {
			req.Records[i].CEP = req.CEP
		}
	}

	run := model.CollectionRun{
		RunID:            generateRunID(),
		Kind:             model.KindCollect,
		SearchQuery:      req.SearchQuery,
		CEP:              req.CEP,
		MarketsRequested: requestedMarkets(*req),
		Status:           model.RunRunning,
		StartedAt:        time.Now().UTC(),
		TotalRecords:     len(req.Records),
	}
	if err := s.stores.Runs.CreateRun(ctx, run); err != nil {
		return model.CollectionRun{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (s *Service) finishCollect(ctx context.Context, run model.CollectionRun, req CollectRequest) (CollectResult, error) {
	logger := s.log.WithFields(log.Fields{"run": run.RunID, "query": run.SearchQuery})
	logger.WithField("records", len(req.Records)).Info("collection started")

	if s.stores.Raws != nil && len(req.Records) > 0 {
		if err := s.stores.Raws.SaveRaw(ctx, storedRaws(run.RunID, s.pipeline.version, req.Records)); err != nil {
			return s.failRun(ctx, run, fmt.Errorf("save raw records: %w", err))
		}
	}

	start := time.Now()
	result := s.pipeline.ProcessConcurrent(ctx, req.Records, s.workers)
	s.pipeline.Report(result, time.Since(start))

	// Offers priced before a cancel are still written; the run is then marked cancelled.
	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = context.WithoutCancel(ctx)
	}
	if err := s.saveOffers(saveCtx, result.Offers, logger); err != nil {
		return s.failRun(ctx, run, err)
	}

	stats := Statistics(result.Offers)
	if s.stores.Stats != nil && run.SearchQuery != "" {
		if err := s.stores.Stats.SaveStatistics(saveCtx, run.SearchQuery, stats); err != nil {
			logger.WithError(err).Warn("save statistics failed")
		}
	}

	summarizeRun(&run, result, stats)
	if ctx.Err() != nil {
		run.Status = model.RunCancelled
	}
	run.FinishedAt = time.Now().UTC()
	if err := s.stores.Runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		return CollectResult{}, fmt.Errorf("update run: %w", err)
	}

	calc := s.pipeline.Calculator()
	out := CollectResult{
		Run:        run,
		Offers:     calc.CompareOffers(result.Offers, true),
		Statistics: stats,
	}
	if best, ok := calc.FindBestOffer(result.Offers); ok {
		out.Best = &best
	}
	logger.WithFields(log.Fields{"status": run.Status, "offers": run.TotalOffers, "dropped": run.TotalDropped}).Info("collection finished")
	return out, nil
}

func (s *Service) failRun(ctx context.Context, run model.CollectionRun, cause error) (CollectResult, error) {
	run.Status = model.RunFailed
	run.FinishedAt = time.Now().UTC()
	run.ErrorSample = append(run.ErrorSample, model.ErrorSample{Reason: cause.Error()})
	if err := s.stores.Runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		s.log.WithField("run", run.RunID).WithError(err).Error("update failed run")
	}
	return CollectResult{Run: run}, cause
}

// saveOffers writes offers in chunks so a failure part way keeps what was already written.
func (s *Service) saveOffers(ctx context.Context, offers []model.PriceOffer, logger log.FieldLogger) error {
	if s.stores.Offers == nil || len(offers) == 0 {
		return nil
	}
	for start := 0; start < len(offers); start += s.writeBatch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		end := start + s.writeBatch
		if end > len(offers) {
			end = len(offers)
		}
		if err := s.stores.Offers.SaveOffers(ctx, offers[start:end]); err != nil {
			return fmt.Errorf("save offers [%d:%d]: %w", start, end, err)
		}
		logger.WithField("count", end-start).Debug("offers written")
	}
	return nil
}

func summarizeRun(run *model.CollectionRun, result BatchResult, stats model.Statistics) {
	run.ResultsPerMarket = make(map[string]int)
	run.ErrorsPerMarket = make(map[string]string)
	for market, b := range stats.ByMarket {
		run.ResultsPerMarket[market] = b.Total
	}
	for _, f := range result.Failures {
		if _, seen := run.ErrorsPerMarket[f.MarketID]; !seen {
			run.ErrorsPerMarket[f.MarketID] = f.Err.Error()
		}
		if len(run.ErrorSample) < maxErrorSamples {
			run.ErrorSample = append(run.ErrorSample, model.ErrorSample{Title: f.Title, Reason: f.Err.Error()})
		}
	}
	run.TotalRecords = result.Total()
	run.TotalOffers = len(result.Offers)
	run.TotalDropped = len(result.Failures)
	run.TotalComparable = stats.Comparable

	switch {
	case run.TotalRecords == 0:
		run.Status = model.RunNoResults
	case run.TotalOffers == 0:
		run.Status = model.RunFailed
	case run.TotalDropped > 0:
		run.Status = model.RunPartial
	default:
		run.Status = model.RunSuccess
	}
}

func storedRaws(runID, version string, records []model.RawRecord) []model.StoredRaw {
	now := time.Now().UTC()
	out := make([]model.StoredRaw, 0, len(records))
	for _, r := range records {
		out = append(out, model.StoredRaw{
			ID:            util.HashOfferKey(r.MarketID, r.URL, r.Title),
			RunID:         runID,
			ParserVersion: version,
			LastParsedAt:  now,
			Record:        r,
		})
	}
	return out
}

func requestedMarkets(req CollectRequest) []string {
	if len(req.Markets) > 0 {
		return req.Markets
	}
	seen := make(map[string]bool)
	var ids []string
	for _, r := range req.Records {
		if r.MarketID != "" && !seen[r.MarketID] {
			seen[r.MarketID] = true
			ids = append(ids, r.MarketID)
		}
	}
	sort.Strings(ids)
	return ids
}

func generateRunID() string {
	return fmt.Sprintf("RUN_%s_%s", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
}
