package pipeline

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pricing"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/logging"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// CurrentParserVersion tracks the parsing rules version for reprocessing support.
const CurrentParserVersion = "v1.0"

// ErrUnexpected marks a record that failed for a reason other than bad input.
var ErrUnexpected = errors.New("unexpected failure")

// MarketNamer resolves a market id to its display name.
type MarketNamer interface {
	DisplayName(id string) (string, error)
}

// Recorder receives per-record and per-batch measurements.
type Recorder interface {
	ObserveOffer(status model.NormalizationStatus)
	ObserveDropped(marketID string)
	ObserveBatch(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOffer(model.NormalizationStatus) {}
func (noopRecorder) ObserveDropped(string)                  {}
func (noopRecorder) ObserveBatch(time.Duration)             {}

// Pipeline runs raw records through parsing, quantity extraction and pricing.
type Pipeline struct {
	calc    *pricing.Calculator
	markets MarketNamer
	log     log.FieldLogger
	metrics Recorder
	version string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by ProcessBatch and Report.
func WithLogger(l log.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(p *Pipeline) { p.metrics = r }
}

// WithParserVersion overrides the version stamped on offers.
func WithParserVersion(v string) Option {
	return func(p *Pipeline) { p.version = v }
}

// New builds a Pipeline. markets may be nil, in which case ids are capitalized for display.
func New(calc *pricing.Calculator, markets MarketNamer, opts ...Option) *Pipeline {
	if calc == nil {
		calc = pricing.NewCalculator(pricing.DefaultDecimalPlaces)
	}
	p := &Pipeline{
		calc:    calc,
		markets: markets,
		log:     logging.Discard(),
		metrics: noopRecorder{},
		version: CurrentParserVersion,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Calculator returns the calculator used to price offers.
func (p *Pipeline) Calculator() *pricing.Calculator { return p.calc }

// ParserVersion returns the version stamped on produced offers.
func (p *Pipeline) ParserVersion() string { return p.version }

// ProcessOne turns one raw record into an offer. Records whose price cannot be read
// are rejected with an error; a missing quantity only downgrades the offer to partial.
func (p *Pipeline) ProcessOne(raw model.RawRecord) (offer model.PriceOffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			offer = model.PriceOffer{}
			err = fmt.Errorf("%w processing %q: %v", ErrUnexpected, raw.Title, r)
		}
	}()

	raw = raw.Clean()
	if err := raw.Validate(); err != nil {
		return model.PriceOffer{}, fmt.Errorf("invalid record: %w", err)
	}
	parsed, err := pricing.ParseRaw(raw)
	if err != nil {
		return model.PriceOffer{}, fmt.Errorf("parse record: %w", err)
	}
	quantity := pricing.ExtractFromRecord(raw)

	rec := model.NewNormalizedRecord(model.NormalizedRecord{
		MarketID:      raw.MarketID,
		MarketName:    p.marketName(raw.MarketID),
		Title:         raw.Title,
		Price:         parsed.Price,
		Quantity:      quantity,
		Status:        model.StatusSuccess,
		Availability:  parsed.Availability,
		SiteUnitPrice: parsed.UnitPrice,
		URL:           util.CleanLink(raw.URL),
		ImageURL:      util.CleanLink(raw.ImageURL),
		SearchQuery:   raw.SearchQuery,
		CEP:           raw.CEP,
		CollectedAt:   raw.CollectedAt,
	})

	offer = p.calc.CreatePriceOffer(rec)
	offer.ParserVersion = p.version
	return offer, nil
}

func (p *Pipeline) marketName(id string) string {
	if p.markets != nil {
		if name, err := p.markets.DisplayName(id); err == nil {
			return name
		}
	}
	return util.Capitalize(id)
}

// RecordError is a record that was dropped from a batch.
type RecordError struct {
	Index    int
	MarketID string
	Title    string
	Err      error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s %q): %v", e.Index, e.MarketID, e.Title, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// BatchResult holds the offers produced from a batch, in input order, and the dropped records.
type BatchResult struct {
	Offers   []model.PriceOffer
	Failures []RecordError
}

// Total is the number of input records.
func (b BatchResult) Total() int { return len(b.Offers) + len(b.Failures) }

type outcome struct {
	offer model.PriceOffer
	err   error
}

// ProcessAll processes records sequentially and partitions the outcomes. It has no side effects.
func (p *Pipeline) ProcessAll(raws []model.RawRecord) BatchResult {
	outcomes := make([]outcome, len(raws))
	for i, raw := range raws {
		offer, err := p.ProcessOne(raw)
		outcomes[i] = outcome{offer: offer, err: err}
	}
	return partition(raws, outcomes)
}

func partition(raws []model.RawRecord, outcomes []outcome) BatchResult {
	result := BatchResult{Offers: make([]model.PriceOffer, 0, len(raws))}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, RecordError{
				Index:    i,
				MarketID: raws[i].MarketID,
				Title:    raws[i].Title,
				Err:      o.err,
			})
			continue
		}
		result.Offers = append(result.Offers, o.offer)
	}
	return result
}

// ProcessBatch processes records in order, logs dropped records and returns the offers.
func (p *Pipeline) ProcessBatch(raws []model.RawRecord) []model.PriceOffer {
	start := time.Now()
	result := p.ProcessAll(raws)
	p.Report(result, time.Since(start))
	return result.Offers
}

// Report logs the failures and summary of a batch and records its metrics.
func (p *Pipeline) Report(result BatchResult, elapsed time.Duration) {
	for _, f := range result.Failures {
		entry := p.log.WithFields(log.Fields{"market": f.MarketID, "title": util.Truncate(f.Title, 80)})
		if errors.Is(f.Err, ErrUnexpected) {
			entry.WithError(f.Err).Error("record failed unexpectedly")
		} else {
			entry.WithError(f.Err).Warn("record dropped")
		}
		p.metrics.ObserveDropped(f.MarketID)
	}
	for _, o := range result.Offers {
		p.log.WithFields(log.Fields{
			"market": o.MarketID,
			"status": o.Status,
			"price":  o.PriceDisplay,
		}).Debug("offer created")
		p.metrics.ObserveOffer(o.Status)
	}
	p.metrics.ObserveBatch(elapsed)

	p.log.WithFields(log.Fields{
		"total":    result.Total(),
		"offers":   len(result.Offers),
		"dropped":  len(result.Failures),
		"duration": elapsed.Round(time.Millisecond).String(),
	}).Info("batch processed")
}
