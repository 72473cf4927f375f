package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/logging"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
	shutdownFlushTimeout = 10 * time.Second
)

// Ingest outcomes reported to the Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeDecodeError = "decode_error"
	OutcomeInvalid     = "invalid"
)

// Reader abstracts kafka.Reader for testability.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Collector receives decoded batches.
type Collector interface {
	Collect(ctx context.Context, req pipeline.CollectRequest) (pipeline.CollectResult, error)
}

// Recorder counts consumed messages by outcome.
type Recorder interface {
	ObserveIngest(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveIngest(string) {}

// NewReader creates a consumer-group reader. Offsets are committed explicitly.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Consumer reads raw records from a topic and hands them to the collector in batches.
// A batch is flushed when it reaches the batch size or when the flush interval has passed
// since its first message. Offsets are committed only after the batch was collected.
type Consumer struct {
	reader    Reader
	collector Collector
	batchSize int
	flush     time.Duration
	log       log.FieldLogger
	metrics   Recorder
}

// Option configures a Consumer.
type Option func(*Consumer)

func WithBatchSize(n int) Option {
	return func(c *Consumer) { c.batchSize = n }
}

func WithFlushInterval(d time.Duration) Option {
	return func(c *Consumer) { c.flush = d }
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Consumer) { c.log = l }
}

func WithMetrics(r Recorder) Option {
	return func(c *Consumer) { c.metrics = r }
}

func NewConsumer(reader Reader, collector Collector, opts ...Option) *Consumer {
	c := &Consumer{
		reader:    reader,
		collector: collector,
		batchSize: DefaultBatchSize,
		flush:     DefaultFlushInterval,
		log:       logging.Discard(),
		metrics:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.flush <= 0 {
		c.flush = DefaultFlushInterval
	}
	return c
}

// Run consumes until ctx is canceled. The pending batch is flushed before returning.
func (c *Consumer) Run(ctx context.Context) error {
	var (
		pending []kafka.Message
		started time.Time
	)
	for {
		fetchCtx, cancel := ctx, context.CancelFunc(func() {})
		if len(pending) > 0 {
			fetchCtx, cancel = context.WithDeadline(ctx, started.Add(c.flush))
		}
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				flushCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
				defer done()
				return c.Flush(flushCtx, pending)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if err := c.Flush(ctx, pending); err != nil {
					return err
				}
				pending = nil
				continue
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if len(pending) == 0 {
			started = time.Now()
		}
		pending = append(pending, msg)
		if len(pending) >= c.batchSize {
			if err := c.Flush(ctx, pending); err != nil {
				return err
			}
			pending = nil
		}
	}
}

// Flush decodes msgs, collects one run per search query and commits the messages.
// Messages that cannot be decoded or fail validation are logged and committed so they
// are not redelivered forever.
func (c *Consumer) Flush(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var (
		order   []string
		byQuery = map[string][]model.RawRecord{}
	)
	for _, m := range msgs {
		rec, err := decodeRecord(m.Value)
		if err != nil {
			c.metrics.ObserveIngest(err.outcome)
			c.log.WithFields(log.Fields{
				"partition": m.Partition,
				"offset":    m.Offset,
			}).WithError(err).Warn("skipping message")
			continue
		}
		c.metrics.ObserveIngest(OutcomeOK)
		if _, seen := byQuery[rec.SearchQuery]; !seen {
			order = append(order, rec.SearchQuery)
		}
		byQuery[rec.SearchQuery] = append(byQuery[rec.SearchQuery], rec)
	}

	for _, q := range order {
		res, err := c.collector.Collect(ctx, pipeline.CollectRequest{SearchQuery: q, Records: byQuery[q]})
		if err != nil {
			return fmt.Errorf("collect %q: %w", q, err)
		}
		c.log.WithFields(log.Fields{
			"run":     res.Run.RunID,
			"query":   q,
			"records": len(byQuery[q]),
			"offers":  len(res.Offers),
		}).Info("ingested batch")
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

type decodeError struct {
	outcome string
	err     error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func decodeRecord(value []byte) (model.RawRecord, *decodeError) {
	var rec model.RawRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return model.RawRecord{}, &decodeError{outcome: OutcomeDecodeError, err: fmt.Errorf("decode record: %w", err)}
	}
	rec = rec.Clean()
	if err := rec.Validate(); err != nil {
		return model.RawRecord{}, &decodeError{outcome: OutcomeInvalid, err: err}
	}
	if rec.CollectedAt.IsZero() {
		rec.CollectedAt = time.Now().UTC()
	}
	return rec, nil
}
