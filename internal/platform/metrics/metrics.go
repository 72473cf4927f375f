package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

type Registry struct {
	reg              *prometheus.Registry
	RecordsProcessed prometheus.Counter
	RecordsDropped   *prometheus.CounterVec
	Offers           *prometheus.CounterVec
	IngestMessages   *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grocery_records_processed_total",
		Help: "Raw records handed to the pipeline.",
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grocery_records_dropped_total",
		Help: "Raw records dropped, by market.",
	}, []string{"market"})
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grocery_offers_total",
		Help: "Offers produced, by normalization status.",
	}, []string{"status"})
	ingest := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grocery_ingest_messages_total",
		Help: "Kafka messages consumed, by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grocery_batch_duration_seconds",
		Help:    "Wall time of pipeline batches.",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(processed, dropped, offers, ingest, duration)
	return &Registry{
		reg:              r,
		RecordsProcessed: processed,
		RecordsDropped:   dropped,
		Offers:           offers,
		IngestMessages:   ingest,
		BatchDuration:    duration,
	}
}

// ObserveOffer counts one processed record that produced an offer.
func (r *Registry) ObserveOffer(status model.NormalizationStatus) {
	r.RecordsProcessed.Inc()
	r.Offers.WithLabelValues(string(status)).Inc()
}

// ObserveDropped counts one processed record that was dropped.
func (r *Registry) ObserveDropped(marketID string) {
	r.RecordsProcessed.Inc()
	r.RecordsDropped.WithLabelValues(marketID).Inc()
}

// ObserveBatch records the duration of a batch.
func (r *Registry) ObserveBatch(d time.Duration) {
	r.BatchDuration.Observe(d.Seconds())
}

// ObserveIngest counts a consumed message by outcome ("ok", "decode_error", ...).
func (r *Registry) ObserveIngest(outcome string) {
	r.IngestMessages.WithLabelValues(outcome).Inc()
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
