package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

func TestRegistryExposesCounters(t *testing.T) {
	r := NewRegistry()
	r.ObserveOffer(model.StatusSuccess)
	r.ObserveOffer(model.StatusPartial)
	r.ObserveDropped("carrefour")
	r.ObserveIngest("ok")
	r.ObserveBatch(150 * time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"grocery_records_processed_total 3",
		`grocery_offers_total{status="success"} 1`,
		`grocery_records_dropped_total{market="carrefour"} 1`,
		`grocery_ingest_messages_total{outcome="ok"} 1`,
		"grocery_batch_duration_seconds_count 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
