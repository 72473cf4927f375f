package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pricing"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

func raw(market, title, price string) model.RawRecord {
	return model.RawRecord{
		MarketID:    market,
		Title:       title,
		PriceRaw:    price,
		URL:         "https://example.com/p/" + title,
		SearchQuery: "arroz",
		CollectedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestPipeline(opts ...Option) *Pipeline {
	return New(pricing.NewCalculator(pricing.DefaultDecimalPlaces), markets.Default(), opts...)
}

func TestProcessOneScenarios(t *testing.T) {
	p := newTestPipeline()
	tests := []struct {
		name       string
		title      string
		price      string
		status     model.NormalizationStatus
		normalized string
		display    string
	}{
		{"rice", "Arroz Tipo 1 Tio João 5kg", "R$ 29,90", model.StatusSuccess, "5.98", "R$ 5,98/kg"},
		{"beer pack", "Cerveja Skol Pilsen 350ml Pack c/ 12 Latas", "R$ 39,90", model.StatusSuccess, "9.50", "R$ 9,50/L"},
		{"no quantity", "Creme de Leite Nestlé", "R$ 4,99", model.StatusPartial, "", "R$ 4,99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer, err := p.ProcessOne(raw("carrefour", tt.title, tt.price))
			if err != nil {
				t.Fatalf("ProcessOne: %v", err)
			}
			if offer.Status != tt.status {
				t.Errorf("Status = %q, want %q", offer.Status, tt.status)
			}
			if offer.PriceDisplay != tt.display {
				t.Errorf("PriceDisplay = %q, want %q", offer.PriceDisplay, tt.display)
			}
			if tt.normalized == "" {
				if offer.NormalizedPrice != nil {
					t.Errorf("NormalizedPrice = %s, want none", offer.NormalizedPrice)
				}
				return
			}
			if offer.NormalizedPrice == nil || !offer.NormalizedPrice.Equal(decimal.RequireFromString(tt.normalized)) {
				t.Errorf("NormalizedPrice = %v, want %s", offer.NormalizedPrice, tt.normalized)
			}
		})
	}
}

func TestProcessOneMarketName(t *testing.T) {
	p := newTestPipeline()

	offer, err := p.ProcessOne(raw("atacadao", "Feijão 1kg", "R$ 8,49"))
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if offer.MarketName != "Atacadão" {
		t.Errorf("MarketName = %q, want Atacadão", offer.MarketName)
	}

	offer, err = p.ProcessOne(raw("sonda", "Feijão 1kg", "R$ 8,49"))
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if offer.MarketName != "Sonda" {
		t.Errorf("MarketName = %q, want capitalized id", offer.MarketName)
	}

	offer, err = New(nil, nil).ProcessOne(raw("carrefour", "Feijão 1kg", "R$ 8,49"))
	if err != nil {
		t.Fatalf("ProcessOne without registry: %v", err)
	}
	if offer.MarketName != "Carrefour" {
		t.Errorf("MarketName = %q, want Carrefour", offer.MarketName)
	}
}

func TestProcessOneRejects(t *testing.T) {
	p := newTestPipeline()
	tests := []struct {
		name   string
		record model.RawRecord
		target error
	}{
		{"no digit", raw("carrefour", "Arroz 5kg", "Consulte"), model.ErrPriceNoDigit},
		{"empty title", raw("carrefour", "   ", "R$ 1,00"), model.ErrEmptyTitle},
		{"no market", raw("", "Arroz 5kg", "R$ 1,00"), model.ErrEmptyMarket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ProcessOne(tt.record)
			if !errors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
		})
	}

	_, err := p.ProcessOne(raw("carrefour", "Arroz 5kg", "R$ 5"))
	var perr *pricing.ParsingError
	if !errors.As(err, &perr) || perr.Field != "price" {
		t.Errorf("err = %v, want price ParsingError", err)
	}
}

func TestProcessOneIdempotent(t *testing.T) {
	p := newTestPipeline()
	r := raw("extra", "Óleo de Soja Liza 900ml", "R$ 7,99")

	a, errA := p.ProcessOne(r)
	b, errB := p.ProcessOne(r)
	if errA != nil || errB != nil {
		t.Fatalf("ProcessOne: %v, %v", errA, errB)
	}
	b.ID = a.ID
	if fmt.Sprintf("%+v", a.NormalizedPrice) != fmt.Sprintf("%+v", b.NormalizedPrice) {
		t.Errorf("normalized prices differ: %v vs %v", a.NormalizedPrice, b.NormalizedPrice)
	}
	a.NormalizedPrice, b.NormalizedPrice = nil, nil
	a.QuantityValue, b.QuantityValue = nil, nil
	a.QuantityUnit, b.QuantityUnit = nil, nil
	a.NormalizedUnit, b.NormalizedUnit = nil, nil
	if fmt.Sprintf("%+v", a) != fmt.Sprintf("%+v", b) {
		t.Errorf("offers differ:\n%+v\n%+v", a, b)
	}
}

type panicNamer struct{}

func (panicNamer) DisplayName(string) (string, error) { panic("registry exploded") }

func TestProcessOneRecoversPanic(t *testing.T) {
	p := New(nil, panicNamer{})
	_, err := p.ProcessOne(raw("carrefour", "Arroz 5kg", "R$ 29,90"))
	if !errors.Is(err, ErrUnexpected) {
		t.Fatalf("err = %v, want ErrUnexpected", err)
	}
}

func TestProcessBatchDropsBadRecord(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	p := newTestPipeline(WithLogger(logger))

	raws := []model.RawRecord{
		raw("carrefour", "Arroz Tipo 1 Tio João 5kg", "R$ 29,90"),
		raw("atacadao", "Arroz Camil 5kg", "R$ 27,50"),
		raw("extra", "Arroz Prato Fino 5kg", "preço indisponível"),
		raw("pao_acucar", "Arroz Integral 1kg", "R$ 9,99"),
		raw("carrefour", "Creme de Leite Nestlé", "R$ 4,99"),
	}

	offers := p.ProcessBatch(raws)
	if len(offers) != 4 {
		t.Fatalf("got %d offers, want 4", len(offers))
	}
	wantOrder := []string{"carrefour", "atacadao", "pao_acucar", "carrefour"}
	for i, w := range wantOrder {
		if offers[i].MarketID != w {
			t.Errorf("offers[%d] = %q, want %q", i, offers[i].MarketID, w)
		}
	}

	stats := Statistics(offers)
	if stats.Total != 4 {
		t.Errorf("stats.Total = %d, want 4", stats.Total)
	}

	var warned int
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && e.Message == "record dropped" {
			warned++
			if e.Data["market"] != "extra" {
				t.Errorf("dropped market = %v, want extra", e.Data["market"])
			}
		}
	}
	if warned != 1 {
		t.Errorf("got %d dropped-record warnings, want 1", warned)
	}
	if last := hook.LastEntry(); last == nil || last.Message != "batch processed" || last.Data["dropped"] != 1 {
		t.Errorf("unexpected summary entry: %+v", last)
	}
}

func TestProcessAllPartition(t *testing.T) {
	p := newTestPipeline()
	raws := []model.RawRecord{
		raw("carrefour", "Arroz 5kg", "R$ 29,90"),
		raw("carrefour", "", "R$ 1,00"),
		raw("carrefour", "Feijão 1kg", "sem preço"),
	}
	result := p.ProcessAll(raws)
	if len(result.Offers) != 1 || len(result.Failures) != 2 || result.Total() != 3 {
		t.Fatalf("unexpected partition: %d offers, %d failures", len(result.Offers), len(result.Failures))
	}
	if result.Failures[0].Index != 1 || result.Failures[1].Index != 2 {
		t.Errorf("failure indices = %d, %d", result.Failures[0].Index, result.Failures[1].Index)
	}
	if !errors.Is(result.Failures[0], model.ErrEmptyTitle) {
		t.Errorf("failure should unwrap to ErrEmptyTitle: %v", result.Failures[0])
	}
}

func TestProcessConcurrentMatchesSequential(t *testing.T) {
	p := newTestPipeline()
	var raws []model.RawRecord
	titles := []string{"Arroz 5kg", "Café 500g", "Leite 1L", "Creme de Leite", "Ovos 12 un", "Cerveja 6x350ml"}
	for i := 0; i < 60; i++ {
		price := fmt.Sprintf("R$ %d,90", 3+i)
		if i%7 == 0 {
			price = "consulte"
		}
		raws = append(raws, raw("carrefour", fmt.Sprintf("%s #%d", titles[i%len(titles)], i), price))
	}

	seq := p.ProcessAll(raws)
	conc := p.ProcessConcurrent(context.Background(), raws, 4)
	if len(seq.Offers) != len(conc.Offers) || len(seq.Failures) != len(conc.Failures) {
		t.Fatalf("sequential %d/%d vs concurrent %d/%d", len(seq.Offers), len(seq.Failures), len(conc.Offers), len(conc.Failures))
	}
	for i := range seq.Offers {
		if seq.Offers[i].Title != conc.Offers[i].Title || seq.Offers[i].PriceDisplay != conc.Offers[i].PriceDisplay {
			t.Errorf("offer %d: %q %q vs %q %q", i, seq.Offers[i].Title, seq.Offers[i].PriceDisplay, conc.Offers[i].Title, conc.Offers[i].PriceDisplay)
		}
	}
	for i := range seq.Failures {
		if seq.Failures[i].Index != conc.Failures[i].Index {
			t.Errorf("failure %d index %d vs %d", i, seq.Failures[i].Index, conc.Failures[i].Index)
		}
	}
}

func TestProcessConcurrentCanceled(t *testing.T) {
	p := newTestPipeline()
	raws := []model.RawRecord{
		raw("carrefour", "Arroz 5kg", "R$ 29,90"),
		raw("carrefour", "Feijão 1kg", "R$ 8,49"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := p.ProcessConcurrent(ctx, raws, 2)
	if len(result.Offers) != 0 || len(result.Failures) != 2 {
		t.Fatalf("got %d offers, %d failures; want 0, 2", len(result.Offers), len(result.Failures))
	}
	for _, f := range result.Failures {
		if !errors.Is(f, context.Canceled) {
			t.Errorf("failure = %v, want context.Canceled", f)
		}
	}

	if empty := p.ProcessConcurrent(context.Background(), nil, 3); empty.Total() != 0 {
		t.Errorf("empty input produced %d results", empty.Total())
	}
}

type countingRecorder struct {
	offers  map[model.NormalizationStatus]int
	dropped map[string]int
	batches int
}

func (c *countingRecorder) ObserveOffer(s model.NormalizationStatus) { c.offers[s]++ }
func (c *countingRecorder) ObserveDropped(m string)                  { c.dropped[m]++ }
func (c *countingRecorder) ObserveBatch(time.Duration)               { c.batches++ }

func TestProcessBatchRecordsMetrics(t *testing.T) {
	rec := &countingRecorder{offers: map[model.NormalizationStatus]int{}, dropped: map[string]int{}}
	p := newTestPipeline(WithMetrics(rec))
	p.ProcessBatch([]model.RawRecord{
		raw("carrefour", "Arroz 5kg", "R$ 29,90"),
		raw("carrefour", "Creme de Leite", "R$ 4,99"),
		raw("extra", "Feijão 1kg", "sem preço"),
	})
	if rec.offers[model.StatusSuccess] != 1 || rec.offers[model.StatusPartial] != 1 {
		t.Errorf("offers = %v", rec.offers)
	}
	if rec.dropped["extra"] != 1 || rec.batches != 1 {
		t.Errorf("dropped = %v, batches = %d", rec.dropped, rec.batches)
	}
}

func TestParserVersionStamped(t *testing.T) {
	p := newTestPipeline(WithParserVersion("v2.0"))
	offer, err := p.ProcessOne(raw("carrefour", "Arroz 5kg", "R$ 29,90"))
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if offer.ParserVersion != "v2.0" || p.ParserVersion() != "v2.0" {
		t.Errorf("ParserVersion = %q", offer.ParserVersion)
	}
}
