package collector

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
)

func mustMarket(t *testing.T, id string) markets.Market {
	t.Helper()
	m, err := markets.Default().Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", id, err)
	}
	return m
}

func TestParseProductCardsCarrefour(t *testing.T) {
	f, err := os.Open("testdata/carrefour_search.html")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	collected := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	page, err := ParseProductCards(f, mustMarket(t, "carrefour"), CollectionContext{SearchQuery: "arroz", CEP: "01310-100", CollectedAt: collected})
	if err != nil {
		t.Fatalf("ParseProductCards: %v", err)
	}
	if len(page.Records) != 3 || page.Skipped != 1 {
		t.Fatalf("got %d records, %d skipped; want 3, 1", len(page.Records), page.Skipped)
	}

	rice := page.Records[0]
	if rice.Title != "Arroz Tipo 1 Tio João 5kg" {
		t.Errorf("Title = %q", rice.Title)
	}
	if rice.PriceRaw != "R$ 29,90" {
		t.Errorf("PriceRaw = %q", rice.PriceRaw)
	}
	if rice.UnitPriceRaw != "R$ 5,98/kg" {
		t.Errorf("UnitPriceRaw = %q", rice.UnitPriceRaw)
	}
	if rice.URL != "https://mercado.carrefour.com.br/arroz-tipo-1-tio-joao-5kg/p" {
		t.Errorf("URL = %q", rice.URL)
	}
	if rice.AvailabilityRaw != "Disponível" || rice.MarketID != "carrefour" {
		t.Errorf("availability/market = %q/%q", rice.AvailabilityRaw, rice.MarketID)
	}
	if rice.SearchQuery != "arroz" || rice.CEP != "01310-100" || !rice.CollectedAt.Equal(collected) {
		t.Errorf("context not stamped: %+v", rice)
	}

	beer := page.Records[1]
	if beer.ImageURL != "https://mercado.carrefour.com.br/img/skol.jpg" {
		t.Errorf("ImageURL = %q", beer.ImageURL)
	}
	if beer.UnitPriceRaw != "" {
		t.Errorf("promo text should not be read as unit price: %q", beer.UnitPriceRaw)
	}

	cream := page.Records[2]
	if cream.Title != "Creme de Leite Nestlé" || cream.PriceRaw != "Oferta R$ 4,99" {
		t.Errorf("fallbacks: title %q price %q", cream.Title, cream.PriceRaw)
	}
}

func TestParseProductCardsCentsAndAvailability(t *testing.T) {
	market := markets.Market{
		ID:      "teste",
		BaseURL: "https://mercado.example",
		Selectors: markets.Selectors{
			ProductContainer: "article.card",
			Title:            "h3",
			Price:            "span.int",
			PriceCents:       "span.cents",
			Link:             "a.product",
			Availability:     "button.buy",
		},
	}
	html := `<html><body>
		<article class="card"><a class="product" href="/feijao/p"><h3>Feijão Carioca 1kg</h3></a>
			<span class="int">R$ 8,</span><span class="cents">49</span><button class="buy">Adicionar</button></article>
		<article class="card"><a class="product" href="/oleo/p"><h3>Óleo de Soja 900ml</h3></a>
			<span class="int">R$ 7</span><span class="cents">,99</span><button class="buy" disabled>Adicionar</button></article>
		<article class="card"><a class="product" href="/acucar/p"><h3>Açúcar Refinado 1kg</h3></a>
			<span class="int">R$ 4</span><span class="cents">59</span></article>
	</body></html>`

	page, err := ParseProductCards(strings.NewReader(html), market, CollectionContext{})
	if err != nil {
		t.Fatalf("ParseProductCards: %v", err)
	}
	if len(page.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(page.Records))
	}

	tests := []struct {
		price, availability, url string
	}{
		{"R$ 8,49", "Adicionar", "https://mercado.example/feijao/p"},
		{"R$ 7,99", "Indisponível", "https://mercado.example/oleo/p"},
		{"R$ 4,59", "Indisponível", "https://mercado.example/acucar/p"},
	}
	for i, tt := range tests {
		r := page.Records[i]
		if r.PriceRaw != tt.price || r.AvailabilityRaw != tt.availability || r.URL != tt.url {
			t.Errorf("record %d = %q %q %q, want %q %q %q", i, r.PriceRaw, r.AvailabilityRaw, r.URL, tt.price, tt.availability, tt.url)
		}
		if r.CollectedAt.IsZero() {
			t.Errorf("record %d CollectedAt should default to now", i)
		}
	}
}

func TestLoadJSONL(t *testing.T) {
	f, err := os.Open("testdata/records.jsonl")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	records, err := LoadJSONL(f)
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[1].MarketID != "atacadao" || records[1].UnitPriceRaw != "R$ 5,50/kg" {
		t.Errorf("record 1 = %+v", records[1])
	}
	if records[0].CollectedAt.IsZero() {
		t.Error("collectedAt not decoded")
	}

	_, err = LoadJSONL(strings.NewReader("{\"title\":\"ok\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v, want line 2 error", err)
	}
}
