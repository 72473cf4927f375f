package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pricing"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/logging"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/metrics"
	"github.com/weiwei-tsao/grocery-price-compare/internal/repository"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

const recordsBody = `{
	"searchQuery": "arroz",
	"records": [
		{"marketId": "carrefour", "title": "Arroz Tipo 1 Tio João 5kg", "priceRaw": "R$ 29,90", "url": "https://mercado.carrefour.com.br/arroz/p"},
		{"marketId": "atacadao", "title": "Arroz Tipo 1 Camil 5kg", "priceRaw": "R$ 27,50", "url": "https://www.atacadao.com.br/arroz/p"},
		{"marketId": "extra", "title": "Arroz Parboilizado 1L", "priceRaw": "R$ 6,00", "url": "https://www.extra.com.br/arroz/p"},
		{"marketId": "extra", "title": "Arroz Prato Fino", "priceRaw": "esgotado", "url": "https://www.extra.com.br/prato-fino/p"}
	]
}`

func newTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	reg := markets.Default()
	p := pipeline.New(pricing.NewCalculator(pricing.DefaultDecimalPlaces), reg)
	svc := pipeline.NewService(p, pipeline.Stores{Offers: store, Raws: store, Runs: store, Stats: store})
	router := NewRouter(svc, reg, Options{Metrics: metrics.NewRegistry().Handler(), Logger: logging.Discard()})
	return router, store
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)
	if w := do(router, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("healthz = %d %s", w.Code, w.Body)
	}
	if w := do(router, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics = %d", w.Code)
	}
	w := do(router, http.MethodOptions, "/api/offers", "")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", w.Code, w.Header())
	}
}

func TestProcessOffersEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/offers/process", recordsBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Offers     []map[string]any `json:"offers"`
		Statistics model.Statistics `json:"statistics"`
		Dropped    int              `json:"dropped"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Offers) != 3 || resp.Dropped != 1 || resp.Statistics.Total != 3 {
		t.Errorf("offers=%d dropped=%d total=%d", len(resp.Offers), resp.Dropped, resp.Statistics.Total)
	}
	if resp.Offers[0]["priceDisplay"] != "R$ 5,98/kg" || resp.Offers[0]["isComparable"] != true {
		t.Errorf("first offer = %v", resp.Offers[0])
	}

	stored, _ := store.ListOffers(context.Background(), model.OfferQuery{})
	if len(stored) != 0 {
		t.Errorf("process endpoint persisted %d offers", len(stored))
	}

	if w := do(router, http.MethodPost, "/api/offers/process", "{"); w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", w.Code)
	}
}

func TestCollectAndQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/collect", recordsBody)
	if w.Code != http.StatusOK {
		t.Fatalf("collect = %d: %s", w.Code, w.Body)
	}
	var collected struct {
		Run  model.CollectionRun `json:"run"`
		Best map[string]any      `json:"best"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &collected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if collected.Run.Status != model.RunPartial || collected.Best["marketId"] != "atacadao" {
		t.Errorf("run=%+v best=%v", collected.Run, collected.Best)
	}

	w = do(router, http.MethodGet, "/api/offers?query=arroz&comparableOnly=true", "")
	var list struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 3 || list.Items[0]["marketId"] != "atacadao" {
		t.Errorf("offers = %+v", list)
	}

	w = do(router, http.MethodPost, "/api/offers/compare", `{"searchQuery":"arroz"}`)
	var cmp struct {
		Best    map[string]any  `json:"best"`
		Savings []model.Savings `json:"savings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cmp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmp.Best["marketId"] != "atacadao" || len(cmp.Savings) != 1 || cmp.Savings[0].ComparedMarket != "Carrefour" {
		t.Errorf("compare = %+v", cmp)
	}
	if w := do(router, http.MethodPost, "/api/offers/compare", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty compare status = %d", w.Code)
	}

	w = do(router, http.MethodGet, "/api/offers/export?query=arroz", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("export = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if lines := strings.Count(strings.TrimSpace(w.Body.String()), "\n"); lines != 3 {
		t.Errorf("export has %d data rows, want 3", lines)
	}

	w = do(router, http.MethodGet, "/api/stats?query=arroz", "")
	var stats model.Statistics
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil || stats.Total != 3 || stats.Comparable != 3 {
		t.Errorf("stats = %+v, %v", stats, err)
	}

	w = do(router, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), collected.Run.RunID) {
		t.Errorf("runs = %d %s", w.Code, w.Body)
	}
	if w := do(router, http.MethodGet, "/api/runs/"+collected.Run.RunID, ""); w.Code != http.StatusOK {
		t.Errorf("get run = %d", w.Code)
	}
	if w := do(router, http.MethodGet, "/api/runs/RUN_missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing run = %d", w.Code)
	}
	if w := do(router, http.MethodPost, "/api/runs/RUN_missing/cancel", ""); w.Code != http.StatusNotFound {
		t.Errorf("cancel missing run = %d", w.Code)
	}
}

func TestCollectRejectsUnknownMarket(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/collect", `{"markets":["walmart"],"records":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"carrefour"`) {
		t.Errorf("body should list known markets: %s", w.Body)
	}
}

func TestCollectAsyncAndReprocess(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/collect?async=true", recordsBody)
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), "runId") {
		t.Fatalf("async collect = %d %s", w.Code, w.Body)
	}

	w = do(router, http.MethodPost, "/api/reprocess", `{"onlyOutdated":true}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("reprocess = %d %s", w.Code, w.Body)
	}

	if w := do(router, http.MethodGet, "/api/runs/active", ""); w.Code != http.StatusOK {
		t.Errorf("active runs = %d", w.Code)
	}
}

func TestListMarkets(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodGet, "/api/markets", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Atacadão") || strings.Contains(w.Body.String(), `"extra"`) {
		t.Errorf("markets = %d %s", w.Code, w.Body)
	}
}
