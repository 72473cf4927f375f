package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// MemoryStore keeps offers, raw records, runs and statistics in process memory.
// It backs the CLI, tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu         sync.RWMutex
	offerOrder []string
	offers     map[string]model.PriceOffer
	raws       map[string]model.StoredRaw
	rawOrder   []string
	runs       map[string]model.CollectionRun
	stats      map[string]model.Statistics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offers: make(map[string]model.PriceOffer),
		raws:   make(map[string]model.StoredRaw),
		runs:   make(map[string]model.CollectionRun),
		stats:  make(map[string]model.Statistics),
	}
}

func (m *MemoryStore) SaveOffers(ctx context.Context, offers []model.PriceOffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range offers {
		key := offerDocumentID(o)
		if _, ok := m.offers[key]; !ok {
			m.offerOrder = append(m.offerOrder, key)
		}
		m.offers[key] = o
	}
	return nil
}

// ListOffers returns matching offers in first-saved order.
func (m *MemoryStore) ListOffers(ctx context.Context, q model.OfferQuery) ([]model.PriceOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.PriceOffer
	for _, key := range m.offerOrder {
		o := m.offers[key]
		if !q.Matches(o) {
			continue
		}
		out = append(out, o)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveRaw(ctx context.Context, raws []model.StoredRaw) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range raws {
		if r.ID == "" {
			r.ID = util.HashOfferKey(r.Record.MarketID, r.Record.URL, r.Record.Title)
		}
		if _, ok := m.raws[r.ID]; !ok {
			m.rawOrder = append(m.rawOrder, r.ID)
		}
		m.raws[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) FetchRaw(ctx context.Context) ([]model.StoredRaw, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.StoredRaw, 0, len(m.rawOrder))
	for _, id := range m.rawOrder {
		out = append(out, m.raws[id])
	}
	return out, nil
}

func (m *MemoryStore) CreateRun(ctx context.Context, run model.CollectionRun) error {
	if run.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) UpdateRun(ctx context.Context, run model.CollectionRun) error {
	return m.CreateRun(ctx, run)
}

func (m *MemoryStore) GetRun(ctx context.Context, runID string) (model.CollectionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return model.CollectionRun{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (m *MemoryStore) ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	m.mu.RLock()
	out := make([]model.CollectionRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveStatistics(ctx context.Context, searchQuery string, stats model.Statistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[searchQuery] = stats
	return nil
}

func (m *MemoryStore) GetStatistics(ctx context.Context, searchQuery string) (model.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats, ok := m.stats[searchQuery]
	if !ok {
		return model.Statistics{}, fmt.Errorf("statistics for %q: %w", searchQuery, model.ErrNotFound)
	}
	return stats, nil
}
