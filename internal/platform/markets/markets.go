package markets

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// ErrUnknownMarket is returned when a market id is not registered.
var ErrUnknownMarket = errors.New("unknown market")

// Status tracks whether a market is collected.
type Status string

const (
	StatusActive      Status = "active"
	StatusDevelopment Status = "development"
	StatusDisabled    Status = "disabled"
	StatusDeprecated  Status = "deprecated"
)

// Selectors are the CSS selectors that locate product data on a search results page.
// An empty Link means the product container itself is the anchor.
type Selectors struct {
	ProductContainer string
	Title            string
	Price            string
	PriceCents       string
	UnitPrice        string
	Image            string
	Link             string
	Availability     string
}

// Market describes a supported supermarket.
type Market struct {
	ID                string
	DisplayName       string
	BaseURL           string
	SearchURLTemplate string
	Status            Status
	RequiresCEP       bool
	MaxPages          int
	Selectors         Selectors
}

// SearchURL builds the search page URL for query; page is 0-indexed.
func (m Market) SearchURL(query string, page int) string {
	r := strings.NewReplacer(
		"{base_url}", m.BaseURL,
		"{query}", url.QueryEscape(query),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(m.SearchURLTemplate)
}

// Registry is a read-only table of markets keyed by id.
type Registry struct {
	markets map[string]Market
}

// NewRegistry builds a registry from the given markets.
func NewRegistry(list ...Market) *Registry {
	r := &Registry{markets: make(map[string]Market, len(list))}
	for _, m := range list {
		r.markets[m.ID] = m
	}
	return r
}

// Default returns the registry of supported Brazilian supermarkets.
func Default() *Registry {
	return NewRegistry(carrefour, atacadao, paoDeAcucar, extra)
}

// Lookup returns the market registered under id.
func (r *Registry) Lookup(id string) (Market, error) {
	m, ok := r.markets[id]
	if !ok {
		return Market{}, fmt.Errorf("%w: %s", ErrUnknownMarket, id)
	}
	return m, nil
}

// DisplayName returns the market's name for display, or ErrUnknownMarket.
func (r *Registry) DisplayName(id string) (string, error) {
	m, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return m.DisplayName, nil
}

// NameOrDefault returns the display name, falling back to the capitalized id.
func (r *Registry) NameOrDefault(id string) string {
	if name, err := r.DisplayName(id); err == nil {
		return name
	}
	return util.Capitalize(id)
}

// Active returns markets in active or development status, sorted by id.
func (r *Registry) Active() []Market {
	var out []Market
	for _, m := range r.markets {
		if m.Status == StatusActive || m.Status == StatusDevelopment {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every registered market id, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.markets))
	for id := range r.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
