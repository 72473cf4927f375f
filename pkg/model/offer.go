package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// PriceOffer is the final comparable record for one product at one market.
type PriceOffer struct {
	ID              string              `json:"id"`
	MarketID        string              `json:"marketId"`
	MarketName      string              `json:"marketName"`
	Title           string              `json:"title"`
	URL             string              `json:"url"`
	ImageURL        string              `json:"imageUrl,omitempty"`
	Price           decimal.Decimal     `json:"price"`
	QuantityValue   *float64            `json:"quantityValue,omitempty"`
	QuantityUnit    *Unit               `json:"quantityUnit,omitempty"`
	NormalizedPrice *decimal.Decimal    `json:"normalizedPrice,omitempty"`
	NormalizedUnit  *Unit               `json:"normalizedUnit,omitempty"`
	PriceDisplay    string              `json:"priceDisplay"`
	Availability    Availability        `json:"availability"`
	Status          NormalizationStatus `json:"normalizationStatus"`
	SearchQuery     string              `json:"searchQuery"`
	CEP             string              `json:"cep,omitempty"`
	CollectedAt     time.Time           `json:"collectedAt"`
	ParserVersion   string              `json:"parserVersion,omitempty"`
}

// IsComparable reports whether the offer can be ranked against others by normalized price.
func (o PriceOffer) IsComparable() bool {
	return o.NormalizedPrice != nil && o.Status == StatusSuccess
}

// FormatPrice renders the package price, e.g. "R$ 29,90".
func (o PriceOffer) FormatPrice() string {
	return "R$ " + util.FormatBRL(o.Price)
}

// FormatNormalizedPrice renders the per-unit price, e.g. "R$ 5,98/kg", or "N/A".
func (o PriceOffer) FormatNormalizedPrice() string {
	if o.NormalizedPrice == nil || o.NormalizedUnit == nil {
		return "N/A"
	}
	return "R$ " + util.FormatBRL(*o.NormalizedPrice) + "/" + string(*o.NormalizedUnit)
}

// Validate checks the price is non-negative and a normalized price carries its unit.
func (o PriceOffer) Validate() error {
	if o.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if o.NormalizedPrice != nil {
		if o.NormalizedPrice.IsNegative() {
			return errors.New("normalized price must not be negative")
		}
		if o.NormalizedUnit == nil {
			return errors.New("normalized price requires a normalized unit")
		}
	}
	return nil
}

// MarshalJSON adds the derived isComparable flag.
func (o PriceOffer) MarshalJSON() ([]byte, error) {
	type alias PriceOffer
	return json.Marshal(struct {
		alias
		IsComparable bool `json:"isComparable"`
	}{alias: alias(o), IsComparable: o.IsComparable()})
}

// Savings compares a cheaper offer against another one in the same base unit.
type Savings struct {
	Absolute       decimal.Decimal `json:"absolute"`
	Percentage     decimal.Decimal `json:"percentage"`
	BestMarket     string          `json:"bestMarket"`
	ComparedMarket string          `json:"comparedMarket"`
	Unit           Unit            `json:"unit"`
}

// MarketBreakdown counts offers for a single market.
type MarketBreakdown struct {
	Total      int `json:"total" firestore:"total"`
	Comparable int `json:"comparable" firestore:"comparable"`
}

// PriceStats summarizes normalized prices of comparable offers.
type PriceStats struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
	Avg decimal.Decimal `json:"avg"`
}

// Statistics aggregates a batch of offers.
type Statistics struct {
	Total      int                         `json:"total"`
	Comparable int                         `json:"comparable"`
	Partial    int                         `json:"partial"`
	Failed     int                         `json:"failed"`
	ByMarket   map[string]MarketBreakdown  `json:"byMarket"`
	ByStatus   map[NormalizationStatus]int `json:"byStatus"`
	PriceStats *PriceStats                 `json:"priceStats,omitempty"`
}

// OfferQuery filters stored offers.
type OfferQuery struct {
	SearchQuery    string
	MarketID       string
	ComparableOnly bool
	Limit          int
}

// Matches reports whether o passes the query filters.
func (q OfferQuery) Matches(o PriceOffer) bool {
	if q.SearchQuery != "" && o.SearchQuery != q.SearchQuery {
		return false
	}
	if q.MarketID != "" && o.MarketID != q.MarketID {
		return false
	}
	if q.ComparableOnly && !o.IsComparable() {
		return false
	}
	return true
}
