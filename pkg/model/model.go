package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxTitleLength bounds RawRecord titles, in characters.
const MaxTitleLength = 500

var (
	ErrEmptyTitle   = errors.New("title is required")
	ErrTitleTooLong = fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	ErrPriceNoDigit = errors.New("price text must contain at least one digit")
	ErrEmptyMarket  = errors.New("market id is required")
)

// Unit is a unit of measure found in product titles.
type Unit string

const (
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitMilligram  Unit = "mg"
	UnitLiter      Unit = "L"
	UnitMilliliter Unit = "ml"
	UnitEach       Unit = "un"
	UnitPack       Unit = "pack"
	UnitDozen      Unit = "dz"
	UnitUnknown    Unit = "unknown"
)

// IsBase reports whether u is one of the comparison units: kg, L or un.
func (u Unit) IsBase() bool {
	return u == UnitKilogram || u == UnitLiter || u == UnitEach
}

// Availability is the stock status shown on the listing.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityLowStock    Availability = "low_stock"
	AvailabilityPreOrder    Availability = "pre_order"
	AvailabilityUnknown     Availability = "unknown"
)

// NormalizationStatus describes how far a record got through normalization.
type NormalizationStatus string

const (
	StatusSuccess       NormalizationStatus = "success"
	StatusPartial       NormalizationStatus = "partial"
	StatusFailed        NormalizationStatus = "failed"
	StatusNotApplicable NormalizationStatus = "n/a"
)

// RawRecord is a product listing exactly as collected from a market page.
type RawRecord struct {
	MarketID        string         `json:"marketId" firestore:"marketId"`
	ExternalID      string         `json:"externalId,omitempty" firestore:"externalId,omitempty"`
	Title           string         `json:"title" firestore:"title"`
	PriceRaw        string         `json:"priceRaw" firestore:"priceRaw"`
	UnitPriceRaw    string         `json:"unitPriceRaw,omitempty" firestore:"unitPriceRaw,omitempty"`
	URL             string         `json:"url" firestore:"url"`
	ImageURL        string         `json:"imageUrl,omitempty" firestore:"imageUrl,omitempty"`
	AvailabilityRaw string         `json:"availabilityRaw,omitempty" firestore:"availabilityRaw,omitempty"`
	Description     string         `json:"description,omitempty" firestore:"description,omitempty"`
	SearchQuery     string         `json:"searchQuery" firestore:"searchQuery"`
	CEP             string         `json:"cep,omitempty" firestore:"cep,omitempty"`
	CollectedAt     time.Time      `json:"collectedAt" firestore:"collectedAt"`
	Extra           map[string]any `json:"extra,omitempty" firestore:"extra,omitempty"`
}

// Clean returns a copy with the title whitespace collapsed and the price text trimmed.
func (r RawRecord) Clean() RawRecord {
	r.MarketID = strings.TrimSpace(r.MarketID)
	r.Title = strings.Join(strings.Fields(r.Title), " ")
	r.PriceRaw = strings.TrimSpace(r.PriceRaw)
	r.UnitPriceRaw = strings.TrimSpace(r.UnitPriceRaw)
	r.AvailabilityRaw = strings.TrimSpace(r.AvailabilityRaw)
	return r
}

// Validate checks the constraints a record must satisfy before it enters the pipeline.
func (r RawRecord) Validate() error {
	if strings.TrimSpace(r.MarketID) == "" {
		return ErrEmptyMarket
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if strings.IndexFunc(r.PriceRaw, unicode.IsDigit) < 0 {
		return ErrPriceNoDigit
	}
	return nil
}

// QuantityInfo is the package size extracted from a product title.
type QuantityInfo struct {
	Value      float64 `json:"value" firestore:"value"`
	Unit       Unit    `json:"unit" firestore:"unit"`
	BaseValue  float64 `json:"baseValue" firestore:"baseValue"`
	BaseUnit   Unit    `json:"baseUnit" firestore:"baseUnit"`
	Multiplier int     `json:"multiplier" firestore:"multiplier"`
	RawText    string  `json:"rawText" firestore:"rawText"`
	Rule       string  `json:"rule,omitempty" firestore:"rule,omitempty"`
}

// TotalBaseValue is the full quantity in base units, pack multiplier included.
func (q QuantityInfo) TotalBaseValue() float64 {
	return q.TotalBaseDecimal().InexactFloat64()
}

// TotalBaseDecimal is TotalBaseValue in decimal space, for money arithmetic.
func (q QuantityInfo) TotalBaseDecimal() decimal.Decimal {
	return decimal.NewFromFloat(q.BaseValue).Mul(decimal.NewFromInt(int64(q.Multiplier)))
}

// Validate checks value, base value and multiplier are in range.
func (q QuantityInfo) Validate() error {
	if q.Value <= 0 {
		return fmt.Errorf("quantity value must be positive, got %v", q.Value)
	}
	if q.BaseValue <= 0 {
		return fmt.Errorf("quantity base value must be positive, got %v", q.BaseValue)
	}
	if q.Multiplier < 1 {
		return fmt.Errorf("quantity multiplier must be at least 1, got %d", q.Multiplier)
	}
	if !q.BaseUnit.IsBase() {
		return fmt.Errorf("quantity base unit %q is not a base unit", q.BaseUnit)
	}
	return nil
}

// UnitPrice is a per-unit price printed by the site itself, e.g. "R$ 5,98/kg".
type UnitPrice struct {
	Price decimal.Decimal `json:"price"`
	Unit  string          `json:"unit"`
}

// NormalizedRecord is a parsed record with its quantity resolved, ready for pricing.
type NormalizedRecord struct {
	MarketID      string
	MarketName    string
	Title         string
	Price         decimal.Decimal
	Quantity      *QuantityInfo
	Status        NormalizationStatus
	Availability  Availability
	SiteUnitPrice *UnitPrice
	URL           string
	ImageURL      string
	SearchQuery   string
	CEP           string
	CollectedAt   time.Time
}

// NewNormalizedRecord returns rec with a success status downgraded to partial when no quantity is present.
func NewNormalizedRecord(rec NormalizedRecord) NormalizedRecord {
	if rec.Status == StatusSuccess && rec.Quantity == nil {
		rec.Status = StatusPartial
	}
	if rec.Availability == "" {
		rec.Availability = AvailabilityUnknown
	}
	return rec
}
