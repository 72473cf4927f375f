package pricing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// DefaultDecimalPlaces is the rounding precision for normalized prices.
const DefaultDecimalPlaces = 2

var hundred = decimal.NewFromInt(100)

// Calculator turns normalized records into priced offers and ranks them.
type Calculator struct {
	places int32
	newID  func() string
}

// NewCalculator returns a Calculator rounding to decimalPlaces; values <= 0 use DefaultDecimalPlaces.
func NewCalculator(decimalPlaces int) *Calculator {
	if decimalPlaces <= 0 {
		decimalPlaces = DefaultDecimalPlaces
	}
	return &Calculator{places: int32(decimalPlaces), newID: uuid.NewString}
}

// CalculateNormalizedPrice divides price by the total base quantity, rounding half-up.
// ok is false when the quantity is missing or not positive.
func (c *Calculator) CalculateNormalizedPrice(price decimal.Decimal, q *model.QuantityInfo) (decimal.Decimal, model.Unit, bool) {
	if q == nil {
		return decimal.Zero, "", false
	}
	total := q.TotalBaseDecimal()
	if !total.IsPositive() {
		return decimal.Zero, "", false
	}
	return price.DivRound(total, c.places), q.BaseUnit, true
}

// CreatePriceOffer prices a normalized record. Records without a usable quantity become
// partial offers, or failed ones when the price is zero.
func (c *Calculator) CreatePriceOffer(rec model.NormalizedRecord) model.PriceOffer {
	offer := model.PriceOffer{
		ID:           c.newID(),
		MarketID:     rec.MarketID,
		MarketName:   rec.MarketName,
		Title:        rec.Title,
		URL:          rec.URL,
		ImageURL:     rec.ImageURL,
		Price:        rec.Price,
		Availability: rec.Availability,
		SearchQuery:  rec.SearchQuery,
		CEP:          rec.CEP,
		CollectedAt:  rec.CollectedAt,
	}
	if offer.CollectedAt.IsZero() {
		offer.CollectedAt = time.Now().UTC()
	}
	if rec.Quantity != nil {
		total := rec.Quantity.TotalBaseValue()
		unit := rec.Quantity.BaseUnit
		offer.QuantityValue = &total
		offer.QuantityUnit = &unit
	}

	if normalized, unit, ok := c.CalculateNormalizedPrice(rec.Price, rec.Quantity); ok {
		offer.NormalizedPrice = &normalized
		offer.NormalizedUnit = &unit
		offer.Status = model.StatusSuccess
		offer.PriceDisplay = "R$ " + util.FormatBRL(normalized) + "/" + string(unit)
		return offer
	}

	offer.Status = model.StatusPartial
	if rec.Price.IsZero() {
		offer.Status = model.StatusFailed
	}
	offer.PriceDisplay = "R$ " + util.FormatBRL(rec.Price)
	return offer
}

// CompareOffers ranks comparable offers by normalized price, followed by the rest by package price.
// Ties keep their input order.
func (c *Calculator) CompareOffers(offers []model.PriceOffer, ascending bool) []model.PriceOffer {
	var comparable, rest []model.PriceOffer
	for _, o := range offers {
		if o.IsComparable() {
			comparable = append(comparable, o)
		} else {
			rest = append(rest, o)
		}
	}

	less := func(a, b decimal.Decimal) bool {
		if ascending {
			return a.LessThan(b)
		}
		return a.GreaterThan(b)
	}
	sort.SliceStable(comparable, func(i, j int) bool {
		return less(*comparable[i].NormalizedPrice, *comparable[j].NormalizedPrice)
	})
	sort.SliceStable(rest, func(i, j int) bool {
		return less(rest[i].Price, rest[j].Price)
	})

	return append(comparable, rest...)
}

// FindBestOffer returns the comparable offer with the lowest normalized price; the first wins ties.
func (c *Calculator) FindBestOffer(offers []model.PriceOffer) (model.PriceOffer, bool) {
	var best model.PriceOffer
	found := false
	for _, o := range offers {
		if !o.IsComparable() {
			continue
		}
		if !found || o.NormalizedPrice.LessThan(*best.NormalizedPrice) {
			best = o
			found = true
		}
	}
	return best, found
}

// CalculateSavings reports how much cheaper best is than other per base unit.
// ok is false unless both are comparable in the same unit.
func (c *Calculator) CalculateSavings(best, other model.PriceOffer) (model.Savings, bool) {
	if !best.IsComparable() || !other.IsComparable() {
		return model.Savings{}, false
	}
	if best.NormalizedUnit == nil || other.NormalizedUnit == nil || *best.NormalizedUnit != *other.NormalizedUnit {
		return model.Savings{}, false
	}

	diff := other.NormalizedPrice.Sub(*best.NormalizedPrice)
	percentage := decimal.Zero
	if !other.NormalizedPrice.IsZero() {
		percentage = diff.Mul(hundred).DivRound(*other.NormalizedPrice, 1)
	}
	return model.Savings{
		Absolute:       diff.Round(c.places),
		Percentage:     percentage,
		BestMarket:     best.MarketName,
		ComparedMarket: other.MarketName,
		Unit:           *best.NormalizedUnit,
	}, true
}
