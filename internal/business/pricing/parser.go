package pricing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// Price patterns are tried in order; the first that yields a valid decimal wins.
// A single capture group is the full amount; two groups are integer and cents.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)R\$\s*(\d{1,3}(?:[.,]\d{3})*[.,]\d{2}|\d+[.,]\d{2})`),
	regexp.MustCompile(`(\d{1,3}(?:[.,]\d{3})*[.,]\d{2}|\d+[.,]\d{2})`),
	regexp.MustCompile(`(\d+)\s*,?\s*(\d{2})`),
}

var unitPricePattern = regexp.MustCompile(`(?i)R\$\s*(\d+[.,]\d{2})\s*/\s*(kg|l|lt|un|unid)\b`)

// Availability keywords, checked in this order.
var (
	unavailableKeywords = []string{"indisponível", "esgotado", "sem estoque", "unavailable", "out of stock", "sold out"}
	lowStockKeywords    = []string{"últimas unidades", "poucas unidades", "restam poucos", "low stock"}
	availableKeywords   = []string{"disponível", "em estoque", "adicionar", "comprar", "available", "in stock", "add to cart"}
)

// ParsedFields are the values read from a raw record's price and stock text.
type ParsedFields struct {
	Price        decimal.Decimal
	UnitPrice    *model.UnitPrice
	Availability model.Availability
}

// ParsePrice reads a Brazilian price such as "R$ 1.234,56" into an exact decimal.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return decimal.Zero, newParsingError("price", raw, "empty price")
	}

	for _, re := range pricePatterns {
		m := re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		var amount string
		switch len(m) {
		case 2:
			amount = m[1]
		case 3:
			amount = m[1] + "." + m[2]
		default:
			continue
		}
		price, err := decimal.NewFromString(normalizeAmount(amount))
		if err != nil {
			continue
		}
		return price, nil
	}
	return decimal.Zero, newParsingError("price", raw, "no price pattern matched")
}

// normalizeAmount turns "1.234,56" into "1234.56"; strings without a comma are left alone.
func normalizeAmount(s string) string {
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

// ParseUnitPrice reads a site-printed unit price such as "R$ 5,98/kg".
func ParseUnitPrice(raw string) (*model.UnitPrice, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	m := unitPricePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	price, err := decimal.NewFromString(normalizeAmount(m[1]))
	if err != nil {
		return nil, false
	}
	return &model.UnitPrice{Price: price, Unit: strings.ToLower(m[2])}, true
}

// ParseAvailability maps stock text to an Availability. Unavailable wins over low stock,
// which wins over available, so "indisponível" is never read as "disponível".
func ParseAvailability(raw string) model.Availability {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return model.AvailabilityUnknown
	}
	switch {
	case containsAny(text, unavailableKeywords):
		return model.AvailabilityUnavailable
	case containsAny(text, lowStockKeywords):
		return model.AvailabilityLowStock
	case containsAny(text, availableKeywords):
		return model.AvailabilityAvailable
	}
	return model.AvailabilityUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ParseRaw reads price, unit price and availability from a raw record. Only the price is required.
func ParseRaw(raw model.RawRecord) (ParsedFields, error) {
	price, err := ParsePrice(raw.PriceRaw)
	if err != nil {
		return ParsedFields{}, err
	}
	fields := ParsedFields{
		Price:        price,
		Availability: ParseAvailability(raw.AvailabilityRaw),
	}
	if up, ok := ParseUnitPrice(raw.UnitPriceRaw); ok {
		fields.UnitPrice = up
	}
	return fields, nil
}
