package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// UnitConversion maps a unit token found in text to its display unit and base unit.
type UnitConversion struct {
	Unit   model.Unit
	Base   model.Unit
	Factor decimal.Decimal
}

var (
	one   = decimal.NewFromInt(1)
	milli = decimal.New(1, -3)
	micro = decimal.New(1, -6)
	dozen = decimal.NewFromInt(12)
)

func kilogram(u model.Unit, f decimal.Decimal) UnitConversion {
	return UnitConversion{Unit: u, Base: model.UnitKilogram, Factor: f}
}

func liter(u model.Unit, f decimal.Decimal) UnitConversion {
	return UnitConversion{Unit: u, Base: model.UnitLiter, Factor: f}
}

func countable(u model.Unit, f decimal.Decimal) UnitConversion {
	return UnitConversion{Unit: u, Base: model.UnitEach, Factor: f}
}

// unitConversions is keyed by lowercase token.
var unitConversions = map[string]UnitConversion{
	"kg":     kilogram(model.UnitKilogram, one),
	"quilo":  kilogram(model.UnitKilogram, one),
	"quilos": kilogram(model.UnitKilogram, one),
	"g":      kilogram(model.UnitGram, milli),
	"gr":     kilogram(model.UnitGram, milli),
	"grama":  kilogram(model.UnitGram, milli),
	"gramas": kilogram(model.UnitGram, milli),
	"mg":     kilogram(model.UnitMilligram, micro),

	"l":          liter(model.UnitLiter, one),
	"lt":         liter(model.UnitLiter, one),
	"litro":      liter(model.UnitLiter, one),
	"litros":     liter(model.UnitLiter, one),
	"ml":         liter(model.UnitMilliliter, milli),
	"mililitro":  liter(model.UnitMilliliter, milli),
	"mililitros": liter(model.UnitMilliliter, milli),

	"un":       countable(model.UnitEach, one),
	"und":      countable(model.UnitEach, one),
	"unid":     countable(model.UnitEach, one),
	"unidade":  countable(model.UnitEach, one),
	"unidades": countable(model.UnitEach, one),
	"lata":     countable(model.UnitEach, one),
	"latas":    countable(model.UnitEach, one),
	"garrafa":  countable(model.UnitEach, one),
	"garrafas": countable(model.UnitEach, one),
	"grf":      countable(model.UnitEach, one),
	"pack":     countable(model.UnitPack, one),
	"pct":      countable(model.UnitPack, one),
	"pacote":   countable(model.UnitPack, one),
	"fardo":    countable(model.UnitPack, one),
	"caixa":    countable(model.UnitPack, one),
	"cx":       countable(model.UnitPack, one),
	"dz":       countable(model.UnitDozen, dozen),
	"duzia":    countable(model.UnitDozen, dozen),
	"dúzia":    countable(model.UnitDozen, dozen),
}

// LookupUnit returns the conversion for a unit token, ignoring case and surrounding space.
func LookupUnit(token string) (UnitConversion, bool) {
	conv, ok := unitConversions[strings.ToLower(strings.TrimSpace(token))]
	return conv, ok
}
