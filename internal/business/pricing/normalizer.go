package pricing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

// Rule names recorded on QuantityInfo.Rule.
const (
	RulePackNxM       = "pack_NxM"
	RuleNumberUnit    = "number_unit"
	RuleCountUnits    = "count_units"
	RulePackNounCount = "pack_noun_count"
	RuleSpelledUnit   = "spelled_unit"
	RulePerKg         = "per_kg"
	RuleHortifruti    = "hortifruti_inference"
)

// quantityRule extracts a value and unit token from capture groups.
// valueGroup 0 means the value is implicitly 1.
type quantityRule struct {
	name       string
	re         *regexp.Regexp
	valueGroup int
	unitGroup  int
}

// packPattern matches "6x350ml": count, per-item value, per-item unit.
var packPattern = regexp.MustCompile(`(\d+)\s*x\s*(\d+[.,]?\d*)\s*(ml|l|lt|g|gr|kg)\b`)

// quantityRules run in order after packPattern; the first rule producing a quantity wins.
var quantityRules = []quantityRule{
	{
		name:       RuleNumberUnit,
		re:         regexp.MustCompile(`(\d+[.,]?\d*)\s*(kg|g|gr|mg|l|lt|ml|un|und|unid|unidades?|pack|pct|dz|dúzia|duzia)\b`),
		valueGroup: 1,
		unitGroup:  2,
	},
	{
		name:       RuleCountUnits,
		re:         regexp.MustCompile(`(?:c/?|com|x)\s*(\d+)\s*(un|und|unid|unidades?|latas?|garrafas?)\b`),
		valueGroup: 1,
		unitGroup:  2,
	},
	{
		name:       RulePackNounCount,
		re:         regexp.MustCompile(`(pack|caixa|cx|fardo)\s*(?:c/?|com)?\s*(\d+)`),
		valueGroup: 2,
		unitGroup:  1,
	},
	{
		name:       RuleSpelledUnit,
		re:         regexp.MustCompile(`(\d+[.,]?\d*)\s*(litros?|quilos?|gramas?|mililitros?)\b`),
		valueGroup: 1,
		unitGroup:  2,
	},
	{
		name:      RulePerKg,
		re:        regexp.MustCompile(`(?:por\s+|/\s*)?(kg|quilo)\b`),
		unitGroup: 1,
	},
}

// multiplierPattern finds a pack count anywhere in the text, e.g. "pack c/ 12" or "com 6".
var multiplierPattern = regexp.MustCompile(`(?:pack|caixa|cx|fardo|c/?|com|x)\s*(\d+)`)

var (
	produceKeywords = []string{
		"banana", "maçã", "laranja", "limão", "tomate", "cebola", "batata", "cenoura", "alface",
		"mamão", "melancia", "uva", "manga", "abacaxi", "morango", "pera", "kiwi", "melão",
	}
	byWeightIndicators = []string{"por kg", "/kg", "kg", "quilo"}
)

// ExtractQuantity finds the package quantity in a product title. It returns nil when none is found.
func ExtractQuantity(text string) *model.QuantityInfo {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}

	if q := extractPack(lower); q != nil {
		return q
	}
	for _, rule := range quantityRules {
		m := rule.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if q := quantityFromMatch(rule, m, lower); q != nil {
			return q
		}
	}
	return inferProduce(lower)
}

// ExtractFromRecord tries the title first and falls back to the description.
func ExtractFromRecord(raw model.RawRecord) *model.QuantityInfo {
	if q := ExtractQuantity(raw.Title); q != nil {
		return q
	}
	if raw.Description != "" {
		return ExtractQuantity(raw.Description)
	}
	return nil
}

func extractPack(lower string) *model.QuantityInfo {
	m := packPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count < 1 {
		return nil
	}
	value, ok := parseQuantityValue(m[2])
	if !ok {
		return nil
	}
	conv, ok := LookupUnit(m[3])
	if !ok {
		return nil
	}
	return buildQuantity(value, conv, count, m[0], RulePackNxM)
}

func quantityFromMatch(rule quantityRule, m []string, lower string) *model.QuantityInfo {
	conv, ok := LookupUnit(m[rule.unitGroup])
	if !ok {
		return nil
	}
	if rule.valueGroup == 0 {
		return &model.QuantityInfo{
			Value:      1,
			Unit:       conv.Base,
			BaseValue:  1,
			BaseUnit:   conv.Base,
			Multiplier: 1,
			RawText:    m[0],
			Rule:       rule.name,
		}
	}
	value, ok := parseQuantityValue(m[rule.valueGroup])
	if !ok {
		return nil
	}
	return buildQuantity(value, conv, extractMultiplier(lower), m[0], rule.name)
}

func buildQuantity(value float64, conv UnitConversion, multiplier int, rawText, rule string) *model.QuantityInfo {
	base := decimal.NewFromFloat(value).Mul(conv.Factor)
	if !base.IsPositive() {
		return nil
	}
	return &model.QuantityInfo{
		Value:      value,
		Unit:       conv.Unit,
		BaseValue:  base.InexactFloat64(),
		BaseUnit:   conv.Base,
		Multiplier: multiplier,
		RawText:    rawText,
		Rule:       rule,
	}
}

// parseQuantityValue accepts "1,5" and "1.5"; zero and negative values are rejected.
func parseQuantityValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// extractMultiplier scans the whole text, so a count elsewhere in the title also applies.
func extractMultiplier(lower string) int {
	m := multiplierPattern.FindStringSubmatch(lower)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func inferProduce(lower string) *model.QuantityInfo {
	if !containsAny(lower, produceKeywords) || !containsAny(lower, byWeightIndicators) {
		return nil
	}
	return &model.QuantityInfo{
		Value:      1,
		Unit:       model.UnitKilogram,
		BaseValue:  1,
		BaseUnit:   model.UnitKilogram,
		Multiplier: 1,
		RawText:    lower,
		Rule:       RuleHortifruti,
	}
}
