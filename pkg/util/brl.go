package util

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders an amount in Brazilian notation with two decimals: 1234.5 -> "1.234,50".
func FormatBRL(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte('.')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// ParseBRL reads an amount written by FormatBRL, with or without the "R$" prefix.
func ParseBRL(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse brl %q: %w", s, err)
	}
	return d, nil
}
