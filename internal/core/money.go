// Package core holds the remesa domain: entities, derived-field rules,
// status derivation, budget aggregation and display formatting.
//
// This file contains the lenient number parsing used for spreadsheet cells
// and the rounding helpers shared by every monetary computation.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount reads a spreadsheet or form value as a decimal.
//
// Currency symbols, thousands separators and surrounding spaces are ignored.
// A single comma with no dot is treated as the decimal separator. The second
// return value is false when s is blank or not a number; the amount is then 0.
//
// Examples:
//
//	ParseAmount("1,160.00")  -> 1160, true
//	ParseAmount("$ 950")     -> 950, true
//	ParseAmount("12,5")      -> 12.5, true
//	ParseAmount("16 %")      -> 16, true
//	ParseAmount("n/a")       -> 0, false
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSuffix(s, "%")
	for _, prefix := range []string{"MXN", "USD", "EUR"} {
		s = strings.TrimPrefix(strings.ToUpper(s), prefix)
	}
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1 && len(s)-strings.Index(s, ",") != 4:
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// Amount is ParseAmount without the ok flag: invalid input becomes 0.
func Amount(s string) decimal.Decimal {
	d, _ := ParseAmount(s)
	return d
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent converts a stored fraction (0.16) to its display value (16).
func Percent(fraction decimal.Decimal) decimal.Decimal {
	return fraction.Mul(hundred)
}

// Sum adds every value in ds.
func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}
