package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// consistencyTolerance absorbs spreadsheet rounding on imported budget lines.
var consistencyTolerance = decimal.RequireFromString("0.01")

// NormalizePct turns a percentage given as 16 into the stored fraction 0.16.
// Values already at or below 1 are kept.
func NormalizePct(d decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(one) {
		return d.Div(hundred)
	}
	return d
}

// Recompute derives subtotal, surcharge, VAT, total and the base-currency
// total from quantity, unit price, the two percentages and the exchange rate.
// Every write path that accepts user input calls it.
func (b *BudgetItem) Recompute() {
	if b.Currency == "" {
		b.Currency = BaseCurrency
	}
	if b.Currency == BaseCurrency || b.ExchangeRate.IsZero() {
		b.ExchangeRate = one
	}
	b.SurchargePct = NormalizePct(b.SurchargePct)
	b.VATPct = NormalizePct(b.VATPct)

	b.Subtotal = Round2(b.Quantity.Mul(b.UnitPrice))
	b.SurchargeAmount = Round2(b.Subtotal.Mul(b.SurchargePct))
	b.VATAmount = Round2(b.Subtotal.Add(b.SurchargeAmount).Mul(b.VATPct))
	b.Total = b.Subtotal.Add(b.SurchargeAmount).Add(b.VATAmount)
	b.TotalMXN = Round2(b.Total.Mul(b.ExchangeRate))
}

// CheckConsistency reports derived fields that drift from their inputs by
// more than a cent. Imported lines keep the file's figures, so this is how
// drift gets surfaced instead of silently rewritten.
func (b BudgetItem) CheckConsistency() error {
	want := b
	want.Recompute()
	var drift []string
	check := func(name string, got, exp decimal.Decimal) {
		if got.Sub(exp).Abs().GreaterThan(consistencyTolerance) {
			drift = append(drift, fmt.Sprintf("%s=%s expected %s", name, got.StringFixed(2), exp.StringFixed(2)))
		}
	}
	check("subtotal", b.Subtotal, want.Subtotal)
	check("surcharge_amount", b.SurchargeAmount, want.SurchargeAmount)
	check("vat_amount", b.VATAmount, want.VATAmount)
	check("total", b.Total, want.Total)
	check("total_mxn", b.TotalMXN, want.TotalMXN)
	if len(drift) > 0 {
		return fmt.Errorf("budget item %q inconsistent: %s", b.Detail, strings.Join(drift, ", "))
	}
	return nil
}
