package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var mexicanSpanish = language.MustParse("es-MX")

var currencySymbols = map[Currency]string{
	MXN: "$",
	USD: "USD $",
	EUR: "€",
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatNumber groups thousands and fixes two decimals the es-MX way.
func FormatNumber(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	p := message.NewPrinter(mexicanSpanish)
	return p.Sprint(number.Decimal(f, number.Scale(2)))
}

// FormatCurrency renders an amount with its currency symbol, e.g.
// "$1,234.50", "USD $10.00" or "€3.20". Unknown currencies use "$".
func FormatCurrency(d decimal.Decimal, c Currency) string {
	symbol, ok := currencySymbols[c]
	if !ok {
		symbol = "$"
	}
	if d.IsNegative() {
		return "-" + symbol + FormatNumber(d.Abs())
	}
	return symbol + FormatNumber(d)
}

// FormatDate renders the long Spanish form, "07 de octubre de 2025".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// FormatDateShort renders dd/mm/yyyy.
func FormatDateShort(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// FormatPercent renders a display percentage with one decimal, "16.0%".
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

// FormatRemesaNumber renders "Remesa 05 MN".
func FormatRemesaNumber(n int, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return fmt.Sprintf("Remesa %02d %s", n, suffix)
}

// MonthFromSpanish maps a Spanish month name to its number.
func MonthFromSpanish(name string) (time.Month, bool) {
	f := Fold(name)
	for i, m := range spanishMonths {
		if Fold(m) == f {
			return time.Month(i + 1), true
		}
	}
	if f == "SETIEMBRE" {
		return time.September, true
	}
	return 0, false
}
