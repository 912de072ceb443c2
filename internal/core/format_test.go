package core

import (
	"testing"
	"time"
)

func TestAmountInWords(t *testing.T) {
	cases := map[string]string{
		"0":          "CERO PESOS 00/100 M.N.",
		"1":          "UN PESOS 00/100 M.N.",
		"21":         "VEINTIÚN PESOS 00/100 M.N.",
		"35":         "TREINTA Y CINCO PESOS 00/100 M.N.",
		"100":        "CIEN PESOS 00/100 M.N.",
		"115":        "CIENTO QUINCE PESOS 00/100 M.N.",
		"1160.50":    "MIL CIENTO SESENTA PESOS 50/100 M.N.",
		"1660":       "MIL SEISCIENTOS SESENTA PESOS 00/100 M.N.",
		"2500000":    "DOS MILLONES QUINIENTOS MIL PESOS 00/100 M.N.",
		"1001001":    "UN MILLÓN MIL UN PESOS 00/100 M.N.",
		"45321.07":   "CUARENTA Y CINCO MIL TRESCIENTOS VEINTIÚN PESOS 07/100 M.N.",
		"-500":       "QUINIENTOS PESOS 00/100 M.N.",
		"999.999":    "MIL PESOS 00/100 M.N.",
		"22000000.1": "VEINTIDÓS MILLONES PESOS 10/100 M.N.",
	}
	for in, want := range cases {
		if got := AmountInWords(dec(in)); got != want {
			t.Errorf("AmountInWords(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatters(t *testing.T) {
	d := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)
	if got := FormatDate(d); got != "07 de octubre de 2025" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDateShort(d); got != "07/10/2025" {
		t.Errorf("FormatDateShort = %q", got)
	}
	if FormatDate(time.Time{}) != "" {
		t.Errorf("zero date should format empty")
	}
	if got := FormatPercent(dec("16")); got != "16.0%" {
		t.Errorf("FormatPercent = %q", got)
	}
	if got := FormatRemesaNumber(5, ""); got != "Remesa 05 MN" {
		t.Errorf("FormatRemesaNumber = %q", got)
	}
	if got := FormatCurrency(dec("1234.5"), MXN); got != "$1,234.50" {
		t.Errorf("FormatCurrency MXN = %q", got)
	}
	if got := FormatCurrency(dec("10"), USD); got != "USD $10.00" {
		t.Errorf("FormatCurrency USD = %q", got)
	}
	if got := FormatCurrency(dec("-3.2"), EUR); got != "-€3.20" {
		t.Errorf("FormatCurrency EUR = %q", got)
	}
}

func TestMonthFromSpanish(t *testing.T) {
	if m, ok := MonthFromSpanish("Octubre"); !ok || m != time.October {
		t.Fatalf("octubre -> %v %v", m, ok)
	}
	if m, ok := MonthFromSpanish("setiembre"); !ok || m != time.September {
		t.Fatalf("setiembre -> %v %v", m, ok)
	}
	if _, ok := MonthFromSpanish("october"); ok {
		t.Fatalf("english month should not parse")
	}
}
