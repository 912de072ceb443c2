package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseSection(t *testing.T) {
	cases := []struct {
		in   string
		want Section
		ok   bool
	}{
		{"1", SectionTransfer, true},
		{"2", SectionCheck, true},
		{"A", SectionTransfer, true},
		{"b", SectionCheck, true},
		{"Transferencia", SectionTransfer, true},
		{"cheque nominal", SectionCheck, true},
		{"Efectivo", SectionCheck, true},
		{"3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseSection(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseSection(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidSection) {
			t.Fatalf("ParseSection(%q) expected ErrInvalidSection, got %v", tc.in, err)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	for in, want := range map[string]Currency{"usd": USD, " EUR ": EUR, "": MXN, "mxn": MXN} {
		got, err := ParseCurrency(in)
		if err != nil || got != want {
			t.Fatalf("ParseCurrency(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCurrency("GBP"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestValidateReturnsValidationError(t *testing.T) {
	err := Category{ProjectID: "p1"}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected validation error on name, got %v", err)
	}
	if !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName in chain")
	}

	if err := (Contractor{ProjectID: "p1", Name: "Aceros", CLABE: "123"}).Validate(); err == nil {
		t.Fatalf("expected short CLABE to be rejected")
	}
	if err := (ExchangeRate{Date: time.Now(), Currency: MXN, Rate: dec("1")}).Validate(); err == nil {
		t.Fatalf("expected MXN exchange rate to be rejected")
	}
	if err := (RemesaItem{Section: "C", ContractorName: "x"}).Validate(); !errors.Is(err, ErrInvalidSection) {
		t.Fatalf("expected invalid section, got %v", err)
	}
}

func TestRemesaLabel(t *testing.T) {
	if got := (Remesa{Number: 5}).Label(); got != "05 MN" {
		t.Fatalf("label = %q", got)
	}
	if got := (Remesa{Number: 38, Suffix: "MN-2"}).Label(); got != "38 MN-2" {
		t.Fatalf("label = %q", got)
	}
}

func TestFold(t *testing.T) {
	if Fold("  Categoría   de  obra ") != "CATEGORIA DE OBRA" {
		t.Fatalf("unexpected fold %q", Fold("  Categoría   de  obra "))
	}
	if !SameName("Cimentación", "CIMENTACION") {
		t.Fatalf("expected names to match")
	}
	if SameName("", "") {
		t.Fatalf("blank names must not match")
	}
}
