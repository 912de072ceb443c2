package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	wordUnits    = [...]string{"", "UN", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE"}
	wordTeens    = [...]string{"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE", "DIECISÉIS", "DIECISIETE", "DIECIOCHO", "DIECINUEVE"}
	wordTwenties = [...]string{"VEINTE", "VEINTIÚN", "VEINTIDÓS", "VEINTITRÉS", "VEINTICUATRO", "VEINTICINCO", "VEINTISÉIS", "VEINTISIETE", "VEINTIOCHO", "VEINTINUEVE"}
	wordTens     = [...]string{"", "DIEZ", "VEINTE", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA"}
	wordHundreds = [...]string{"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS", "SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS"}
)

// spellGroup spells 0..999.
func spellGroup(n int64) string {
	if n == 0 {
		return ""
	}
	if n == 100 {
		return "CIEN"
	}
	var parts []string
	if n >= 100 {
		parts = append(parts, wordHundreds[n/100])
		n %= 100
	}
	switch {
	case n >= 30:
		w := wordTens[n/10]
		if n%10 > 0 {
			w += " Y " + wordUnits[n%10]
		}
		parts = append(parts, w)
	case n >= 20:
		parts = append(parts, wordTwenties[n-20])
	case n >= 10:
		parts = append(parts, wordTeens[n-10])
	case n > 0:
		parts = append(parts, wordUnits[n])
	}
	return strings.Join(parts, " ")
}

// SpellInteger spells a non-negative integer in upper-case Spanish.
func SpellInteger(n int64) string {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return "CERO"
	}
	var parts []string
	if billions := n / 1_000_000_000_000; billions > 0 {
		// Spanish "billón" is 10^12.
		if billions == 1 {
			parts = append(parts, "UN BILLÓN")
		} else {
			parts = append(parts, SpellInteger(billions)+" BILLONES")
		}
		n %= 1_000_000_000_000
	}
	if millions := n / 1_000_000; millions > 0 {
		if millions == 1 {
			parts = append(parts, "UN MILLÓN")
		} else {
			parts = append(parts, SpellInteger(millions)+" MILLONES")
		}
		n %= 1_000_000
	}
	if thousands := n / 1000; thousands > 0 {
		if thousands == 1 {
			parts = append(parts, "MIL")
		} else {
			parts = append(parts, spellGroup(thousands)+" MIL")
		}
		n %= 1000
	}
	if n > 0 {
		parts = append(parts, spellGroup(n))
	}
	return strings.Join(parts, " ")
}

// AmountInWords renders the legal amount line printed under a remesa total,
// e.g. "MIL SEISCIENTOS SESENTA PESOS 00/100 M.N.".
func AmountInWords(d decimal.Decimal) string {
	d = d.Abs().Round(2)
	integer := d.Truncate(0)
	cents := d.Sub(integer).Mul(hundred).IntPart()
	return fmt.Sprintf("%s PESOS %02d/100 M.N.", SpellInteger(integer.IntPart()), cents)
}
