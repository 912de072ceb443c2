package spreadsheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// Days between the Excel epoch (1899-12-30) and the Unix epoch.
const excelUnixOffset = 25569

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02/01/06",
}

var longDateRegex = regexp.MustCompile(`^(\d{1,2})\s+(?:DE\s+)?([A-Z]+)\s+(?:DE\s+|DEL\s+)?(\d{4})$`)

// excelSerialToDate converts an Excel serial day number to a UTC date.
// The fractional time of day is dropped.
func excelSerialToDate(serial float64) time.Time {
	days := int64(serial) - excelUnixOffset
	return time.Unix(days*86400, 0).UTC()
}

// ParseDate interprets a raw cell as a date: an Excel serial number, one of
// the common literal layouts (day first), or the long Spanish form
// "27 de octubre de 2025".
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f < 1 || f > 2958465 {
			return time.Time{}, false
		}
		return excelSerialToDate(f), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return core.DateOnly(t), true
		}
	}
	if m := longDateRegex.FindStringSubmatch(core.Fold(raw)); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if month, ok := core.MonthFromSpanish(m[2]); ok && day >= 1 && day <= 31 {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// stripLabel removes a leading "Fecha:" style label from a header cell.
func stripLabel(s, label string) string {
	if strings.HasPrefix(core.Fold(s), core.Fold(label)) {
		if i := strings.Index(s, ":"); i >= 0 {
			return strings.TrimSpace(s[i+1:])
		}
	}
	return strings.TrimSpace(s)
}

// number reads a cell leniently: blank or invalid is zero.
func number(s string) decimal.Decimal {
	return core.Amount(s)
}

// integer reads a whole number, accepting "38" and "38.0".
func integer(s string) (int, bool) {
	d, ok := core.ParseAmount(s)
	if !ok || !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return int(d.IntPart()), true
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
