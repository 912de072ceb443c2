package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// LedgerHeader is the header row of the consolidated ledger ("BD Remesas").
// It is the same layout ParseHistoryGrid reads back.
var LedgerHeader = []any{
	"FECHA", "# REMESA", "CATEGORIA", "SUBCATEGORIA", "CONTRATISTA", "PARTIDA",
	"IMPORTE", "% IVA", "IVA", "TOTAL", "TIPO DE PAGO", "BANCO", "CUENTA", "CLABE", "NOTAS",
}

// LedgerRows flattens a remesa into ledger rows, one per item, in section
// and line order. Dates are written as ISO text and amounts as numbers.
func LedgerRows(r core.Remesa, items []core.RemesaItem) [][]any {
	date := ""
	if !r.Date.IsZero() {
		date = r.Date.Format("2006-01-02")
	}
	var rows [][]any
	for _, section := range []core.Section{core.SectionTransfer, core.SectionCheck} {
		for _, it := range core.SectionItems(items, section) {
			payment := it.PaymentType
			if payment == "" {
				payment = it.Section.PaymentType()
			}
			rows = append(rows, []any{
				date,
				r.Number,
				it.CategoryName,
				it.ConceptName,
				it.ContractorName,
				it.Description,
				it.Amount.InexactFloat64(),
				core.Percent(it.VATPct).InexactFloat64(),
				it.VATAmount.InexactFloat64(),
				it.Total.InexactFloat64(),
				payment,
				it.Bank,
				it.AccountNumber,
				it.CLABE,
				it.Notes,
			})
		}
	}
	return rows
}

// GridFromValues turns rows as returned by a sheet API into a Grid.
// Numbers are rendered without exponent or trailing zeros.
func GridFromValues(values [][]any) Grid {
	g := make(Grid, len(values))
	for i, row := range values {
		g[i] = make([]string, len(row))
		for j, v := range row {
			g[i][j] = cellText(v)
		}
	}
	return g
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case decimal.Decimal:
		return t.String()
	case time.Time:
		return t.Format("2006-01-02")
	}
	return fmt.Sprint(v)
}
