package spreadsheet

import (
	"io"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// Column positions of the flat budget sheet. Data starts on the fourth row
// and column B holds the category.
const budgetFirstRow = 3

const (
	colBudgetCategory = iota + 1
	colBudgetConcept
	colBudgetDetail
	colBudgetSupplier
	colBudgetUnit
	colBudgetQuantity
	colBudgetCurrency
	colBudgetUnitPrice
	colBudgetSubtotal
	colBudgetSurchargePct
	colBudgetSurchargeAmount
	colBudgetVATPct
	colBudgetVATAmount
	colBudgetTotal
	colBudgetExchangeRate
	colBudgetTotalMXN
	colBudgetNotes
)

// ParseBudget reads a flat budget workbook into budget lines. The derived
// columns are taken as written; callers check them with
// core.BudgetItem.CheckConsistency.
func ParseBudget(r io.Reader, opts Options) ([]core.BudgetItem, error) {
	grid, err := LoadGrid(r, opts.SheetName)
	if err != nil {
		return nil, err
	}
	return ParseBudgetGrid(grid), nil
}

// ParseBudgetGrid is ParseBudget over an already loaded sheet.
func ParseBudgetGrid(g Grid) []core.BudgetItem {
	var items []core.BudgetItem
	for row := budgetFirstRow; row < len(g); row++ {
		category := g.Cell(row, colBudgetCategory)
		if category == "" {
			continue
		}
		currency := core.Currency(upper(g.Cell(row, colBudgetCurrency)))
		if currency == "" {
			currency = core.MXN
		}
		rate := number(g.Cell(row, colBudgetExchangeRate))
		if rate.IsZero() {
			rate = decimal.NewFromInt(1)
		}
		items = append(items, core.BudgetItem{
			CategoryName:    category,
			ConceptName:     g.Cell(row, colBudgetConcept),
			Detail:          g.Cell(row, colBudgetDetail),
			Supplier:        g.Cell(row, colBudgetSupplier),
			Unit:            g.Cell(row, colBudgetUnit),
			Quantity:        number(g.Cell(row, colBudgetQuantity)),
			Currency:        currency,
			UnitPrice:       number(g.Cell(row, colBudgetUnitPrice)),
			Subtotal:        number(g.Cell(row, colBudgetSubtotal)),
			SurchargePct:    core.NormalizePct(number(g.Cell(row, colBudgetSurchargePct))),
			SurchargeAmount: number(g.Cell(row, colBudgetSurchargeAmount)),
			VATPct:          core.NormalizePct(number(g.Cell(row, colBudgetVATPct))),
			VATAmount:       number(g.Cell(row, colBudgetVATAmount)),
			Total:           number(g.Cell(row, colBudgetTotal)),
			ExchangeRate:    rate,
			TotalMXN:        number(g.Cell(row, colBudgetTotalMXN)),
			Notes:           g.Cell(row, colBudgetNotes),
		})
	}
	return items
}
