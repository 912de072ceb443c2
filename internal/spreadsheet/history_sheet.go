package spreadsheet

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// HistoryGroup is one remesa reconstructed from ledger rows.
type HistoryGroup struct {
	Number   int               `json:"remesa_number"`
	Suffix   string            `json:"remesa_suffix"`
	Date     time.Time         `json:"date"`
	DateText string            `json:"date_text,omitempty"`
	Items    []core.RemesaItem `json:"items"`
	Total    decimal.Decimal   `json:"total_amount"`
}

// HistorySheet is the parsed ledger: groups sorted by number plus the
// column binding that was used.
type HistorySheet struct {
	HeaderRow int             `json:"header_row"`
	Columns   map[Field]int   `json:"columns"`
	Groups    []*HistoryGroup `json:"groups"`
	Skipped   int             `json:"skipped_rows"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// ItemCount is the number of items across all groups.
func (h *HistorySheet) ItemCount() int {
	n := 0
	for _, g := range h.Groups {
		n += len(g.Items)
	}
	return n
}

// ParseHistory reads the historical ledger workbook.
func ParseHistory(r io.Reader, opts Options) (*HistorySheet, error) {
	grid, err := LoadGrid(r, opts.SheetName)
	if err != nil {
		return nil, err
	}
	return ParseHistoryGrid(grid, opts)
}

// ParseHistoryGrid groups ledger rows into remesas keyed by (number, date).
// Every item is returned approved, since the ledger only records paid lines.
// Rows with neither a contractor nor an amount are skipped with a warning.
// Numbers that occur with more than one date get "-2", "-3"... appended to
// the base suffix in order of appearance.
func ParseHistoryGrid(g Grid, opts Options) (*HistorySheet, error) {
	headerRow, numberCol, ok := findHeaderRow(g)
	if !ok {
		return nil, fmt.Errorf("%w: no \"# REMESA\" column in the first %d rows", ErrHeaderNotFound, headerScanRows)
	}
	cols := resolveColumns(g[headerRow], numberCol)
	out := &HistorySheet{HeaderRow: headerRow, Columns: cols}

	cell := func(row int, f Field) string {
		c, ok := cols[f]
		if !ok {
			return ""
		}
		return g.Cell(row, c)
	}

	index := map[string]*HistoryGroup{}
	var order []*HistoryGroup
	for row := headerRow + 1; row < len(g); row++ {
		raw := cell(row, FieldNumber)
		if raw == "" {
			continue
		}
		num, ok := integer(raw)
		if !ok {
			out.Skipped++
			out.Warnings = append(out.Warnings, fmt.Sprintf("row %d: batch number %q is not an integer", row+1, raw))
			continue
		}

		dateRaw := cell(row, FieldDate)
		date, dated := ParseDate(dateRaw)
		dateKey := strings.ToUpper(dateRaw)
		if dated {
			dateKey = date.Format("2006-01-02")
		}
		item := historyItem(row, cell, date, opts)
		if err := item.Validate(); err != nil {
			out.Skipped++
			out.Warnings = append(out.Warnings, fmt.Sprintf("row %d: remesa %d skipped: %v", row+1, num, err))
			continue
		}

		key := fmt.Sprintf("%d|%s", num, dateKey)
		grp, seen := index[key]
		if !seen {
			grp = &HistoryGroup{Number: num, Date: date, Total: decimal.Zero}
			if !dated {
				grp.DateText = dateRaw
			}
			index[key] = grp
			order = append(order, grp)
		}
		grp.Items = append(grp.Items, item)
	}

	sort.SliceStable(order, func(a, b int) bool { return order[a].Number < order[b].Number })

	occurrences := map[int]int{}
	for _, grp := range order {
		occurrences[grp.Number]++
		grp.Suffix = opts.baseSuffix()
		if n := occurrences[grp.Number]; n > 1 {
			grp.Suffix = fmt.Sprintf("%s-%d", opts.baseSuffix(), n)
			out.Warnings = append(out.Warnings, fmt.Sprintf("remesa %d appears with %d dates; imported as %s", grp.Number, n, grp.Suffix))
		}
		core.Renumber(grp.Items)
		grp.Total = core.TotalOf(grp.Items)
	}
	out.Groups = order
	return out, nil
}

func historyItem(row int, cell func(int, Field) string, date time.Time, opts Options) core.RemesaItem {
	paymentType := cell(row, FieldPaymentType)
	if paymentType == "" {
		paymentType = core.PaymentTransfer
	}
	section := core.SectionCheck
	if strings.Contains(strings.ToLower(paymentType), "transfer") {
		section = core.SectionTransfer
	}

	amount := number(cell(row, FieldAmount))
	pct := core.NormalizePct(number(cell(row, FieldVATPct)))
	vat, ok := core.ParseAmount(cell(row, FieldVATAmount))
	if !ok {
		vat = core.Round2(amount.Mul(pct))
	}
	total, ok := core.ParseAmount(cell(row, FieldTotal))
	if !ok {
		total = amount.Add(vat)
	}

	item := core.RemesaItem{
		Section:        section,
		CategoryName:   cell(row, FieldCategory),
		ConceptName:    cell(row, FieldConcept),
		ContractorName: cell(row, FieldContractor),
		Description:    cell(row, FieldDescription),
		Amount:         amount,
		VATPct:         pct,
		VATAmount:      vat,
		Total:          total,
		PaymentType:    paymentType,
		Bank:           cell(row, FieldBank),
		AccountNumber:  cell(row, FieldAccount),
		CLABE:          cell(row, FieldCLABE),
		Notes:          cell(row, FieldNotes),
	}
	item.Approved = true
	item.ApprovedBy = opts.approver()
	if !date.IsZero() {
		item.ApprovedAt = &date
	}
	return item
}
