package spreadsheet

import (
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// Fixed header cells of a single remesa sheet (zero-based row, col).
const (
	remesaNumberRow, remesaNumberCol = 2, 8
	remesaDateRow                    = 3
	remesaWeekRow                    = 4
	remesaValueCol, remesaLabelCol   = 2, 1
)

// Item columns inside a section.
const (
	colItemLabel = iota
	colItemContractor
	colItemDescription
	colItemAmount
	colItemVAT
	colItemTotal
	colItemBank
	colItemAccount
	colItemCLABE
)

var (
	remesaNumberRegex = regexp.MustCompile(`^(\d+)\s*(.*)$`)
	itemLabelRegex    = regexp.MustCompile(`^[AB]\.?\d+`)
)

// RemesaSheet is one parsed remesa workbook. Nothing is persisted.
type RemesaSheet struct {
	Number          int               `json:"remesa_number"`
	Suffix          string            `json:"remesa_suffix"`
	Date            time.Time         `json:"date"`
	DateText        string            `json:"date_text,omitempty"`
	WeekDescription string            `json:"week_description,omitempty"`
	Items           []core.RemesaItem `json:"items"`
	Total           decimal.Decimal   `json:"total_amount"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// ParseRemesa reads a single remesa workbook.
func ParseRemesa(r io.Reader, opts Options) (*RemesaSheet, error) {
	grid, err := LoadGrid(r, opts.SheetName)
	if err != nil {
		return nil, err
	}
	return ParseRemesaGrid(grid, opts), nil
}

// ParseRemesaGrid reads the header block and scans the A and B sections.
// Missing header values fall back to number 0, today's date and the base
// suffix.
func ParseRemesaGrid(g Grid, opts Options) *RemesaSheet {
	out := &RemesaSheet{Suffix: opts.baseSuffix(), Total: decimal.Zero}

	if m := remesaNumberRegex.FindStringSubmatch(g.Cell(remesaNumberRow, remesaNumberCol)); m != nil {
		out.Number, _ = integer(m[1])
		if s := strings.TrimSpace(m[2]); s != "" {
			out.Suffix = s
		}
	}

	dateCell := g.Cell(remesaDateRow, remesaValueCol)
	if dateCell == "" {
		dateCell = stripLabel(g.Cell(remesaDateRow, remesaLabelCol), "Fecha")
	}
	if t, ok := ParseDate(dateCell); ok {
		out.Date = t
	} else {
		out.Date = core.DateOnly(opts.now())
		out.DateText = dateCell
		if dateCell != "" {
			out.Warnings = append(out.Warnings, "unrecognized date "+dateCell+", using today")
		}
	}

	week := g.Cell(remesaWeekRow, remesaValueCol)
	if week == "" {
		week = stripLabel(g.Cell(remesaWeekRow, remesaLabelCol), "Semana")
	}
	out.WeekDescription = week

	var section core.Section
	for row := range g {
		c0 := upper(g.Cell(row, colItemLabel))
		c1 := upper(g.Cell(row, colItemContractor))

		switch {
		case c0 == "A" && (strings.Contains(c1, "TRANSFERENCIA") || strings.Contains(c1, "TRNSFERENCIA")):
			section = core.SectionTransfer
			continue
		case c0 == "B" && (strings.Contains(c1, "CHEQUE") || strings.Contains(c1, "EFECTIVO")):
			section = core.SectionCheck
			continue
		}
		if section == "" || c0 == "" || c0 == "#" || isTotalRow(g, row) || !itemLabelRegex.MatchString(c0) {
			continue
		}

		item, ok := parseSectionItem(g, row, section)
		if !ok {
			continue
		}
		out.Items = append(out.Items, item)
	}

	core.Renumber(out.Items)
	out.Total = core.TotalOf(out.Items)
	return out
}

func isTotalRow(g Grid, row int) bool {
	for col := 0; col < 4; col++ {
		if strings.Contains(upper(g.Cell(row, col)), "TOTAL") {
			return true
		}
	}
	return false
}

func parseSectionItem(g Grid, row int, section core.Section) (core.RemesaItem, bool) {
	contractor := g.Cell(row, colItemContractor)
	amount := number(g.Cell(row, colItemAmount))
	vat := number(g.Cell(row, colItemVAT))
	total, ok := core.ParseAmount(g.Cell(row, colItemTotal))
	if !ok {
		total = amount.Add(vat)
	}
	if contractor == "" && total.IsZero() {
		return core.RemesaItem{}, false
	}
	return core.RemesaItem{
		Section:        section,
		ContractorName: contractor,
		Description:    g.Cell(row, colItemDescription),
		Amount:         amount,
		VATAmount:      vat,
		Total:          total,
		PaymentType:    section.PaymentType(),
		Bank:           g.Cell(row, colItemBank),
		AccountNumber:  g.Cell(row, colItemAccount),
		CLABE:          g.Cell(row, colItemCLABE),
	}, true
}
