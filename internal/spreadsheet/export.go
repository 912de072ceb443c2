package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"remesas/internal/core"
)

// ExportData is everything the styled remesa workbook shows. Budget is
// optional; when present three budget columns are added per item.
type ExportData struct {
	Project core.Project
	Remesa  core.Remesa
	Items   []core.RemesaItem
	Budget  *core.BudgetVsPaid
}

const maxSheetName = 31

var (
	exportHeaders = []string{"#", "NOMBRE CONTRATISTA", "PARTIDA", "IMPORTE", "IVA", "TOTAL", "BANCO", "CUENTA", "CLABE"}
	budgetHeaders = []string{"PRESUPUESTO", "PAGADO", "DISPONIBLE"}
	exportWidths  = []float64{8, 38, 52, 18, 16, 18, 18, 22, 28, 18, 18, 18}

	longDateFormat = `[$-80A]dd "de" mmmm "de" yyyy;@`
)

// ExportFileName is "Remesa No 05 <project>.xlsx" with '#' removed from the
// project name.
func ExportFileName(p core.Project, r core.Remesa) string {
	name := strings.Join(strings.Fields(strings.ReplaceAll(p.Name, "#", "")), " ")
	return strings.TrimSpace(fmt.Sprintf("Remesa No %02d %s", r.Number, name)) + ".xlsx"
}

// SheetName is "Remesa 05 MN" cut to the 31 characters Excel allows.
func SheetName(r core.Remesa) string {
	name := core.FormatRemesaNumber(r.Number, r.Suffix)
	name = strings.Map(func(c rune) rune {
		if strings.ContainsRune(`:\/?*[]`, c) {
			return -1
		}
		return c
	}, name)
	if runes := []rune(name); len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	return name
}

type exportStyles struct {
	title, label, header, band, money, moneyBold, text, date, over, under int
}

func newExportStyles(f *excelize.File) (exportStyles, error) {
	var s exportStyles
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}},
		{&s.label, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&s.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E78"}},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
			Border:    border,
		}},
		{&s.band, &excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
		}},
		{&s.money, &excelize.Style{NumFmt: 4, Border: border}},
		{&s.moneyBold, &excelize.Style{NumFmt: 4, Font: &excelize.Font{Bold: true}}},
		{&s.text, &excelize.Style{Border: border, Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}}},
		{&s.date, &excelize.Style{CustomNumFmt: &longDateFormat, Alignment: &excelize.Alignment{Horizontal: "left"}}},
		{&s.over, &excelize.Style{NumFmt: 4, Border: border, Font: &excelize.Font{Bold: true, Color: "C00000"},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}}}},
		{&s.under, &excelize.Style{NumFmt: 4, Border: border, Font: &excelize.Font{Color: "006100"},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"C6EFCE"}}}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return s, fmt.Errorf("create style: %w", err)
		}
		*d.dst = id
	}
	return s, nil
}

// sheetWriter keeps the current row while the layout is written top-down.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

func (w *sheetWriter) set(col, row int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	if d, ok := v.(decimal.Decimal); ok {
		v = d.InexactFloat64()
	}
	w.err = w.f.SetCellValue(w.sheet, cell, v)
}

func (w *sheetWriter) text(col, row int, v string) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStr(w.sheet, cell, v)
}

func (w *sheetWriter) style(fromCol, toCol, row, style int) {
	if w.err != nil {
		return
	}
	from, _ := excelize.CoordinatesToCellName(fromCol, row)
	to, _ := excelize.CoordinatesToCellName(toCol, row)
	w.err = w.f.SetCellStyle(w.sheet, from, to, style)
}

// BuildRemesaWorkbook lays out the remesa the way the payment office
// prints it: a header block, section A (transfers) and section B (checks or
// cash) with their subtotals, the grand total, the amount in words and the
// signature block. The caller owns the returned file.
func BuildRemesaWorkbook(d ExportData) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := SheetName(d.Remesa)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	st, err := newExportStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	lastCol := len(exportHeaders)
	if d.Budget != nil {
		lastCol += len(budgetHeaders)
	}
	w := &sheetWriter{f: f, sheet: sheet}

	// Header block.
	w.text(2, 2, d.Project.Name)
	w.style(2, 2, 2, st.title)
	w.text(9, 2, "REMESA")
	w.style(9, 9, 2, st.title)
	w.text(2, 3, "Propietario:")
	w.text(3, 3, d.Project.OwnerName)
	w.text(9, 3, fmt.Sprintf("%02d  %s", d.Remesa.Number, suffixOrDefault(d.Remesa.Suffix)))
	w.style(9, 9, 3, st.label)
	w.text(2, 4, "Fecha:")
	if !d.Remesa.Date.IsZero() {
		w.set(3, 4, d.Remesa.Date)
		w.style(3, 3, 4, st.date)
	}
	w.text(2, 5, "Semana:")
	w.text(3, 5, d.Remesa.WeekDescription)
	w.style(2, 2, 3, st.label)
	w.style(2, 2, 4, st.label)
	w.style(2, 2, 5, st.label)

	// Column headers.
	for i, h := range exportHeaders {
		w.text(i+1, 7, h)
	}
	if d.Budget != nil {
		for i, h := range budgetHeaders {
			w.text(len(exportHeaders)+i+1, 7, h)
		}
	}
	w.style(1, lastCol, 7, st.header)

	w.row = 9
	for _, section := range []core.Section{core.SectionTransfer, core.SectionCheck} {
		w.writeSection(d, section, lastCol, st)
		w.row++
	}

	grand := core.SumAll(d.Items)
	w.text(3, w.row, "TOTAL GENERAL:")
	w.set(4, w.row, grand.Amount)
	w.set(5, w.row, grand.VAT)
	w.set(6, w.row, grand.Total)
	w.style(3, 3, w.row, st.label)
	w.style(4, 6, w.row, st.moneyBold)
	w.row++
	w.text(2, w.row, "( "+strings.ToLower(core.AmountInWords(grand.Total))+" )")
	w.row += 3

	// Signatures.
	w.text(2, w.row, "AUTORIZA")
	w.text(6, w.row, "ELABORA")
	w.style(2, 6, w.row, st.label)
	w.row += 3
	w.text(2, w.row, "______________________________")
	w.text(6, w.row, "______________________________")
	w.row++
	w.text(2, w.row, d.Project.OwnerName)
	w.text(6, w.row, d.Remesa.CreatedBy)

	for i, width := range exportWidths[:lastCol] {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if w.err == nil {
			w.err = f.SetColWidth(sheet, col, col, width)
		}
	}
	if w.err != nil {
		f.Close()
		return nil, fmt.Errorf("write remesa sheet: %w", w.err)
	}
	return f, nil
}

func (w *sheetWriter) writeSection(d ExportData, section core.Section, lastCol int, st exportStyles) {
	w.text(1, w.row, string(section))
	w.text(2, w.row, section.Title())
	w.style(1, lastCol, w.row, st.band)
	w.row++

	for i, it := range core.SectionItems(d.Items, section) {
		w.text(1, w.row, fmt.Sprintf("%s.%02d", section, i+1))
		w.text(2, w.row, it.ContractorName)
		w.text(3, w.row, it.Description)
		w.set(4, w.row, it.Amount)
		w.set(5, w.row, it.VATAmount)
		w.set(6, w.row, it.Total)
		w.text(7, w.row, it.Bank)
		w.text(8, w.row, it.AccountNumber)
		w.text(9, w.row, it.CLABE)
		w.style(1, 3, w.row, st.text)
		w.style(4, 6, w.row, st.money)
		w.style(7, 9, w.row, st.text)

		if d.Budget != nil {
			if line, ok := d.Budget.Lookup(it.CategoryID, it.ConceptID); ok {
				w.set(10, w.row, line.Budget)
				w.set(11, w.row, line.Paid)
				w.set(12, w.row, line.Available)
				w.style(10, 11, w.row, st.money)
				if line.OverBudget() {
					w.style(12, 12, w.row, st.over)
				} else {
					w.style(12, 12, w.row, st.under)
				}
			}
		}
		w.row++
	}

	w.row++
	sub := core.SumSection(d.Items, section)
	w.text(3, w.row, "TOTAL:")
	w.set(4, w.row, sub.Amount)
	w.set(5, w.row, sub.VAT)
	w.set(6, w.row, sub.Total)
	w.style(3, 3, w.row, st.label)
	w.style(4, 6, w.row, st.moneyBold)
	w.row++
}

// ExportRemesa writes the styled workbook to out.
func ExportRemesa(out io.Writer, d ExportData) error {
	f, err := BuildRemesaWorkbook(d)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func suffixOrDefault(s string) string {
	if s == "" {
		return core.DefaultSuffix
	}
	return s
}
