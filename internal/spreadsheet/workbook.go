// Package spreadsheet reads and writes the workbooks the payment office
// exchanges: flat budget sheets, single remesa sheets, the historical
// "BD Remesas" ledger and the styled remesa export.
//
// Parsing is positional or label driven over a Grid of raw cell text, so the
// same code serves uploaded .xlsx/.xls files and values fetched from Google
// Sheets.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnreadableFile is returned when neither the xlsx nor the xls reader
	// can open the input.
	ErrUnreadableFile = errors.New("unreadable spreadsheet")
	// ErrHeaderNotFound is returned when a label-driven sheet has no header row.
	ErrHeaderNotFound = errors.New("header row not found")
)

// Grid is a sheet as rows of raw cell text. Rows may be ragged.
type Grid [][]string

// Cell returns the trimmed text at row, col or "" when out of range.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return ""
	}
	return strings.TrimSpace(g[row][col])
}

// Options tune parsing. The zero value is usable.
type Options struct {
	// SheetName selects a sheet by name; the first sheet is used when empty
	// or missing.
	SheetName string
	// BaseSuffix is the remesa suffix used when a sheet gives none.
	BaseSuffix string
	// Approver is stamped on items imported as already paid.
	Approver string
	// Now supplies "today" for sheets without a date.
	Now func() time.Time
}

func (o Options) baseSuffix() string {
	if o.BaseSuffix == "" {
		return "MN"
	}
	return o.BaseSuffix
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) approver() string {
	if o.Approver == "" {
		return "importacion"
	}
	return o.Approver
}

// LoadGrid reads a workbook and returns one sheet as raw values. Numbers and
// dates come back unformatted (dates as Excel serials) so the parsers decide
// how to interpret them. Legacy .xls files are read when excelize cannot open
// the input.
func LoadGrid(r io.Reader, sheetName string) (Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	f, xlsxErr := excelize.OpenReader(bytes.NewReader(data))
	if xlsxErr == nil {
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableFile)
		}
		name := sheets[0]
		for _, s := range sheets {
			if sheetName != "" && strings.EqualFold(s, sheetName) {
				name = s
				break
			}
		}
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadableFile, name, err)
		}
		return Grid(rows), nil
	}

	grid, xlsErr := loadXLS(data)
	if xlsErr == nil {
		return grid, nil
	}
	return nil, fmt.Errorf("%w: xlsx: %v; xls: %v", ErrUnreadableFile, xlsxErr, xlsErr)
}

func loadXLS(data []byte) (Grid, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(workbook.GetSheets()) == 0 {
		return nil, errors.New("xls file has no sheets")
	}
	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("get sheet: %w", err)
	}
	var grid Grid
	for _, row := range sheet.GetRows() {
		var cells []string
		for _, cell := range row.GetCols() {
			cells = append(cells, cell.GetString())
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
