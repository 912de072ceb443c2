package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"remesas/internal/core"
	"remesas/internal/sheets"
	"remesas/internal/spreadsheet"
)

// Ledger keeps ledger rows in memory, header included. It backs local runs
// without Google credentials and the worker tests.
type Ledger struct {
	mu      sync.Mutex
	rows    [][]any
	appends int
}

var _ sheets.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

// NewFromFile seeds the ledger from the first sheet of a workbook, usually
// an export of the real ledger. A missing file yields an empty ledger.
func NewFromFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger seed: %w", err)
	}
	defer f.Close()

	grid, err := spreadsheet.LoadGrid(f, "")
	if err != nil {
		return nil, fmt.Errorf("load ledger seed %s: %w", path, err)
	}
	l := New()
	for _, row := range grid {
		out := make([]any, len(row))
		for i, v := range row {
			out[i] = v
		}
		l.rows = append(l.rows, out)
	}
	return l, nil
}

// AppendRemesa appends the rows of a remesa, writing the header first when
// the ledger is empty.
func (l *Ledger) AppendRemesa(_ context.Context, r core.Remesa, items []core.RemesaItem) (int, error) {
	rows := spreadsheet.LedgerRows(r, items)
	if len(rows) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rows) == 0 {
		l.rows = append(l.rows, append([]any(nil), spreadsheet.LedgerHeader...))
	}
	l.rows = append(l.rows, rows...)
	l.appends++
	return len(rows), nil
}

func (l *Ledger) ReadLedger(_ context.Context) (spreadsheet.Grid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return spreadsheet.GridFromValues(l.rows), nil
}

// Appends reports how many remesas were appended.
func (l *Ledger) Appends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appends
}

// Len returns the number of rows, header included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}
