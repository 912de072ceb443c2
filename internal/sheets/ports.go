// Package sheets holds the ports of the payment ledger: the shared
// spreadsheet where every paid remesa line is recorded in the historical
// "BD Remesas" layout.
package sheets

import (
	"context"

	"remesas/internal/core"
	"remesas/internal/spreadsheet"
)

type (
	// LedgerWriter appends the lines of a paid remesa to the ledger.
	LedgerWriter interface {
		AppendRemesa(ctx context.Context, r core.Remesa, items []core.RemesaItem) (rows int, err error)
	}

	// LedgerReader returns the whole ledger, header row included, as raw
	// cell text ready for spreadsheet.ParseHistoryGrid.
	LedgerReader interface {
		ReadLedger(ctx context.Context) (spreadsheet.Grid, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerReader
	}
)
