package backend

import (
	"context"

	"remesas/internal/ports"
	"remesas/internal/services"
	"remesas/internal/sheets"
)

// CleanupFunc releases the resources of a backend.
type CleanupFunc func() error

// Result holds what a backend was built from. Publisher and Ledger are nil
// interfaces when AMQP or the Google ledger are not configured.
type Result struct {
	Store     ports.Store
	Publisher services.EventPublisher
	Ledger    sheets.Ledger
	Cleanup   CleanupFunc
	// Ready reports whether the store is usable.
	Ready func(ctx context.Context) error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific: start with the demo project
	DemoSeed bool

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger, optional
	GoogleSpreadsheetID      string
	GoogleLedgerSheet        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of store
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
