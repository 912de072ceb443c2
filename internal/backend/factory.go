package backend

import (
	"context"
	"errors"
	"fmt"

	"remesas/internal/amqp"
	applog "remesas/internal/log"
	"remesas/internal/ports"
	gsheet "remesas/internal/sheets/google"
	"remesas/internal/storage"
	"remesas/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Setup("info", applog.ComponentBackend)
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend builds the store and the optional AMQP publisher and
// Google ledger. Failing to reach AMQP or Google is logged and the backend
// continues without them; a failing store is an error.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store ports.Store
		ready func(context.Context) error
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		var repo *storage.SQLiteRepository
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store, ready = repo, repo.Ping
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store, err = f.createMemoryStore(ctx, config)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	res := &Result{Store: store, Ready: ready}
	closers := []func() error{store.Close}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without status events", applog.FieldError, err)
		} else {
			res.Publisher = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		}
	}

	if config.GoogleSpreadsheetID != "" {
		ledger, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleLedgerSheet,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets ledger, continuing without it", applog.FieldError, err)
		} else {
			res.Ledger = ledger
			f.logger.Info("Initialized Google Sheets ledger", "sheet", config.GoogleLedgerSheet)
		}
	}

	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *DefaultFactory) createMemoryStore(ctx context.Context, config Config) (ports.Store, error) {
	if !config.DemoSeed {
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	}
	store, err := memory.NewDemo(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend with demo data")
	return store, nil
}
