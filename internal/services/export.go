package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"remesas/internal/core"
	"remesas/internal/spreadsheet"
)

// ExportService renders remesas as the styled workbook the office prints.
type ExportService struct {
	remesas *RemesaService
	budget  *BudgetService
	catalog *CatalogService
}

func NewExportService(remesas *RemesaService, budget *BudgetService, catalog *CatalogService) *ExportService {
	return &ExportService{remesas: remesas, budget: budget, catalog: catalog}
}

// Load gathers everything the workbook needs. The remesa, its project and
// the budget comparison are read concurrently. withBudget adds the
// budget, paid and available columns.
func (s *ExportService) Load(ctx context.Context, remesaID string, withBudget bool) (*spreadsheet.ExportData, error) {
	r, err := s.remesas.Get(ctx, remesaID)
	if err != nil {
		return nil, fmt.Errorf("export remesa: %w", err)
	}

	var (
		project core.Project
		items   []core.RemesaItem
		budget  *core.BudgetVsPaid
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.catalog.GetProject(gctx, r.ProjectID)
		if err != nil {
			return fmt.Errorf("load project: %w", err)
		}
		project = p
		return nil
	})
	g.Go(func() error {
		d, err := s.remesas.Detail(gctx, remesaID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		items = d.Items
		return nil
	})
	if withBudget {
		g.Go(func() error {
			v, err := s.budget.BudgetVsPaid(gctx, r.ProjectID)
			if err != nil {
				return fmt.Errorf("load budget: %w", err)
			}
			budget = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export remesa %s: %w", r.Label(), err)
	}
	return &spreadsheet.ExportData{Project: project, Remesa: r, Items: items, Budget: budget}, nil
}

// Export writes the workbook of a remesa to out and returns the suggested
// file name.
func (s *ExportService) Export(ctx context.Context, remesaID string, withBudget bool, out io.Writer) (string, error) {
	data, err := s.Load(ctx, remesaID, withBudget)
	if err != nil {
		return "", err
	}
	if err := spreadsheet.ExportRemesa(out, *data); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	name := spreadsheet.ExportFileName(data.Project, data.Remesa)
	slog.InfoContext(ctx, "Remesa exported",
		"component", "export", "remesa_id", remesaID, "file", name, "items", len(data.Items))
	return name, nil
}
