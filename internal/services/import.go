package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"remesas/internal/core"
	"remesas/internal/ports"
	"remesas/internal/sheets"
	"remesas/internal/spreadsheet"
)

// ImportService turns parsed workbooks into stored records. Parsing never
// writes; the Commit methods do.
type ImportService struct {
	store   ports.Store
	budget  *BudgetService
	remesas *RemesaService
	ledger  sheets.LedgerReader
	opts    spreadsheet.Options
}

// NewImportService builds the service. ledger may be nil when no Google
// Sheets ledger is configured.
func NewImportService(store ports.Store, budget *BudgetService, remesas *RemesaService, ledger sheets.LedgerReader, opts spreadsheet.Options) *ImportService {
	return &ImportService{store: store, budget: budget, remesas: remesas, ledger: ledger, opts: opts}
}

// ErrNoLedger is returned when a ledger import is requested without a
// configured ledger.
var ErrNoLedger = errors.New("ledger not configured")

// BudgetPreview is a parsed budget file with its consistency findings.
type BudgetPreview struct {
	Items    []core.BudgetItem `json:"items"`
	Total    string            `json:"total_mxn"`
	Warnings []string          `json:"warnings,omitempty"`
}

// PreviewBudget parses a flat budget workbook.
func (s *ImportService) PreviewBudget(r io.Reader) (*BudgetPreview, error) {
	items, err := spreadsheet.ParseBudget(r, s.opts)
	if err != nil {
		return nil, err
	}
	p := &BudgetPreview{Items: items}
	total := core.Amount("0")
	for i, b := range items {
		total = total.Add(b.TotalMXN)
		if err := b.CheckConsistency(); err != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("línea %d: %v", i+1, err))
		}
	}
	p.Total = total.StringFixed(2)
	return p, nil
}

// CommitBudget parses and stores a budget workbook for a project.
func (s *ImportService) CommitBudget(ctx context.Context, projectID string, r io.Reader) (*ImportResult, error) {
	items, err := spreadsheet.ParseBudget(r, s.opts)
	if err != nil {
		return nil, err
	}
	return s.budget.ImportItems(ctx, projectID, items)
}

// PreviewRemesa parses a single remesa workbook.
func (s *ImportService) PreviewRemesa(r io.Reader) (*spreadsheet.RemesaSheet, error) {
	return spreadsheet.ParseRemesa(r, s.opts)
}

// resolver links free-text names from a sheet to the project's catalog.
type resolver struct {
	contractors     map[string]core.Contractor
	contractorNames *spreadsheet.NameMatcher
	categories      map[string]core.Category
	categoryNames   *spreadsheet.NameMatcher
	concepts        map[string][]core.Concept
}

func (s *ImportService) loadResolver(ctx context.Context, projectID string) (*resolver, error) {
	res := &resolver{
		contractors: map[string]core.Contractor{},
		categories:  map[string]core.Category{},
		concepts:    map[string][]core.Concept{},
	}
	contractors, err := s.store.ListContractors(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list contractors: %w", err)
	}
	var names []string
	for _, c := range contractors {
		res.contractors[c.Name] = c
		names = append(names, c.Name)
	}
	res.contractorNames = spreadsheet.NewNameMatcher(names)

	cats, err := s.store.ListCategories(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names = names[:0]
	for _, c := range cats {
		res.categories[c.Name] = c
		names = append(names, c.Name)
	}
	res.categoryNames = spreadsheet.NewNameMatcher(names)

	cons, err := s.store.ListConcepts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	for _, c := range cons {
		res.concepts[c.CategoryID] = append(res.concepts[c.CategoryID], c)
	}
	return res, nil
}

// link fills ids for the contractor, category and concept of an item when
// its names match the catalog. Bank details missing on the sheet are taken
// from the matched contractor.
func (res *resolver) link(it *core.RemesaItem) {
	if name, ok := res.contractorNames.Match(it.ContractorName); ok {
		c := res.contractors[name]
		it.ContractorID = c.ID
		if it.Bank == "" {
			it.Bank = c.Bank
		}
		if it.AccountNumber == "" {
			it.AccountNumber = c.AccountNumber
		}
		if it.CLABE == "" {
			it.CLABE = c.CLABE
		}
	}
	name, ok := res.categoryNames.Match(it.CategoryName)
	if !ok {
		return
	}
	cat := res.categories[name]
	it.CategoryID = cat.ID
	if it.CategoryName == "" {
		it.CategoryName = cat.Name
	}
	var conceptNames []string
	byName := map[string]core.Concept{}
	for _, c := range res.concepts[cat.ID] {
		conceptNames = append(conceptNames, c.Name)
		byName[c.Name] = c
	}
	if name, ok := spreadsheet.NewNameMatcher(conceptNames).Match(it.ConceptName); ok {
		it.ConceptID = byName[name].ID
	}
}

// CommitRemesa stores a parsed remesa as a new draft. The sheet's number is
// kept when it is set and free, otherwise the next number is used. Amounts
// are kept as the sheet states them.
func (s *ImportService) CommitRemesa(ctx context.Context, projectID string, sheet *spreadsheet.RemesaSheet, createdBy string) (*RemesaDetail, error) {
	res, err := s.loadResolver(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("import remesa: %w", err)
	}

	number := sheet.Number
	if number > 0 {
		if _, err := s.store.FindRemesa(ctx, projectID, number, sheet.Suffix); err == nil {
			slog.WarnContext(ctx, "Remesa number already used, taking the next one",
				"component", "import", "project_id", projectID, "remesa_number", number)
			number = 0
		} else if !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("import remesa: %w", err)
		}
	}
	r, err := s.remesas.Create(ctx, NewRemesa{
		ProjectID:       projectID,
		Number:          number,
		Suffix:          sheet.Suffix,
		Date:            sheet.Date,
		WeekDescription: sheet.WeekDescription,
		CreatedBy:       createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("import remesa: %w", err)
	}

	items := make([]core.RemesaItem, len(sheet.Items))
	for i, it := range sheet.Items {
		it.ID, it.Approval = "", core.Approval{}
		res.link(&it)
		items[i] = it
	}
	core.Renumber(items)
	if err := s.storeItems(ctx, r.ID, items); err != nil {
		return nil, fmt.Errorf("import remesa %s: %w", r.Label(), err)
	}
	slog.InfoContext(ctx, "Remesa imported",
		"component", "import", "project_id", projectID, "remesa_id", r.ID, "remesa", r.Label(), "items", len(items))
	return s.remesas.Detail(ctx, r.ID)
}

// storeItems writes items as given and settles the remesa.
func (s *ImportService) storeItems(ctx context.Context, remesaID string, items []core.RemesaItem) error {
	unlock := s.remesas.locks.Lock(remesaID)
	defer unlock()
	if _, err := s.store.ReplaceRemesaItems(ctx, remesaID, items); err != nil {
		return err
	}
	return s.remesas.settle(ctx, remesaID)
}

// PreviewHistory parses an uploaded historical ledger workbook.
func (s *ImportService) PreviewHistory(r io.Reader) (*spreadsheet.HistorySheet, error) {
	return spreadsheet.ParseHistory(r, s.opts)
}

// PreviewLedger reads the configured Google Sheets ledger as history.
func (s *ImportService) PreviewLedger(ctx context.Context) (*spreadsheet.HistorySheet, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	grid, err := s.ledger.ReadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return spreadsheet.ParseHistoryGrid(grid, s.opts)
}

// HistoryResult reports a history commit.
type HistoryResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
	Items   int      `json:"items"`
}

// CommitHistory creates one paid remesa per group, in order. Groups whose
// number and suffix already exist with items are skipped, so an interrupted
// import can simply be run again. A remesa whose items could not be stored is
// removed again; one left empty by an older run is filled. Imported remesas
// are marked as already in the ledger.
func (s *ImportService) CommitHistory(ctx context.Context, projectID string, sheet *spreadsheet.HistorySheet) (*HistoryResult, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("import history: %w", err)
	}
	res, err := s.loadResolver(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("import history: %w", err)
	}

	out := &HistoryResult{}
	for i, grp := range sheet.Groups {
		label := fmt.Sprintf("%02d %s", grp.Number, grp.Suffix)
		if err := s.commitGroup(ctx, projectID, grp, res, out); err != nil {
			slog.ErrorContext(ctx, "History import stopped",
				"component", "import", "project_id", projectID, "remesa", label, "applied", i, "error", err)
			return out, &PartialError{Op: "import history", Applied: i, Total: len(sheet.Groups), Err: fmt.Errorf("remesa %s: %w", label, err)}
		}
	}
	slog.InfoContext(ctx, "History imported",
		"component", "import", "project_id", projectID,
		"created", len(out.Created), "skipped", len(out.Skipped), "items", out.Items)
	return out, nil
}

func (s *ImportService) commitGroup(ctx context.Context, projectID string, grp *spreadsheet.HistoryGroup, res *resolver, out *HistoryResult) error {
	label := fmt.Sprintf("%02d %s", grp.Number, grp.Suffix)
	items := make([]core.RemesaItem, len(grp.Items))
	for i, it := range grp.Items {
		res.link(&it)
		items[i] = it
	}

	existing, err := s.store.FindRemesa(ctx, projectID, grp.Number, grp.Suffix)
	switch {
	case err == nil:
		stored, err := s.store.ListRemesaItems(ctx, existing.ID)
		if err != nil {
			return err
		}
		if len(stored) > 0 || len(items) == 0 {
			out.Skipped = append(out.Skipped, label)
			return nil
		}
		slog.WarnContext(ctx, "Filling remesa left empty by an earlier import",
			"component", "import", "project_id", projectID, "remesa_id", existing.ID, "remesa", label)
		if err := s.storeItems(ctx, existing.ID, items); err != nil {
			return err
		}
		out.Created = append(out.Created, label)
		out.Items += len(items)
		return nil
	case !errors.Is(err, core.ErrNotFound):
		return err
	}

	date := grp.Date
	if date.IsZero() {
		date = s.remesas.now()
	}
	synced := time.Now().UTC()
	r, err := s.store.CreateRemesa(ctx, core.Remesa{
		ProjectID:      projectID,
		Number:         grp.Number,
		Suffix:         grp.Suffix,
		Date:           core.DateOnly(date),
		CreatedBy:      strings.TrimSpace(s.opts.Approver),
		Status:         core.StatusSent,
		LedgerSyncedAt: &synced,
	})
	if err != nil {
		return err
	}
	if err := s.storeItems(ctx, r.ID, items); err != nil {
		if derr := s.store.DeleteRemesa(ctx, r.ID); derr != nil {
			return errors.Join(err, fmt.Errorf("remove unfinished remesa: %w", derr))
		}
		return err
	}
	out.Created = append(out.Created, label)
	out.Items += len(items)
	return nil
}
