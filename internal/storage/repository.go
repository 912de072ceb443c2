// Package storage is the SQLite persistence adapter. Monetary values are
// stored as decimal text, dates as YYYY-MM-DD and timestamps as RFC 3339.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
	"remesas/internal/ports"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteRepository)(nil)

const (
	dateLayout      = "2006-01-02"
	// fixed width so timestamps sort as text
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// dsn enables foreign keys and a busy timeout on every pooled connection.
func dsn(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
}

// mapErr turns constraint failures into domain errors.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: referenced record: %w", op, core.ErrNotFound)
	case strings.Contains(msg, "UNIQUE constraint failed: remesas"):
		return fmt.Errorf("%s: %w", op, core.ErrDuplicateRemesa)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectOne reports ErrNotFound when an update or delete touched no row.
func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timestampPtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTimestamp(ns.String)
	return &t
}

func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

func dec(d decimal.Decimal) string { return d.String() }

// Projects

func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	if p.ID == "" {
		p.ID = core.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner_name, address, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, strings.TrimSpace(p.Name), p.OwnerName, p.Address, formatTimestamp(p.CreatedAt))
	if err != nil {
		return core.Project{}, mapErr("create project", err)
	}
	slog.DebugContext(ctx, "Project created", "project_id", p.ID)
	return p, nil
}

func scanProject(s scanner) (core.Project, error) {
	var p core.Project
	var created string
	if err := s.Scan(&p.ID, &p.Name, &p.OwnerName, &p.Address, &created); err != nil {
		return core.Project{}, err
	}
	p.CreatedAt = parseTimestamp(created)
	return p, nil
}

const projectColumns = `id, name, owner_name, address, created_at`

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, notFound("project", id)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, owner_name = ?, address = ? WHERE id = ?`,
		strings.TrimSpace(p.Name), p.OwnerName, p.Address, p.ID)
	if err != nil {
		return mapErr("update project", err)
	}
	return expectOne(res, "project", p.ID)
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete project", err)
	}
	return expectOne(res, "project", id)
}

// Categories and concepts

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = core.NewID()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, project_id, name) VALUES (?, ?, ?)`,
		c.ID, c.ProjectID, strings.TrimSpace(c.Name))
	if err != nil {
		return core.Category{}, mapErr("create category", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, project_id, name FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, notFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, projectID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, name FROM categories WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RenameCategory renames the category and refreshes the cached name on
// budget and remesa items in one transaction.
func (r *SQLiteRepository) RenameCategory(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE categories SET name = ? WHERE id = ?`, name, id)
		if err != nil {
			return mapErr("rename category", err)
		}
		if err := expectOne(res, "category", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE budget_items SET category_name = ? WHERE category_id = ?`, name, id); err != nil {
			return fmt.Errorf("propagate category name to budget: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE remesa_items SET category_name = ? WHERE category_id = ?`, name, id); err != nil {
			return fmt.Errorf("propagate category name to remesa items: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete category", err)
	}
	return expectOne(res, "category", id)
}

func (r *SQLiteRepository) CreateConcept(ctx context.Context, c core.Concept) (core.Concept, error) {
	if err := c.Validate(); err != nil {
		return core.Concept{}, err
	}
	if c.ID == "" {
		c.ID = core.NewID()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO concepts (id, category_id, name) VALUES (?, ?, ?)`,
		c.ID, c.CategoryID, strings.TrimSpace(c.Name))
	if err != nil {
		return core.Concept{}, mapErr("create concept", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetConcept(ctx context.Context, id string) (core.Concept, error) {
	var c core.Concept
	err := r.db.QueryRowContext(ctx, `SELECT id, category_id, name FROM concepts WHERE id = ?`, id).
		Scan(&c.ID, &c.CategoryID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Concept{}, notFound("concept", id)
	}
	if err != nil {
		return core.Concept{}, fmt.Errorf("get concept: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListConcepts(ctx context.Context, projectID string) ([]core.Concept, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.category_id, c.name
		FROM concepts c JOIN categories cat ON cat.id = c.category_id
		WHERE cat.project_id = ?
		ORDER BY c.name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	defer rows.Close()
	var out []core.Concept
	for rows.Next() {
		var c core.Concept
		if err := rows.Scan(&c.ID, &c.CategoryID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RenameConcept(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE concepts SET name = ? WHERE id = ?`, name, id)
		if err != nil {
			return mapErr("rename concept", err)
		}
		if err := expectOne(res, "concept", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE budget_items SET concept_name = ? WHERE concept_id = ?`, name, id); err != nil {
			return fmt.Errorf("propagate concept name to budget: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE remesa_items SET concept_name = ? WHERE concept_id = ?`, name, id); err != nil {
			return fmt.Errorf("propagate concept name to remesa items: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteConcept(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete concept", err)
	}
	return expectOne(res, "concept", id)
}

// Contractors

const contractorColumns = `id, project_id, name, bank, account_number, clabe, notes`

func scanContractor(s scanner) (core.Contractor, error) {
	var c core.Contractor
	err := s.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Bank, &c.AccountNumber, &c.CLABE, &c.Notes)
	return c, err
}

func (r *SQLiteRepository) CreateContractor(ctx context.Context, c core.Contractor) (core.Contractor, error) {
	if err := c.Validate(); err != nil {
		return core.Contractor{}, err
	}
	if c.ID == "" {
		c.ID = core.NewID()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO contractors (`+contractorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, strings.TrimSpace(c.Name), c.Bank, c.AccountNumber, strings.TrimSpace(c.CLABE), c.Notes)
	if err != nil {
		return core.Contractor{}, mapErr("create contractor", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetContractor(ctx context.Context, id string) (core.Contractor, error) {
	c, err := scanContractor(r.db.QueryRowContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Contractor{}, notFound("contractor", id)
	}
	if err != nil {
		return core.Contractor{}, fmt.Errorf("get contractor: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListContractors(ctx context.Context, projectID string) ([]core.Contractor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list contractors: %w", err)
	}
	defer rows.Close()
	var out []core.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contractor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateContractor(ctx context.Context, c core.Contractor) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE contractors SET name = ?, bank = ?, account_number = ?, clabe = ?, notes = ? WHERE id = ?`,
		strings.TrimSpace(c.Name), c.Bank, c.AccountNumber, strings.TrimSpace(c.CLABE), c.Notes, c.ID)
	if err != nil {
		return mapErr("update contractor", err)
	}
	return expectOne(res, "contractor", c.ID)
}

func (r *SQLiteRepository) DeleteContractor(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contractors WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete contractor", err)
	}
	return expectOne(res, "contractor", id)
}

// Exchange rates

func (r *SQLiteRepository) CreateExchangeRate(ctx context.Context, x core.ExchangeRate) (core.ExchangeRate, error) {
	if err := x.Validate(); err != nil {
		return core.ExchangeRate{}, err
	}
	if x.ID == "" {
		x.ID = core.NewID()
	}
	x.Date = core.DateOnly(x.Date)
	_, err := r.db.ExecContext(ctx, `INSERT INTO exchange_rates (id, date, currency, rate) VALUES (?, ?, ?, ?)`,
		x.ID, formatDate(x.Date), string(x.Currency), dec(x.Rate))
	if err != nil {
		return core.ExchangeRate{}, mapErr("create exchange rate", err)
	}
	return x, nil
}

func scanRate(s scanner) (core.ExchangeRate, error) {
	var x core.ExchangeRate
	var date, currency string
	if err := s.Scan(&x.ID, &date, &currency, &x.Rate); err != nil {
		return core.ExchangeRate{}, err
	}
	x.Date = parseDate(date)
	x.Currency = core.Currency(currency)
	return x, nil
}

func (r *SQLiteRepository) ListExchangeRates(ctx context.Context) ([]core.ExchangeRate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, date, currency, rate FROM exchange_rates ORDER BY date DESC, currency`)
	if err != nil {
		return nil, fmt.Errorf("list exchange rates: %w", err)
	}
	defer rows.Close()
	var out []core.ExchangeRate
	for rows.Next() {
		x, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange rate: %w", err)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteExchangeRate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exchange_rates WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete exchange rate", err)
	}
	return expectOne(res, "exchange rate", id)
}

func (r *SQLiteRepository) LatestExchangeRate(ctx context.Context, currency core.Currency, onOrBefore time.Time) (core.ExchangeRate, error) {
	x, err := scanRate(r.db.QueryRowContext(ctx, `
		SELECT id, date, currency, rate FROM exchange_rates
		WHERE currency = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, string(currency), formatDate(core.DateOnly(onOrBefore))))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExchangeRate{}, notFound("exchange rate", string(currency))
	}
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("latest exchange rate: %w", err)
	}
	return x, nil
}
