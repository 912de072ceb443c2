package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remesas/internal/core"
)

// Budget

const budgetColumns = `id, project_id, category_id, concept_id, category_name, concept_name, detail, supplier, unit,
	quantity, currency, unit_price, subtotal, surcharge_pct, surcharge_amount, vat_pct, vat_amount, total,
	exchange_rate, total_mxn, notes`

func budgetArgs(b core.BudgetItem) []any {
	return []any{
		b.ID, b.ProjectID, nullable(b.CategoryID), nullable(b.ConceptID), b.CategoryName, b.ConceptName,
		b.Detail, b.Supplier, b.Unit,
		dec(b.Quantity), string(b.Currency), dec(b.UnitPrice), dec(b.Subtotal), dec(b.SurchargePct),
		dec(b.SurchargeAmount), dec(b.VATPct), dec(b.VATAmount), dec(b.Total),
		dec(b.ExchangeRate), dec(b.TotalMXN), b.Notes,
	}
}

func scanBudgetItem(s scanner) (core.BudgetItem, error) {
	var b core.BudgetItem
	var categoryID, conceptID sql.NullString
	var currency string
	err := s.Scan(&b.ID, &b.ProjectID, &categoryID, &conceptID, &b.CategoryName, &b.ConceptName,
		&b.Detail, &b.Supplier, &b.Unit,
		&b.Quantity, &currency, &b.UnitPrice, &b.Subtotal, &b.SurchargePct,
		&b.SurchargeAmount, &b.VATPct, &b.VATAmount, &b.Total,
		&b.ExchangeRate, &b.TotalMXN, &b.Notes)
	if err != nil {
		return core.BudgetItem{}, err
	}
	b.CategoryID = categoryID.String
	b.ConceptID = conceptID.String
	b.Currency = core.Currency(currency)
	return b, nil
}

// CreateBudgetItems inserts the batch in one transaction; a single bad line
// rejects all of them.
func (r *SQLiteRepository) CreateBudgetItems(ctx context.Context, items []core.BudgetItem) ([]core.BudgetItem, error) {
	for i, b := range items {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("budget item %d: %w", i, err)
		}
	}
	out := make([]core.BudgetItem, len(items))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var base int
		if len(items) > 0 {
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(position), 0) FROM budget_items WHERE project_id = ?`,
				items[0].ProjectID).Scan(&base); err != nil {
				return fmt.Errorf("budget position: %w", err)
			}
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO budget_items (`+budgetColumns+`, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare budget insert: %w", err)
		}
		defer stmt.Close()
		for i, b := range items {
			if b.ID == "" {
				b.ID = core.NewID()
			}
			if _, err := stmt.ExecContext(ctx, append(budgetArgs(b), base+i+1)...); err != nil {
				return mapErr(fmt.Sprintf("insert budget item %d", i), err)
			}
			out[i] = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Budget items created", "count", len(out))
	return out, nil
}

func (r *SQLiteRepository) GetBudgetItem(ctx context.Context, id string) (core.BudgetItem, error) {
	b, err := scanBudgetItem(r.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budget_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetItem{}, notFound("budget item", id)
	}
	if err != nil {
		return core.BudgetItem{}, fmt.Errorf("get budget item: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgetItems(ctx context.Context, projectID string) ([]core.BudgetItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budget_items WHERE project_id = ? ORDER BY position, rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list budget items: %w", err)
	}
	defer rows.Close()
	var out []core.BudgetItem
	for rows.Next() {
		b, err := scanBudgetItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget item: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateBudgetItem(ctx context.Context, b core.BudgetItem) error {
	if err := b.Validate(); err != nil {
		return err
	}
	args := budgetArgs(b)
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_items SET
			project_id = ?, category_id = ?, concept_id = ?, category_name = ?, concept_name = ?,
			detail = ?, supplier = ?, unit = ?, quantity = ?, currency = ?, unit_price = ?, subtotal = ?,
			surcharge_pct = ?, surcharge_amount = ?, vat_pct = ?, vat_amount = ?, total = ?,
			exchange_rate = ?, total_mxn = ?, notes = ?
		WHERE id = ?`, append(args[1:], b.ID)...)
	if err != nil {
		return mapErr("update budget item", err)
	}
	return expectOne(res, "budget item", b.ID)
}

func (r *SQLiteRepository) DeleteBudgetItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budget_items WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete budget item", err)
	}
	return expectOne(res, "budget item", id)
}

// Remesas

const remesaColumns = `id, project_id, remesa_number, remesa_suffix, date, week_description, total_amount,
	status, created_by, created_at, ledger_synced_at`

func scanRemesa(s scanner) (core.Remesa, error) {
	var rm core.Remesa
	var date, status, created string
	var synced sql.NullString
	err := s.Scan(&rm.ID, &rm.ProjectID, &rm.Number, &rm.Suffix, &date, &rm.WeekDescription, &rm.Total,
		&status, &rm.CreatedBy, &created, &synced)
	if err != nil {
		return core.Remesa{}, err
	}
	rm.Date = parseDate(date)
	rm.Status = core.Status(status)
	rm.CreatedAt = parseTimestamp(created)
	rm.LedgerSyncedAt = timestampPtr(synced)
	return rm, nil
}

func (r *SQLiteRepository) CreateRemesa(ctx context.Context, rm core.Remesa) (core.Remesa, error) {
	if rm.Status == "" {
		rm.Status = core.StatusDraft
	}
	if rm.Suffix == "" {
		rm.Suffix = core.DefaultSuffix
	}
	if err := rm.Validate(); err != nil {
		return core.Remesa{}, err
	}
	if rm.ID == "" {
		rm.ID = core.NewID()
	}
	if rm.CreatedAt.IsZero() {
		rm.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO remesas (`+remesaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rm.ID, rm.ProjectID, rm.Number, rm.Suffix, formatDate(rm.Date), rm.WeekDescription, dec(rm.Total),
		string(rm.Status), rm.CreatedBy, formatTimestamp(rm.CreatedAt), nullTimestamp(rm.LedgerSyncedAt))
	if err != nil {
		return core.Remesa{}, mapErr("create remesa "+rm.Label(), err)
	}
	slog.DebugContext(ctx, "Remesa created", "remesa_id", rm.ID, "remesa", rm.Label())
	return rm, nil
}

func (r *SQLiteRepository) GetRemesa(ctx context.Context, id string) (core.Remesa, error) {
	rm, err := scanRemesa(r.db.QueryRowContext(ctx, `SELECT `+remesaColumns+` FROM remesas WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Remesa{}, notFound("remesa", id)
	}
	if err != nil {
		return core.Remesa{}, fmt.Errorf("get remesa: %w", err)
	}
	return rm, nil
}

// FindRemesa matches the suffix without regard to case.
func (r *SQLiteRepository) FindRemesa(ctx context.Context, projectID string, number int, suffix string) (core.Remesa, error) {
	rm, err := scanRemesa(r.db.QueryRowContext(ctx,
		`SELECT `+remesaColumns+` FROM remesas WHERE project_id = ? AND remesa_number = ? AND remesa_suffix = ?`,
		projectID, number, strings.TrimSpace(suffix)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Remesa{}, notFound("remesa", fmt.Sprintf("%02d %s", number, suffix))
	}
	if err != nil {
		return core.Remesa{}, fmt.Errorf("find remesa: %w", err)
	}
	return rm, nil
}

func (r *SQLiteRepository) queryRemesas(ctx context.Context, query string, args ...any) ([]core.Remesa, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list remesas: %w", err)
	}
	defer rows.Close()
	var out []core.Remesa
	for rows.Next() {
		rm, err := scanRemesa(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remesa: %w", err)
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListRemesas(ctx context.Context, projectID string) ([]core.Remesa, error) {
	return r.queryRemesas(ctx,
		`SELECT `+remesaColumns+` FROM remesas WHERE project_id = ? ORDER BY remesa_number DESC, remesa_suffix`, projectID)
}

func (r *SQLiteRepository) UpdateRemesa(ctx context.Context, rm core.Remesa) error {
	if rm.Suffix == "" {
		rm.Suffix = core.DefaultSuffix
	}
	if err := rm.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE remesas SET remesa_number = ?, remesa_suffix = ?, date = ?, week_description = ?,
			created_by = ?, total_amount = ?
		WHERE id = ?`,
		rm.Number, rm.Suffix, formatDate(rm.Date), rm.WeekDescription, rm.CreatedBy, dec(rm.Total), rm.ID)
	if err != nil {
		return mapErr("update remesa "+rm.Label(), err)
	}
	return expectOne(res, "remesa", rm.ID)
}

func (r *SQLiteRepository) DeleteRemesa(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM remesas WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete remesa", err)
	}
	return expectOne(res, "remesa", id)
}

func (r *SQLiteRepository) MaxRemesaNumber(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(remesa_number), 0) FROM remesas WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max remesa number: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SetRemesaStatus(ctx context.Context, id string, status core.Status) error {
	if !status.IsValid() {
		return &core.ValidationError{Field: "status", Err: fmt.Errorf("unknown status %q", status)}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE remesas SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return mapErr("set remesa status", err)
	}
	return expectOne(res, "remesa", id)
}

func (r *SQLiteRepository) ListUnsyncedPaidRemesas(ctx context.Context, limit int) ([]core.Remesa, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryRemesas(ctx, `
		SELECT `+remesaColumns+` FROM remesas
		WHERE status = ? AND ledger_synced_at IS NULL
		ORDER BY created_at
		LIMIT ?`, string(core.StatusPaid), limit)
}

func (r *SQLiteRepository) MarkLedgerSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE remesas SET ledger_synced_at = ? WHERE id = ?`, formatTimestamp(at), id)
	if err != nil {
		return mapErr("mark ledger synced", err)
	}
	return expectOne(res, "remesa", id)
}

// Items

const itemColumns = `id, remesa_id, section, line_number, category_id, concept_id, category_name, concept_name,
	contractor_id, contractor_name, description, amount, vat_pct, vat_amount, total, payment_type,
	bank, account_number, clabe, notes, is_approved, approved_at, approved_by`

func itemArgs(it core.RemesaItem) []any {
	return []any{
		it.ID, it.RemesaID, string(it.Section), it.LineNumber, nullable(it.CategoryID), nullable(it.ConceptID),
		it.CategoryName, it.ConceptName, nullable(it.ContractorID), it.ContractorName, it.Description,
		dec(it.Amount), dec(it.VATPct), dec(it.VATAmount), dec(it.Total), it.PaymentType,
		it.Bank, it.AccountNumber, it.CLABE, it.Notes, it.Approved, nullTimestamp(it.ApprovedAt), it.ApprovedBy,
	}
}

func scanItem(s scanner) (core.RemesaItem, error) {
	var it core.RemesaItem
	var section string
	var categoryID, conceptID, contractorID, approvedAt sql.NullString
	err := s.Scan(&it.ID, &it.RemesaID, &section, &it.LineNumber, &categoryID, &conceptID,
		&it.CategoryName, &it.ConceptName, &contractorID, &it.ContractorName, &it.Description,
		&it.Amount, &it.VATPct, &it.VATAmount, &it.Total, &it.PaymentType,
		&it.Bank, &it.AccountNumber, &it.CLABE, &it.Notes, &it.Approved, &approvedAt, &it.ApprovedBy)
	if err != nil {
		return core.RemesaItem{}, err
	}
	it.Section = core.Section(section)
	it.CategoryID = categoryID.String
	it.ConceptID = conceptID.String
	it.ContractorID = contractorID.String
	it.ApprovedAt = timestampPtr(approvedAt)
	return it, nil
}

// qualify prefixes every column in a column list with a table alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

const insertItem = `INSERT INTO remesa_items (` + itemColumns + `, position)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *SQLiteRepository) remesaExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM remesas WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("remesa", id)
	}
	if err != nil {
		return fmt.Errorf("lookup remesa: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryItems(ctx context.Context, query string, args ...any) ([]core.RemesaItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list remesa items: %w", err)
	}
	defer rows.Close()
	var out []core.RemesaItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remesa item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListRemesaItems(ctx context.Context, remesaID string) ([]core.RemesaItem, error) {
	if err := r.remesaExists(ctx, r.db, remesaID); err != nil {
		return nil, err
	}
	return r.queryItems(ctx,
		`SELECT `+itemColumns+` FROM remesa_items WHERE remesa_id = ? ORDER BY section, line_number, position`, remesaID)
}

func (r *SQLiteRepository) GetRemesaItem(ctx context.Context, id string) (core.RemesaItem, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM remesa_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RemesaItem{}, notFound("remesa item", id)
	}
	if err != nil {
		return core.RemesaItem{}, fmt.Errorf("get remesa item: %w", err)
	}
	return it, nil
}

// ReplaceRemesaItems deletes the current items and inserts the new set in
// one transaction. Every item gets a fresh id.
func (r *SQLiteRepository) ReplaceRemesaItems(ctx context.Context, remesaID string, items []core.RemesaItem) ([]core.RemesaItem, error) {
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	out := make([]core.RemesaItem, len(items))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.remesaExists(ctx, tx, remesaID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM remesa_items WHERE remesa_id = ?`, remesaID); err != nil {
			return fmt.Errorf("clear remesa items: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, insertItem)
		if err != nil {
			return fmt.Errorf("prepare item insert: %w", err)
		}
		defer stmt.Close()
		for i, it := range items {
			it.ID = core.NewID()
			it.RemesaID = remesaID
			if _, err := stmt.ExecContext(ctx, append(itemArgs(it), i+1)...); err != nil {
				return mapErr(fmt.Sprintf("insert item %d", i), err)
			}
			out[i] = it
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Remesa items replaced", "remesa_id", remesaID, "count", len(out))
	return out, nil
}

func (r *SQLiteRepository) AddRemesaItem(ctx context.Context, item core.RemesaItem) (core.RemesaItem, error) {
	if item.RemesaID == "" {
		return core.RemesaItem{}, &core.ValidationError{Field: "remesa_id", Err: core.ErrMissingRemesaRef}
	}
	if err := item.Validate(); err != nil {
		return core.RemesaItem{}, err
	}
	if item.ID == "" {
		item.ID = core.NewID()
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.remesaExists(ctx, tx, item.RemesaID); err != nil {
			return err
		}
		var pos int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM remesa_items WHERE remesa_id = ?`, item.RemesaID).Scan(&pos); err != nil {
			return fmt.Errorf("item position: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertItem, append(itemArgs(item), pos)...); err != nil {
			return mapErr("insert remesa item", err)
		}
		return nil
	})
	if err != nil {
		return core.RemesaItem{}, err
	}
	return item, nil
}

// UpdateRemesaItem rewrites the item's content. The remesa it belongs to
// and its approval are left alone.
func (r *SQLiteRepository) UpdateRemesaItem(ctx context.Context, it core.RemesaItem) error {
	if err := it.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE remesa_items SET
			section = ?, line_number = ?, category_id = ?, concept_id = ?, category_name = ?, concept_name = ?,
			contractor_id = ?, contractor_name = ?, description = ?, amount = ?, vat_pct = ?, vat_amount = ?,
			total = ?, payment_type = ?, bank = ?, account_number = ?, clabe = ?, notes = ?
		WHERE id = ?`,
		string(it.Section), it.LineNumber, nullable(it.CategoryID), nullable(it.ConceptID), it.CategoryName, it.ConceptName,
		nullable(it.ContractorID), it.ContractorName, it.Description, dec(it.Amount), dec(it.VATPct), dec(it.VATAmount),
		dec(it.Total), it.PaymentType, it.Bank, it.AccountNumber, it.CLABE, it.Notes, it.ID)
	if err != nil {
		return mapErr("update remesa item", err)
	}
	return expectOne(res, "remesa item", it.ID)
}

func (r *SQLiteRepository) DeleteRemesaItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM remesa_items WHERE id = ?`, id)
	if err != nil {
		return mapErr("delete remesa item", err)
	}
	return expectOne(res, "remesa item", id)
}

func (r *SQLiteRepository) SetItemApproval(ctx context.Context, id string, a core.Approval) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE remesa_items SET is_approved = ?, approved_at = ?, approved_by = ? WHERE id = ?`,
		a.Approved, nullTimestamp(a.ApprovedAt), a.ApprovedBy, id)
	if err != nil {
		return mapErr("set item approval", err)
	}
	return expectOne(res, "remesa item", id)
}

func (r *SQLiteRepository) ListApprovedItems(ctx context.Context, projectID string) ([]core.RemesaItem, error) {
	return r.queryItems(ctx, `
		SELECT `+qualify("i", itemColumns)+`
		FROM remesa_items i JOIN remesas rm ON rm.id = i.remesa_id
		WHERE rm.project_id = ? AND i.is_approved = 1
		ORDER BY rm.remesa_number, i.section, i.line_number`, projectID)
}
