package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"remesas/internal/core"
	"remesas/internal/spreadsheet"
)

// fakeSheets serves the three Values endpoints the client uses, over a
// single in-memory sheet.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	appends int
	updates int
	lastOpt string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.appends++
		f.lastOpt = r.URL.Query().Get("valueInputOption")
		f.rows = append(f.rows, vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRows": len(vr.Values)},
		})
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates++
		if len(f.rows) == 0 {
			f.rows = append(f.rows, vr.Values...)
		} else {
			f.rows[0] = vr.Values[0]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": 1})
	case r.Method == http.MethodGet:
		values := f.rows
		if strings.Contains(r.URL.Path, "A1:O1") {
			values = f.rows[:min(1, len(f.rows))]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "")
}

func paidRemesa() (core.Remesa, []core.RemesaItem) {
	r := core.Remesa{
		ID:     "r1",
		Number: 7,
		Suffix: "MN",
		Date:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Status: core.StatusPaid,
	}
	items := []core.RemesaItem{
		{Section: core.SectionTransfer, LineNumber: 1, CategoryName: "Obra negra", ContractorName: "Juan Pérez",
			Amount: decimal.NewFromInt(1000), VATPct: decimal.RequireFromString("0.16"),
			VATAmount: decimal.NewFromInt(160), Total: decimal.NewFromInt(1160)},
		{Section: core.SectionCheck, LineNumber: 1, CategoryName: "Acabados", Description: "Pintura",
			Amount: decimal.NewFromInt(500), Total: decimal.NewFromInt(500)},
	}
	return r, items
}

func TestAppendRemesaWritesHeaderOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	r, items := paidRemesa()
	ctx := context.Background()

	n, err := c.AppendRemesa(ctx, r, items)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 2 {
		t.Errorf("rows written = %d, want 2", n)
	}
	if _, err := c.AppendRemesa(ctx, r, items[:1]); err != nil {
		t.Fatalf("second append: %v", err)
	}

	if fake.updates != 1 {
		t.Errorf("header writes = %d, want 1", fake.updates)
	}
	if fake.appends != 2 {
		t.Errorf("appends = %d, want 2", fake.appends)
	}
	if fake.lastOpt != "RAW" {
		t.Errorf("valueInputOption = %q, want RAW", fake.lastOpt)
	}
	if len(fake.rows) != 4 {
		t.Fatalf("sheet rows = %d, want 4", len(fake.rows))
	}
	if got := fake.rows[0][0]; got != "FECHA" {
		t.Errorf("header first cell = %v", got)
	}
	if got := fake.rows[1][0]; got != "2024-03-15" {
		t.Errorf("date cell = %v", got)
	}
}

func TestAppendRemesaKeepsExistingHeader(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{spreadsheet.LedgerHeader}}
	c := newTestClient(t, fake)
	r, items := paidRemesa()

	if _, err := c.AppendRemesa(context.Background(), r, items); err != nil {
		t.Fatalf("append: %v", err)
	}
	if fake.updates != 0 {
		t.Errorf("header rewritten %d times", fake.updates)
	}
}

func TestAppendRemesaWithoutItems(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	r, _ := paidRemesa()

	n, err := c.AppendRemesa(context.Background(), r, nil)
	if err != nil || n != 0 {
		t.Fatalf("append empty = %d, %v", n, err)
	}
	if fake.appends != 0 || fake.updates != 0 {
		t.Errorf("no call expected, got %d appends %d updates", fake.appends, fake.updates)
	}
}

func TestReadLedgerRoundTrip(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	r, items := paidRemesa()
	ctx := context.Background()

	if _, err := c.AppendRemesa(ctx, r, items); err != nil {
		t.Fatalf("append: %v", err)
	}
	grid, err := c.ReadLedger(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("grid rows = %d, want 3", len(grid))
	}
	if grid[1][1] != "7" {
		t.Errorf("remesa number cell = %q, want 7", grid[1][1])
	}
	if grid[1][9] != "1160" {
		t.Errorf("total cell = %q, want 1160", grid[1][9])
	}
}

func TestNilServiceFails(t *testing.T) {
	c := &Client{spreadsheetID: "x", sheet: DefaultLedgerSheet}
	r, items := paidRemesa()
	if _, err := c.AppendRemesa(context.Background(), r, items); err == nil {
		t.Error("expected error with nil service")
	}
	if _, err := c.ReadLedger(context.Background()); err == nil {
		t.Error("expected error with nil service")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuotedSheetName(t *testing.T) {
	c := NewWithService(nil, " id ", "Pagos O'Brien")
	if got := c.quoted(); got != "'Pagos O''Brien'" {
		t.Errorf("quoted = %q", got)
	}
	if c.spreadsheetID != "id" {
		t.Errorf("spreadsheet id not trimmed: %q", c.spreadsheetID)
	}
}
