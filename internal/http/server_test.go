package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"remesas/internal/cache"
	"remesas/internal/core"
	"remesas/internal/middleware/ratelimit"
	"remesas/internal/services"
	"remesas/internal/spreadsheet"
	"remesas/internal/storage/memory"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	store := memory.New()
	catalog := services.NewCatalogService(store)
	budget := services.NewBudgetService(store, cache.NewLRUCache[*core.BudgetVsPaid](10, time.Minute))
	remesas := services.NewRemesaService(store, nil)
	remesas.OnChange(budget.Invalidate)
	catalog.OnChange(budget.Invalidate)

	srv := NewServer(":0", Services{
		Catalog: catalog,
		Budget:  budget,
		Remesas: remesas,
		Import:  services.NewImportService(store, budget, remesas, nil, spreadsheet.Options{}),
		Export:  services.NewExportService(remesas, budget, catalog),
	}, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func decimalOf(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, want, rr.Body.String())
	}
}

func createProject(t *testing.T, srv *Server) core.Project {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/projects", map[string]string{"name": "Residencia Cumbres", "owner_name": "Lic. Ana Ruiz"})
	mustStatus(t, rr, http.StatusCreated)
	return decode[core.Project](t, rr)
}

func uploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func budgetWorkbook(t *testing.T) []byte {
	t.Helper()
	rows := [][]any{
		{"PRESUPUESTO"}, {}, {"", "CATEGORIA", "CONCEPTO"},
		{"", "Obra negra", "Muros", "Block 15", "Blockera", "pza", 10, "MXN", 5, 50, 0, 0, 0.16, 8, 58, 1, 58, ""},
		{"", "Acabados", "Pisos", "Loseta", "", "m2", 2, "mxn", 10, 20, 0, 0, 0, 0, 100, 1, 100, ""},
	}
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		mustStatus(t, rr, http.StatusOK)
	}

	down := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db gone") }})
	rr := do(t, down, http.MethodGet, "/readyz", nil)
	mustStatus(t, rr, http.StatusServiceUnavailable)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/healthz", nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("a request id should be generated")
	}

	rr = do(t, srv, http.MethodGet, "/healthz", nil, "X-Request-ID", "abc-123")
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want the incoming one", got)
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/remesas/missing", nil)
	mustStatus(t, rr, http.StatusNotFound)
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode[map[string]any](t, rr)
	if body["error"] == "" {
		t.Error("error message missing")
	}
}

func TestProjectValidation(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/projects", map[string]string{"name": "  "})
	mustStatus(t, rr, http.StatusUnprocessableEntity)
	if body := decode[map[string]any](t, rr); body["field"] != "name" {
		t.Errorf("field = %v, want name", body["field"])
	}

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader("{"))
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	mustStatus(t, rr, http.StatusBadRequest)
}

func TestRemesaLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/projects/"+p.ID+"/remesas/next-number", nil)
	mustStatus(t, rr, http.StatusOK)
	if next := decode[map[string]int](t, rr); next["remesa_number"] != 1 {
		t.Errorf("next number = %v", next)
	}

	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/remesas",
		map[string]string{"date": "06/01/2025", "remesa_suffix": "MN"}, "X-User", "Arq. Treviño")
	mustStatus(t, rr, http.StatusCreated)
	r := decode[core.Remesa](t, rr)
	if r.Number != 1 || r.Status != core.StatusDraft || r.CreatedBy != "Arq. Treviño" {
		t.Fatalf("created = %+v", r)
	}
	if r.Date.Month() != time.January || r.Date.Day() != 6 {
		t.Errorf("date = %v, want 6 Jan (day first)", r.Date)
	}

	rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/send", nil)
	mustStatus(t, rr, http.StatusUnprocessableEntity)

	for _, amount := range []string{"1000", "500"} {
		rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/items", map[string]any{
			"section": "A", "contractor_name": "Aceros del Norte", "amount": amount, "vat_pct": "16",
		})
		mustStatus(t, rr, http.StatusCreated)
	}

	rr = do(t, srv, http.MethodGet, "/api/remesas/"+r.ID, nil)
	mustStatus(t, rr, http.StatusOK)
	detail := decode[services.RemesaDetail](t, rr)
	if len(detail.Items) != 2 || detail.Items[1].LineNumber != 2 {
		t.Fatalf("items = %+v", detail.Items)
	}
	if !detail.Total.Equal(decimalOf(t, "1740")) {
		t.Errorf("total = %s, want 1740", detail.Total)
	}

	rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/send", nil)
	mustStatus(t, rr, http.StatusOK)
	if sent := decode[core.Remesa](t, rr); sent.Status != core.StatusSent {
		t.Errorf("status = %s", sent.Status)
	}
	rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/send", nil)
	mustStatus(t, rr, http.StatusConflict)

	first := detail.Items[0].ID
	rr = do(t, srv, http.MethodPost, "/api/items/"+first+"/approve", nil)
	mustStatus(t, rr, http.StatusBadRequest)

	rr = do(t, srv, http.MethodPost, "/api/items/"+first+"/approve", nil, "X-User", "caja")
	mustStatus(t, rr, http.StatusOK)
	if it := decode[core.RemesaItem](t, rr); !it.Approved || it.ApprovedBy != "caja" {
		t.Errorf("approval = %+v", it.Approval)
	}
	rr = do(t, srv, http.MethodGet, "/api/remesas/"+r.ID, nil)
	if d := decode[services.RemesaDetail](t, rr); d.Status != core.StatusPartiallyPaid {
		t.Errorf("status = %s, want %s", d.Status, core.StatusPartiallyPaid)
	}

	rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/approve-all", nil, "X-User", "caja")
	mustStatus(t, rr, http.StatusOK)
	if d := decode[services.RemesaDetail](t, rr); d.Status != core.StatusPaid {
		t.Errorf("status = %s, want %s", d.Status, core.StatusPaid)
	}

	rr = do(t, srv, http.MethodPost, "/api/items/"+first+"/unapprove", nil)
	mustStatus(t, rr, http.StatusOK)
	rr = do(t, srv, http.MethodGet, "/api/remesas/"+r.ID, nil)
	if d := decode[services.RemesaDetail](t, rr); d.Status != core.StatusPartiallyPaid {
		t.Errorf("status after unapprove = %s", d.Status)
	}

	rr = do(t, srv, http.MethodDelete, "/api/remesas/"+r.ID, nil)
	mustStatus(t, rr, http.StatusNoContent)
	rr = do(t, srv, http.MethodGet, "/api/remesas/"+r.ID, nil)
	mustStatus(t, rr, http.StatusNotFound)
}

func TestReplaceItemsRenumbers(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)
	rr := do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/remesas", map[string]string{})
	mustStatus(t, rr, http.StatusCreated)
	r := decode[core.Remesa](t, rr)

	items := []map[string]any{
		{"section": "B", "contractor_name": "Raya", "amount": "1200"},
		{"section": "A", "contractor_name": "Aceros", "amount": "100", "vat_pct": "16"},
		{"section": "B", "contractor_name": "Caja chica", "amount": "300"},
	}
	rr = do(t, srv, http.MethodPut, "/api/remesas/"+r.ID+"/items", items)
	mustStatus(t, rr, http.StatusOK)
	d := decode[services.RemesaDetail](t, rr)
	if len(d.Items) != 3 {
		t.Fatalf("items = %d", len(d.Items))
	}
	if d.Items[0].Section != core.SectionTransfer || d.Items[2].LineNumber != 2 {
		t.Errorf("order = %+v", d.Items)
	}
	if !d.Checks.Total.Equal(decimalOf(t, "1500")) {
		t.Errorf("checks = %s", d.Checks.Total)
	}

	rr = do(t, srv, http.MethodPut, "/api/remesas/missing/items", items)
	mustStatus(t, rr, http.StatusNotFound)
}

func TestApprovePaymentDate(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)
	rr := do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/remesas", map[string]string{})
	mustStatus(t, rr, http.StatusCreated)
	r := decode[core.Remesa](t, rr)
	items := []map[string]any{
		{"section": "A", "contractor_name": "Aceros", "amount": "100", "vat_pct": "16"},
		{"section": "B", "contractor_name": "Raya", "amount": "1200"},
	}
	rr = do(t, srv, http.MethodPut, "/api/remesas/"+r.ID+"/items", items)
	mustStatus(t, rr, http.StatusOK)
	d := decode[services.RemesaDetail](t, rr)
	mustStatus(t, do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/send", nil), http.StatusOK)

	first := d.Items[0].ID
	rr = do(t, srv, http.MethodPost, "/api/items/"+first+"/approve?payment_date=someday", nil, "X-User", "caja")
	mustStatus(t, rr, http.StatusBadRequest)

	rr = do(t, srv, http.MethodPost, "/api/items/"+first+"/approve?payment_date=2025-01-15", nil, "X-User", "caja")
	mustStatus(t, rr, http.StatusOK)
	it := decode[core.RemesaItem](t, rr)
	want := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if it.ApprovedAt == nil || !it.ApprovedAt.Equal(want) {
		t.Errorf("approved at = %v, want %v", it.ApprovedAt, want)
	}

	rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/approve-all?payment_date=17/01/2025", nil, "X-User", "caja")
	mustStatus(t, rr, http.StatusOK)
	d = decode[services.RemesaDetail](t, rr)
	if d.Status != core.StatusPaid {
		t.Errorf("status = %s", d.Status)
	}
	for _, it := range d.Items {
		want := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
		if it.ID == first {
			want = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
		}
		if it.ApprovedAt == nil || !it.ApprovedAt.Equal(want) {
			t.Errorf("%s approved at = %v, want %v", it.ContractorName, it.ApprovedAt, want)
		}
	}
}

func TestReplaceItemsCannotApprove(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)
	rr := do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/remesas", map[string]string{})
	mustStatus(t, rr, http.StatusCreated)
	r := decode[core.Remesa](t, rr)

	items := []map[string]any{
		{"section": "A", "contractor_name": "Aceros", "amount": "100", "vat_pct": "16", "is_approved": true, "approved_by": "nadie"},
	}
	rr = do(t, srv, http.MethodPut, "/api/remesas/"+r.ID+"/items", items)
	mustStatus(t, rr, http.StatusOK)
	d := decode[services.RemesaDetail](t, rr)
	if d.Items[0].Approved || d.Items[0].ApprovedBy != "" {
		t.Errorf("client approval stored: %+v", d.Items[0].Approval)
	}
	if d.Status != core.StatusDraft {
		t.Errorf("status = %s", d.Status)
	}
}

func TestBudgetImportDryRunAndCommit(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)
	data := budgetWorkbook(t)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, uploadRequest(t, "/api/projects/"+p.ID+"/budget/import?dry_run=true", "presupuesto.xlsx", data))
	mustStatus(t, rr, http.StatusOK)
	preview := decode[services.BudgetPreview](t, rr)
	if len(preview.Items) != 2 || preview.Total != "158.00" {
		t.Errorf("preview = %d items, total %s", len(preview.Items), preview.Total)
	}

	rr = do(t, srv, http.MethodGet, "/api/projects/"+p.ID+"/budget", nil)
	if items := decode[[]core.BudgetItem](t, rr); len(items) != 0 {
		t.Errorf("dry run stored %d items", len(items))
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, uploadRequest(t, "/api/projects/"+p.ID+"/budget/import", "presupuesto.xlsx", data))
	mustStatus(t, rr, http.StatusCreated)
	if res := decode[services.ImportResult](t, rr); res.Imported != 2 || res.CategoriesCreated != 2 {
		t.Errorf("result = %+v", res)
	}

	rr = do(t, srv, http.MethodGet, "/api/projects/"+p.ID+"/budget-vs-paid", nil)
	mustStatus(t, rr, http.StatusOK)
}

func TestPaidByContractor(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/projects/"+p.ID+"/paid-by-contractor", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("empty report = %s", got)
	}

	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/remesas", map[string]string{})
	mustStatus(t, rr, http.StatusCreated)
	r := decode[core.Remesa](t, rr)
	items := []map[string]any{
		{"section": "A", "contractor_name": "Aceros", "amount": "100", "vat_pct": "16"},
		{"section": "A", "contractor_name": "Aceros", "amount": "200", "vat_pct": "16"},
		{"section": "B", "contractor_name": "Raya", "amount": "1200"},
	}
	mustStatus(t, do(t, srv, http.MethodPut, "/api/remesas/"+r.ID+"/items", items), http.StatusOK)
	mustStatus(t, do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/send", nil), http.StatusOK)
	mustStatus(t, do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/approve-all", nil, "X-User", "caja"), http.StatusOK)

	rr = do(t, srv, http.MethodGet, "/api/projects/"+p.ID+"/paid-by-contractor", nil)
	mustStatus(t, rr, http.StatusOK)
	totals := decode[[]core.ContractorTotal](t, rr)
	if len(totals) != 2 {
		t.Fatalf("totals = %+v", totals)
	}
	if totals[0].ContractorName != "Raya" || !totals[0].Total.Equal(decimalOf(t, "1200")) {
		t.Errorf("first = %+v", totals[0])
	}
	if totals[1].Count != 2 || !totals[1].VATAmount.Equal(decimalOf(t, "48")) || !totals[1].Total.Equal(decimalOf(t, "348")) {
		t.Errorf("second = %+v", totals[1])
	}

	rr = do(t, srv, http.MethodGet, "/api/projects/missing/paid-by-contractor", nil)
	mustStatus(t, rr, http.StatusNotFound)
}

func TestUploadErrors(t *testing.T) {
	srv := newTestServer(t, Options{MaxUploadBytes: 1024})
	p := createProject(t, srv)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, uploadRequest(t, "/api/projects/"+p.ID+"/budget/import", "big.xlsx", bytes.Repeat([]byte("x"), 4096)))
	mustStatus(t, rr, http.StatusRequestEntityTooLarge)

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, uploadRequest(t, "/api/projects/"+p.ID+"/budget/import", "notes.txt", []byte("not a workbook")))
	mustStatus(t, rr, http.StatusBadRequest)

	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/history/import?source=ledger", nil)
	mustStatus(t, rr, http.StatusServiceUnavailable)
}

func TestExportDownload(t *testing.T) {
	srv := newTestServer(t, Options{})
	p := createProject(t, srv)
	rr := do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/remesas", map[string]string{})
	r := decode[core.Remesa](t, rr)
	rr = do(t, srv, http.MethodPost, "/api/remesas/"+r.ID+"/items", map[string]any{"contractor_name": "Aceros", "amount": "100"})
	mustStatus(t, rr, http.StatusCreated)

	rr = do(t, srv, http.MethodGet, "/api/remesas/"+r.ID+"/export?budget=true", nil)
	mustStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, ".xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) != 1 {
		t.Errorf("sheets = %v", f.GetSheetList())
	}
}

func TestRateLimitWrites(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 2, CleanupInterval: time.Minute, WritesOnly: true}})

	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodPost, "/api/projects", map[string]string{"name": "Obra"})
		mustStatus(t, rr, http.StatusCreated)
	}
	rr := do(t, srv, http.MethodPost, "/api/projects", map[string]string{"name": "Obra"})
	mustStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}

	rr = do(t, srv, http.MethodGet, "/api/projects", nil)
	mustStatus(t, rr, http.StatusOK)
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/api/projects?next=javascript:alert(1)", nil)
	mustStatus(t, rr, http.StatusBadRequest)
	if srv.Metrics().TotalRequests == 0 {
		t.Error("trace metrics should count the request")
	}
}
