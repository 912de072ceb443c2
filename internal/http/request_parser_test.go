package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Obra"}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"trailing data", `{"name":"a"}{"name":"b"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v nameRequest
			err := decodeJSON(httptest.NewRecorder(), req, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && statusFor(err) != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", statusFor(err))
			}
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", maxJSONBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var v nameRequest
	err := decodeJSON(httptest.NewRecorder(), req, &v)
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		t.Fatalf("expected MaxBytesError, got %v", err)
	}
}

func TestQueryBool(t *testing.T) {
	tests := map[string]bool{
		"/?dry_run=true": true,
		"/?dry_run=1":    true,
		"/?dry_run=no":   false,
		"/?dry_run=":     false,
		"/":              false,
	}
	for target, want := range tests {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if got := queryBool(req, "dry_run"); got != want {
			t.Errorf("queryBool(%q) = %v, want %v", target, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("date", "2025-01-06")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseDate = %v", got)
	}

	got, err = parseDate("date", "  ")
	if err != nil || !got.IsZero() {
		t.Errorf("empty date = %v, %v", got, err)
	}

	if _, err := parseDate("date", "mañana"); err == nil {
		t.Error("expected error for unparseable date")
	} else if !strings.Contains(err.Error(), "invalid date") {
		t.Errorf("error = %v", err)
	}
}

func TestApprover(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if _, err := approver(req); err == nil {
		t.Error("expected error without X-User")
	}

	req.Header.Set("X-User", "  caja\x07 ")
	user, err := approver(req)
	if err != nil {
		t.Fatal(err)
	}
	if user != "caja" {
		t.Errorf("approver = %q", user)
	}
}

func TestUploadedFile(t *testing.T) {
	req := uploadRequest(t, "/", "remesa.xlsx", []byte("PK data"))
	file, name, err := uploadedFile(httptest.NewRecorder(), req, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if name != "remesa.xlsx" || file.Len() != len("PK data") {
		t.Errorf("name = %q, len = %d", name, file.Len())
	}

	empty := uploadRequest(t, "/", "vacio.xlsx", nil)
	if _, _, err := uploadedFile(httptest.NewRecorder(), empty, 1<<20); statusFor(err) != http.StatusBadRequest {
		t.Errorf("empty upload err = %v", err)
	}

	plain := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=x"))
	plain.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, _, err := uploadedFile(httptest.NewRecorder(), plain, 1<<20); statusFor(err) != http.StatusBadRequest {
		t.Errorf("non multipart err = %v", err)
	}
}

func TestContentDisposition(t *testing.T) {
	if got := contentDisposition("Remesa No 05 Obra.xlsx"); got != `attachment; filename="Remesa No 05 Obra.xlsx"` {
		t.Errorf("contentDisposition = %q", got)
	}
	if got := contentDisposition("Remesa No 05 Peñasco.xlsx"); !strings.HasPrefix(got, "attachment; filename*=utf-8''") {
		t.Errorf("contentDisposition = %q", got)
	}
}
