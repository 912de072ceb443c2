package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"remesas/internal/core"
	"remesas/internal/services"
	"remesas/internal/spreadsheet"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		JSON(map[string]string{"id": "r1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Test") != "1" {
		t.Error("custom header not set")
	}
	if w.Body.String() != `{"id":"r1"}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_EncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(make(chan int)).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get remesa: %w", core.ErrNotFound), http.StatusNotFound},
		{"validation", &core.ValidationError{Field: "currency", Err: core.ErrInvalidCurrency}, http.StatusUnprocessableEntity},
		{"no items", core.ErrNoItems, http.StatusUnprocessableEntity},
		{"not draft", core.ErrRemesaNotDraft, http.StatusConflict},
		{"duplicate", core.ErrDuplicateRemesa, http.StatusConflict},
		{"bad request", badRequest("invalid JSON body", nil), http.StatusBadRequest},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"unreadable file", spreadsheet.ErrUnreadableFile, http.StatusBadRequest},
		{"no header", spreadsheet.ErrHeaderNotFound, http.StatusBadRequest},
		{"no ledger", services.ErrNoLedger, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorForHidesServerDetail(t *testing.T) {
	w := httptest.NewRecorder()
	errorFor(errors.New("sqlite: database is locked")).Write(w)

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Internal Server Error" {
		t.Errorf("Error = %q", body.Error)
	}
}

func TestErrorForPartial(t *testing.T) {
	w := httptest.NewRecorder()
	errorFor(&services.PartialError{Op: "approve all", Applied: 3, Total: 5, Err: core.ErrNotFound}).Write(w)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status code = %d, want the inner error's status", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Applied == nil || *body.Applied != 3 || body.Total == nil || *body.Total != 5 {
		t.Errorf("body = %+v", body)
	}
}

func TestErrorForField(t *testing.T) {
	w := httptest.NewRecorder()
	errorFor(fmt.Errorf("create item: %w", &core.ValidationError{Field: "section", Err: core.ErrInvalidSection})).Write(w)

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Field != "section" {
		t.Errorf("Field = %q", body.Field)
	}
}
