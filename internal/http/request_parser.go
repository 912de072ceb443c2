// Package http is the JSON API over the services.
//
// This file implements the request side: JSON bodies, query flags, dates
// and multipart uploads.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"remesas/internal/spreadsheet"
)

const maxJSONBytes = 1 << 20

// decodeJSON reads one JSON value from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body", nil)
		}
		return badRequest("invalid JSON body", err)
	}
	if dec.More() {
		return badRequest("invalid JSON body", errors.New("trailing data"))
	}
	return nil
}

// queryBool reads a boolean query flag. Absent or unparseable values are
// false.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return err == nil && v
}

// parseDate accepts the date forms the workbooks use: ISO, RFC 3339,
// day-first numeric and the long Spanish form. Empty input is the zero
// time.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, ok := spreadsheet.ParseDate(raw)
	if !ok {
		return time.Time{}, badRequest(fmt.Sprintf("invalid %s %q", field, raw), nil)
	}
	return t, nil
}

// approvalStamp reads the approver and the optional ?payment_date= of an
// approval request. No date means the payment is stamped now.
func approvalStamp(r *http.Request) (string, time.Time, error) {
	user, err := approver(r)
	if err != nil {
		return "", time.Time{}, err
	}
	paidOn, err := parseDate("payment_date", r.URL.Query().Get("payment_date"))
	if err != nil {
		return "", time.Time{}, err
	}
	return user, paidOn, nil
}

// approver is the person stamping approvals, from the X-User header.
func approver(r *http.Request) (string, error) {
	user := sanitizeInput(r.Header.Get("X-User"))
	if user == "" {
		return "", badRequest("missing X-User header", nil)
	}
	return user, nil
}

// uploadedFile reads the "file" part of a multipart upload, capped at max
// bytes, fully into memory; excelize needs random access anyway.
func uploadedFile(w http.ResponseWriter, r *http.Request, max int64) (*bytes.Reader, string, error) {
	if r.ContentLength > max {
		return nil, "", &http.MaxBytesError{Limit: max}
	}
	r.Body = http.MaxBytesReader(w, r.Body, max)
	if err := r.ParseMultipartForm(max); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", err
		}
		return nil, "", badRequest("invalid multipart upload", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", badRequest("missing file field", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", badRequest("read upload", err)
	}
	if len(data) == 0 {
		return nil, "", badRequest("empty file", nil)
	}
	return bytes.NewReader(data), header.Filename, nil
}
