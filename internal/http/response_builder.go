// Package http is the JSON API over the services.
//
// This file holds the fluent response builder and the mapping from
// service errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"remesas/internal/core"
	applog "remesas/internal/log"
	"remesas/internal/services"
	"remesas/internal/spreadsheet"
)

// ResponseBuilder provides a fluent API for JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// NewResponse creates a builder with a 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the body. An encoding failure turns the response
// into a 500.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.err = err
		return b
	}
	b.headers["Content-Type"] = "application/json; charset=utf-8"
	b.body = data
	return b
}

// Body sets raw bytes with their content type.
func (b *ResponseBuilder) Body(contentType string, content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.body = content
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		http.Error(w, `{"error":"response encoding failed"}`, http.StatusInternalServerError)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Applied *int   `json:"applied,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// requestError is a malformed request detected before reaching a service.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error { return &requestError{msg: msg, err: err} }

// statusFor maps an error from the services to an HTTP status.
func statusFor(err error) int {
	var (
		ve  *core.ValidationError
		re  *requestError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &re):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRemesaNotDraft), errors.Is(err, core.ErrDuplicateRemesa):
		return http.StatusConflict
	case errors.As(err, &ve), errors.Is(err, core.ErrNoItems):
		return http.StatusUnprocessableEntity
	case errors.Is(err, spreadsheet.ErrUnreadableFile), errors.Is(err, spreadsheet.ErrHeaderNotFound):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoLedger):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorFor builds the response for err. Server errors keep their detail
// in the log only.
func errorFor(err error) *ResponseBuilder {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if status >= 500 && status != http.StatusServiceUnavailable {
		body.Error = http.StatusText(status)
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	var pe *services.PartialError
	if errors.As(err, &pe) {
		body.Applied, body.Total = &pe.Applied, &pe.Total
	}
	return NewResponse().Status(status).JSON(body)
}

// writeError logs err against the request and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	status := statusFor(err)
	if status >= 500 {
		fields := applog.NewFields()
		fields[applog.FieldStatusCode] = status
		applog.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, applog.ComponentHTTP, op, fields)
	} else {
		logger.WithComponent(applog.ComponentHTTP).DebugContext(ctx, "Request rejected",
			applog.FieldOperation, op, applog.FieldError, err, applog.FieldStatusCode, status)
	}
	errorFor(err).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).JSON(v).Write(w)
}
