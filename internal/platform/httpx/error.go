// Package httpx writes the storefront's JSON responses and error envelopes.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"finitefield.org/storefront/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
)

// Error is a machine-readable code, a shopper-safe message and the HTTP status to send.
// Details are merged into the top level of the envelope.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLength),
		Message: clip(message, maxMessageLength),
		Status:  status,
	}
}

// Shared envelopes.
var (
	ErrNotFound = NewError("not_found", "resource not found", http.StatusNotFound)
	ErrInternal = NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
)

// WithDetails returns a copy carrying details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// Error implements error.
func (e Error) Error() string { return e.Code + ": " + e.Message }

// Is matches another Error with the same code.
func (e Error) Is(target error) bool {
	other, ok := target.(Error)
	return ok && other.Code == e.Code
}

// Envelope is the JSON body written for e, with the request and trace ids from ctx.
// Details never overwrite the reserved keys.
func (e Error) Envelope(ctx context.Context) map[string]any {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := make(map[string]any, len(e.Details)+5)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = status

	requestID := requestctx.RequestID(ctx)
	if requestID == "" {
		requestID = middleware.GetReqID(ctx)
	}
	if requestID = clip(requestID, maxCodeLength); requestID != "" {
		body["request_id"] = requestID
	}
	if traceID := requestctx.TraceID(ctx); traceID != "" {
		body["trace_id"] = traceID
	}
	return body
}

// WriteError writes e's envelope with e's status.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, e.Envelope(ctx))
}

// WriteJSON encodes payload with status. Encoding failures after the header is sent are dropped.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// clip flattens line breaks and caps the value at limit bytes without splitting a rune.
func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !isRuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
