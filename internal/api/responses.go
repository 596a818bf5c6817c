package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	ErrBadRequest   = "bad_request"
	ErrInvalidBody  = "invalid_body"
	ErrTooLarge     = "payload_too_large"
	ErrNotFound     = "not_found"
	ErrDuplicate    = "duplicate"
	ErrUnavailable  = "unavailable"
	ErrInternal     = "internal"
	ErrUnauthorized = "unauthorized"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response carrying a machine-readable code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// dateLayout is accepted by QueryTime alongside RFC 3339.
const dateLayout = "2006-01-02"

// QueryTime extracts a time query parameter (RFC 3339 or YYYY-MM-DD).
// Returns ok=false if missing; err is set when present but unparseable.
func QueryTime(r *http.Request, name string) (t time.Time, ok bool, err error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid %s %q: want RFC 3339 or YYYY-MM-DD", name, v)
}
