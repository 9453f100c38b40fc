package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the wire format
// stays the same across endpoints.
//
// CONSISTENT ERROR FORMAT:
// Every error response has the same shape:
//
//	{"error": "handle \"alice\" is already taken", "code": "conflict", "field": "handle"}
//
// "error" is the human-readable message (existing clients display it as is),
// "code" is machine-readable, "field" names the offending input when known.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/devtree/internal/apperror"
)

// maxBodyBytes caps JSON request bodies. Profiles are small.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
//
// CODES:
//
//	validation_error  400  malformed input; Field names it ("handle", "url", "body")
//	unauthorized      401  missing or invalid token, wrong credentials
//	forbidden         403  authenticated but not allowed
//	not_found         404  unknown handle or link position
//	conflict          409  handle or email already taken
//	rate_limited      429  written by middleware.Throttle, not by writeError
//	internal_error    500  anything else; details only in the server log
//
// Clients switch on Code; Error is for display and may change wording.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// MessageResponse is used by endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; once Encode
// calls w.Write, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation   → 400
//	apperror.ErrUnauthorized → 401
//	apperror.ErrForbidden    → 403
//	apperror.ErrNotFound     → 404
//	apperror.ErrConflict     → 409
//	anything else            → 500, logged, generic message
//
// errors.Is walks the wrap chain, so a service returning
// fmt.Errorf("...: %w", apperror.NotFound(...)) still maps to 404.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := http.StatusInternalServerError, "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, code = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status, code = http.StatusUnauthorized, "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status, code = http.StatusForbidden, "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status, code = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status, code = http.StatusConflict, "conflict"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error: appErr.Message,
				Code:  code,
				Field: appErr.Field,
			})
			return
		}
	}

	// NEVER expose internal error details: they may contain SQL or paths.
	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "an internal error occurred",
		Code:  "internal_error",
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored: the
// browser app PATCHes its whole user object, id and email included.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be absent.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, true)
}

// decode caps the body at maxBodyBytes and turns every decoding failure into
// a ValidationFailed on field "body", so handlers answer 400 without
// inspecting json errors. MaxBytesReader also tells the server to close the
// connection once the limit is hit, instead of reading the rest.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.ValidationFailed("body", fmt.Sprintf("request body must not exceed %d bytes", maxErr.Limit))
		}
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	return nil
}
