// Package apierror defines the error taxonomy the router exposes over HTTP.
//
// Every failure a handler can surface maps to one of the codes below. The
// wire shape is always {"status": false, "error": {"code", "message"}} with
// the HTTP status carried by the code.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients.
const (
	CodeBadRequest            = "bad_request"
	CodeMissingParam          = "missing_param"
	CodeValidationError       = "validation_error"
	CodeGuardrailBlocked      = "guardrail_blocked"
	CodeNoProviderAvailable   = "no_provider_available"
	CodeStoreUnavailable      = "store_unavailable"
	CodeUpstreamTimeout       = "upstream_timeout"
	CodeUpstreamError         = "upstream_error"
	CodeApiTypeMismatch       = "api_type_mismatch"
	CodeMisconfiguredEndpoint = "misconfigured_endpoint"
	CodeInternal              = "internal"
)

// Error is a client-visible failure with a stable code and HTTP status.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *Error {
	return New(CodeBadRequest, http.StatusBadRequest, format, args...)
}

func MissingParam(name string) *Error {
	e := New(CodeMissingParam, http.StatusBadRequest, "required parameter %q is missing", name)
	e.Details = map[string]string{"param": name}
	return e
}

func ValidationError(field, reason string) *Error {
	e := New(CodeValidationError, http.StatusBadRequest, "invalid value for %q: %s", field, reason)
	e.Details = map[string]string{"field": field, "reason": reason}
	return e
}

func GuardrailBlocked(reason string) *Error {
	return New(CodeGuardrailBlocked, http.StatusUnavailableForLegalReasons, "request blocked by guardrail: %s", reason)
}

func NoProviderAvailable(model string) *Error {
	return New(CodeNoProviderAvailable, http.StatusServiceUnavailable, "no provider available for model %q", model)
}

func StoreUnavailable(err error) *Error {
	return New(CodeStoreUnavailable, http.StatusServiceUnavailable, "coordination store unreachable: %v", err)
}

func UpstreamTimeout(model string) *Error {
	return New(CodeUpstreamTimeout, http.StatusGatewayTimeout, "upstream call for model %q exceeded its deadline", model)
}

// UpstreamError keeps the upstream status in Details so operators can see
// what the backend actually returned.
func UpstreamError(status int, body string) *Error {
	e := New(CodeUpstreamError, http.StatusBadGateway, "upstream returned HTTP %d", status)
	e.Details = map[string]any{"upstream_status": status, "upstream_body": body}
	return e
}

func ApiTypeMismatch(endpoint, apiType string) *Error {
	return New(CodeApiTypeMismatch, http.StatusBadGateway, "endpoint %q cannot target api_type %q", endpoint, apiType)
}

func MisconfiguredEndpoint(format string, args ...any) *Error {
	return New(CodeMisconfiguredEndpoint, http.StatusInternalServerError, format, args...)
}

func Internal(err error) *Error {
	return New(CodeInternal, http.StatusInternalServerError, "internal error: %v", err)
}

// FromError normalizes any error into an *Error, mapping unknown errors to
// the internal catch-all.
func FromError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

type envelope struct {
	Status bool   `json:"status"`
	Error  *Error `json:"error"`
}

// Write emits err as the standard error envelope with its mapped status.
func Write(w http.ResponseWriter, err error) {
	ae := FromError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(envelope{Status: false, Error: ae})
}
