package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request failure. Each kind maps to exactly one HTTP status.
type Kind string

const (
	KindMissingCredential       Kind = "MISSING_CREDENTIAL"
	KindInvalidCredential       Kind = "INVALID_CREDENTIAL"
	KindMissingTenantIdentifier Kind = "MISSING_TENANT_IDENTIFIER"
	KindTenantNotFound          Kind = "TENANT_NOT_FOUND"
	KindUserNotFound            Kind = "USER_NOT_FOUND"
	KindInsufficientPermission  Kind = "INSUFFICIENT_PERMISSION"
	KindSchemaConnectionFailure Kind = "SCHEMA_CONNECTION_FAILURE"
	KindInvalidRequest          Kind = "INVALID_REQUEST"
	KindInternal                Kind = "INTERNAL_ERROR"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindMissingCredential, KindInvalidCredential:
		return http.StatusUnauthorized
	case KindMissingTenantIdentifier, KindInvalidRequest:
		return http.StatusBadRequest
	case KindTenantNotFound, KindUserNotFound:
		return http.StatusNotFound
	case KindInsufficientPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a terminal request failure. Message is safe to show to callers;
// Cause carries internal detail and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that keeps cause for logging and errors.Is checks.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Response is the JSON body written for failed requests.
type Response struct {
	ErrorCode Kind   `json:"error_code"`
	Message   string `json:"message"`
}

// Write renders err as a JSON error response. Errors outside the taxonomy are
// reported as a generic internal error.
func Write(w http.ResponseWriter, err error) {
	resp := Response{ErrorCode: KindInternal, Message: "internal server error"}

	var appErr *Error
	if errors.As(err, &appErr) {
		resp.ErrorCode = appErr.Kind
		resp.Message = appErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.ErrorCode.Status())
	json.NewEncoder(w).Encode(resp)
}
