// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeValidation Code = "VALIDATION"

	// Key material errors
	CodeKeyImport Code = "KEY_IMPORT"

	// Disclosure token verification errors
	CodeTokenMalformed   Code = "TOKEN_MALFORMED"
	CodeUnknownSubject   Code = "UNKNOWN_SUBJECT"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeTokenExpired     Code = "TOKEN_EXPIRED"

	// Verification workflow errors
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeInvalidTransition Code = "INVALID_STATUS_TRANSITION"

	// Identity errors
	CodeIdentitySuspended Code = "IDENTITY_SUSPENDED"
	CodeInvalidDID        Code = "INVALID_DID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation,
		CodeTokenMalformed,
		CodeInvalidDID:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound,
		CodeUnknownSubject:
		return http.StatusNotFound
	case CodeInvalidTransition,
		CodeIdentitySuspended:
		return http.StatusConflict
	case CodeKeyImport,
		CodeSignatureInvalid,
		CodeTokenExpired:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
