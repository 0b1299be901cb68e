// Package errors provides coded domain errors for the mission service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidInput marks malformed client input such as a bad email.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeUnauthorized marks an identity missing from the student directory.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodePermanentlyBanned marks an identity whose mission was rejected.
	CodePermanentlyBanned Code = "PERMANENTLY_BANNED"
	// CodeNotFound marks a reject request with no mission to reject.
	CodeNotFound Code = "NOT_FOUND"

	// CodeGenerationFailure marks a failed or malformed generator call.
	CodeGenerationFailure Code = "GENERATION_FAILURE"
	// CodeStoreFailure marks a failed directory or store call.
	CodeStoreFailure Code = "STORE_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized, CodePermanentlyBanned:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WireName is the value written to the "error" field of JSON error bodies.
func (c Code) WireName() string {
	switch c {
	case CodeInvalidInput:
		return "InvalidInput"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodePermanentlyBanned:
		return "Banned"
	case CodeNotFound:
		return "NotFound"
	case CodeGenerationFailure:
		return "GenerationFailure"
	case CodeStoreFailure:
		return "StoreFailure"
	default:
		return "InternalError"
	}
}

// Retryable reports whether a client may safely retry after this code.
// Infrastructure failures commit no partial state.
func (c Code) Retryable() bool {
	return c == CodeGenerationFailure || c == CodeStoreFailure
}
