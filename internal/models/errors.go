package models

// ErrorType identifies the category of error that ended a trial.
type ErrorType string

const (
	// Prerequisite phase
	ErrWriteFailed  ErrorType = "write_failed"
	ErrDeleteFailed ErrorType = "delete_failed"

	// Transport
	ErrTransport         ErrorType = "transport_error"
	ErrMalformedResponse ErrorType = "malformed_response"

	// Polling phase
	ErrConvergenceTimeout   ErrorType = "convergence_timeout"
	ErrVerificationMismatch ErrorType = "verification_mismatch"

	// Run control
	ErrCancelled ErrorType = "cancelled"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)
