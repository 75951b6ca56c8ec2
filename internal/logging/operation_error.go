package logging

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how it should be reported to the caller.
type Kind int

const (
	// KindUnexpected covers any failure without a more specific kind.
	KindUnexpected Kind = iota
	// KindValidation marks a malformed or incomplete request.
	KindValidation
	// KindDownload marks an image that could not be downloaded.
	KindDownload
	// KindExternalService marks a failure reported by the label detection service.
	KindExternalService
)

// String returns the metric/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDownload:
		return "download"
	case KindExternalService:
		return "external_service"
	default:
		return "unexpected"
	}
}

// OperationError annotates an error with operation metadata.
type OperationError struct {
	Operation string
	RequestID string
	Kind      Kind
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps an error with structured context about where it occurred.
// The kind is inherited from err when it already carries one.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Kind: KindOf(err), Err: err}
}

// NewKindError wraps an error and tags it with an explicit kind.
func NewKindError(kind Kind, operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Kind: kind, Err: err}
}

// KindOf reports the kind of the outermost OperationError in err's chain.
func KindOf(err error) Kind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUnexpected
}

// Cause returns the innermost error that is not an OperationError, which is the
// text callers see without operation prefixes.
func Cause(err error) error {
	for {
		var opErr *OperationError
		if !errors.As(err, &opErr) || opErr.Err == nil {
			return err
		}
		err = opErr.Err
	}
}
