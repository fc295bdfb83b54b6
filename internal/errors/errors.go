package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a promptbench error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrDuplicateKeyword ErrorCode = "DUPLICATE_KEYWORD" // 409
	ErrCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED" // 422
	ErrRemoteLimit      ErrorCode = "REMOTE_LIMIT"      // 422
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED" // 422
	ErrSuperseded       ErrorCode = "SUPERSEDED"        // 409
	ErrSyncFailure      ErrorCode = "SYNC_FAILURE"      // 502
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// Remote limit reasons reported in Details["reason"].
const (
	ReasonDuplicate = "duplicate"
	ReasonCapacity  = "capacity"
)

// BenchError represents a structured error with code, status, and details.
type BenchError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BenchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError names one field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *BenchError {
	return &BenchError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing draft, workspace or keyword.
func NewNotFound(kind, identifier string) *BenchError {
	return &BenchError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *BenchError {
	return &BenchError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewDuplicateKeyword creates a 409 error when a word already exists in a polarity collection.
func NewDuplicateKeyword(polarity, word string) *BenchError {
	return &BenchError{
		Code:    ErrDuplicateKeyword,
		Status:  409,
		Message: fmt.Sprintf("keyword %q already exists in %s keywords", word, polarity),
		Details: map[string]any{"polarity": polarity, "word": word},
	}
}

// NewCapacityExceeded creates a 422 error when a collection is full.
func NewCapacityExceeded(collection string, capacity int) *BenchError {
	return &BenchError{
		Code:    ErrCapacityExceeded,
		Status:  422,
		Message: fmt.Sprintf("%s is full (max %d)", collection, capacity),
		Details: map[string]any{"collection": collection, "capacity": capacity},
	}
}

// NewRemoteLimit creates a 422 error for a server-side duplicate or capacity rule.
// reason is ReasonDuplicate or ReasonCapacity.
func NewRemoteLimit(polarity, reason, msg string) *BenchError {
	return &BenchError{
		Code:    ErrRemoteLimit,
		Status:  422,
		Message: msg,
		Details: map[string]any{"polarity": polarity, "reason": reason},
	}
}

// NewValidation creates a 422 error listing every missing or invalid field.
func NewValidation(fields []FieldError) *BenchError {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	return &BenchError{
		Code:    ErrValidationFailed,
		Status:  422,
		Message: fmt.Sprintf("validation failed: %s", strings.Join(names, ", ")),
		Details: map[string]any{"fields": fields},
	}
}

// NewSuperseded creates a 409 error for a result dropped because a newer call started.
func NewSuperseded(op string) *BenchError {
	return &BenchError{
		Code:    ErrSuperseded,
		Status:  409,
		Message: fmt.Sprintf("%s superseded by a newer request", op),
	}
}

// NewSyncFailure wraps a transient failure of a sync or save channel.
func NewSyncFailure(channel string, err error) *BenchError {
	msg := channel + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", channel, err)
	}
	return &BenchError{
		Code:    ErrSyncFailure,
		Status:  502,
		Message: msg,
		Details: map[string]any{"channel": channel},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *BenchError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BenchError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a BenchError with the given code.
func Is(err error, code ErrorCode) bool {
	var bErr *BenchError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// Code returns the code of the BenchError err wraps, or "" for other errors.
func Code(err error) ErrorCode {
	var bErr *BenchError
	if stderrors.As(err, &bErr) {
		return bErr.Code
	}
	return ""
}

// Fields returns the field errors carried by a VALIDATION_FAILED error.
func Fields(err error) []FieldError {
	var bErr *BenchError
	if !stderrors.As(err, &bErr) || bErr.Code != ErrValidationFailed {
		return nil
	}
	fields, _ := bErr.Details["fields"].([]FieldError)
	return fields
}

// Notice returns the short user-facing message for err.
// Remote duplicate/capacity rules read the same as their local counterparts.
func Notice(err error) string {
	var bErr *BenchError
	if !stderrors.As(err, &bErr) {
		return "something went wrong"
	}
	switch bErr.Code {
	case ErrDuplicateKeyword:
		return duplicateNotice(bErr.Details["polarity"])
	case ErrCapacityExceeded:
		return capacityNotice(bErr.Details["collection"])
	case ErrRemoteLimit:
		if bErr.Details["reason"] == ReasonDuplicate {
			return duplicateNotice(bErr.Details["polarity"])
		}
		return capacityNotice(bErr.Details["polarity"])
	case ErrSyncFailure:
		return "changes could not be synced; they will be retried on your next edit"
	case ErrInternal:
		return "something went wrong"
	default:
		return bErr.Message
	}
}

func duplicateNotice(polarity any) string {
	return fmt.Sprintf("this keyword is already in the %v list", polarity)
}

func capacityNotice(collection any) string {
	return fmt.Sprintf("the %v list is full", collection)
}
