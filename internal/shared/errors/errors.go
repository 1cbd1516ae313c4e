package errors

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Error types for the failure classes the worker distinguishes
type ErrorType string

const (
	ErrorTypeFeed          ErrorType = "FEED_ERROR"
	ErrorTypeHandler       ErrorType = "HANDLER_ERROR"
	ErrorTypeRetention     ErrorType = "RETENTION_ERROR"
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeCheckpoint    ErrorType = "CHECKPOINT_ERROR"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

// Common worker errors
var (
	ErrMissingDocumentKey  = errors.New("change event has no document key _id")
	ErrMissingFullDocument = errors.New("insert event has no full document")
	ErrFeedClosed          = errors.New("change feed closed")
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrNothingDeleted      = errors.New("no outdated records were deleted")
)

// historyLostCode is returned by the server when a resume token has fallen off the oplog.
const historyLostCode = 286

// AppError represents a worker error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewFeedError wraps a change feed fault
func NewFeedError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeFeed, message).WithCause(cause)
}

// NewHandlerError wraps a failure to apply a single change event
func NewHandlerError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeHandler, message).WithCause(cause)
}

// NewRetentionError wraps a pruning batch fault
func NewRetentionError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeRetention, message).WithCause(cause)
}

// NewConfigurationError creates a fatal startup error
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, message).WithCause(ErrInvalidConfig)
}

// NewCheckpointError wraps a resume token persistence failure
func NewCheckpointError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeCheckpoint, message).WithCause(cause)
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errorType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsTransient reports whether err is a connectivity or timeout fault that is
// expected to clear on its own.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var selErr topology.ServerSelectionError
	if errors.As(err, &selErr) {
		return true
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return err != nil && mongo.IsDuplicateKeyError(err)
}

// IsHistoryLost reports whether the server rejected a resume token because the
// corresponding oplog entry no longer exists.
func IsHistoryLost(err error) bool {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorCode(historyLostCode)
	}
	return false
}
