// Package exception provides the error taxonomy of the import pipeline.
// Every error raised by the pipeline is classified into one of four kinds, which drive
// retry, dead-letter and row-error handling.
package exception

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Kind classifies an ImportError.
type Kind int

const (
	// KindUnknown is used for errors that carry no classification.
	KindUnknown Kind = iota
	// KindValidation marks a row-level, non-retryable failure. It is recorded as a row error.
	KindValidation
	// KindTransientInfra marks connectivity and timeout failures. Retryable.
	KindTransientInfra
	// KindConfiguration marks programming or setup faults (total set twice, job not found). Not retried.
	KindConfiguration
	// KindRejection marks a call shed by the circuit breaker or the bulkhead.
	KindRejection
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindTransientInfra:
		return "TransientInfraError"
	case KindConfiguration:
		return "ConfigurationError"
	case KindRejection:
		return "RejectionError"
	default:
		return "UnknownError"
	}
}

// Sentinel errors. They are wrapped by ImportError so that errors.Is keeps working.
var (
	ErrAlreadySet               = errors.New("AlreadySetError")
	ErrJobNotFound              = errors.New("JobNotFoundError")
	ErrCircuitOpen              = errors.New("CircuitOpenError")
	ErrBulkheadFull             = errors.New("BulkheadFullError")
	ErrOptimisticLockingFailure = errors.New("OptimisticLockingFailureException")
	ErrInvalidTransition        = errors.New("InvalidTransitionError")
)

// errorRegistry maps names used in configuration (retryable exception lists) to sentinel errors.
var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers an error prototype under name.
// Registered names can be referenced by the retry configuration and by IsErrorOfType.
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name is present in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// ImportError is the error type raised by pipeline components.
type ImportError struct {
	// Module indicates where the error occurred (e.g., "consumer", "jobstore", "dispatcher").
	Module string
	// Message is a concise description of the error.
	Message string
	// Kind is the classification of the error.
	Kind Kind
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string

	isRetryable bool
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewImportError creates a new ImportError. Only KindTransientInfra errors are retryable.
func NewImportError(module, message string, kind Kind, originalErr error) *ImportError {
	return &ImportError{
		Module:      module,
		Message:     message,
		Kind:        kind,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
		isRetryable: kind == KindTransientInfra,
	}
}

// NewImportErrorf creates a new ImportError using a format string.
// If the last argument is an error it is extracted as the wrapped original error.
//
// Example:
// NewImportErrorf("reader", KindTransientInfra, "failed to open %s", path, err)
func NewImportErrorf(module string, kind Kind, format string, a ...interface{}) *ImportError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return NewImportError(module, fmt.Sprintf(format, args...), kind, originalErr)
}

// NewValidationError creates a row-level validation error.
func NewValidationError(module, message string, originalErr error) *ImportError {
	return NewImportError(module, message, KindValidation, originalErr)
}

// NewTransientError creates a retryable infrastructure error.
func NewTransientError(module, message string, originalErr error) *ImportError {
	return NewImportError(module, message, KindTransientInfra, originalErr)
}

// NewConfigurationError creates a fatal, non-retryable error.
func NewConfigurationError(module, message string, originalErr error) *ImportError {
	return NewImportError(module, message, KindConfiguration, originalErr)
}

// NewRejectionError creates an error for a call shed by the breaker or bulkhead.
func NewRejectionError(module, message string, originalErr error) *ImportError {
	return NewImportError(module, message, KindRejection, originalErr)
}

// NewOptimisticLockingFailure wraps ErrOptimisticLockingFailure. A lost CAS race is transient:
// the caller may re-read and try again.
func NewOptimisticLockingFailure(module, message string, originalErr error) *ImportError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewTransientError(module, message, errToWrap)
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *ImportError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *ImportError) IsRetryable() bool {
	return e.isRetryable
}

// KindOf returns the classification of err. Unclassified errors are inspected for
// well-known transient causes (deadlines, network errors, broken connections).
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ie *ImportError
	if errors.As(err, &ie) && ie.Kind != KindUnknown {
		return ie.Kind
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrBulkheadFull) {
		return KindRejection
	}
	if errors.Is(err, ErrAlreadySet) || errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) {
		return KindConfiguration
	}
	if isTransientCause(err) {
		return KindTransientInfra
	}
	return KindUnknown
}

func isTransientCause(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, ErrOptimisticLockingFailure) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe")
}

// IsTemporary reports whether err should be retried.
// The ImportError flag takes precedence over heuristics.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var ie *ImportError
	if errors.As(err, &ie) && ie.Kind != KindUnknown {
		return ie.IsRetryable()
	}
	return KindOf(err) == KindTransientInfra
}

// IsRejection reports whether err was produced by the breaker or bulkhead.
func IsRejection(err error) bool {
	return KindOf(err) == KindRejection
}

// IsConfiguration reports whether err is a fatal configuration fault.
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsValidation reports whether err is a row-level validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsOptimisticLockingFailure reports whether err indicates a lost version check.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

// IsErrorOfType checks if an error matches a type name: a registered sentinel (errors.Is),
// a substring of a message in the chain, or a Go type name (e.g., "*net.OpError").
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(current.Error(), errorTypeName) {
			return true
		}
		errType := reflect.TypeOf(current)
		if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
			return true
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of an ImportError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		if ie.OriginalErr != nil {
			return fmt.Sprintf("%s: %v", ie.Message, ie.OriginalErr)
		}
		return ie.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType("AlreadySetError", ErrAlreadySet)
	RegisterErrorType("JobNotFoundError", ErrJobNotFound)
	RegisterErrorType("CircuitOpenError", ErrCircuitOpen)
	RegisterErrorType("BulkheadFullError", ErrBulkheadFull)
	RegisterErrorType("OptimisticLockingFailureException", ErrOptimisticLockingFailure)
	RegisterErrorType("InvalidTransitionError", ErrInvalidTransition)

	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("driver.ErrBadConn", driver.ErrBadConn)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
	RegisterErrorType("net.OpError", errors.New("net.OpError"))
}
