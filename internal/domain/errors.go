package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeMalformedDocument ErrorType = "MalformedDocument"
	ErrorTypeImageDecode       ErrorType = "ImageDecodeError"
	ErrorTypeBlocked           ErrorType = "AnnotationBlocked"
	ErrorTypeTransient         ErrorType = "AnnotationTransient"
	ErrorTypeFailed            ErrorType = "AnnotationFailed"
	ErrorTypeUnsupportedKind   ErrorType = "UnsupportedDocumentKind"
	ErrorTypeConfig            ErrorType = "ConfigError"
	ErrorTypeIO                ErrorType = "IOError"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Reason is the human-readable cause without the type prefix. It is what
// ends up in Blocked and Failed outcomes.
func (e *DomainError) Reason() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func MalformedDocumentError(message string, err error) *DomainError {
	return NewError(ErrorTypeMalformedDocument, message, err)
}

func ImageDecodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeImageDecode, message, err)
}

func BlockedError(reason string) *DomainError {
	return NewError(ErrorTypeBlocked, reason, nil)
}

func TransientError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransient, message, err)
}

func PermanentError(message string, err error) *DomainError {
	return NewError(ErrorTypeFailed, message, err)
}

func UnsupportedKindError(kind string) *DomainError {
	return NewError(ErrorTypeUnsupportedKind, fmt.Sprintf("unsupported document kind %q", kind), nil)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// IsType reports whether any error in err's chain is a DomainError of type t.
func IsType(err error, t ErrorType) bool {
	var de *DomainError
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == t {
			return true
		}
		err = de.Err
	}
	return false
}

// TypeOf returns the type of the outermost DomainError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type, true
	}
	return "", false
}

// ReasonOf returns the outcome reason for err.
func ReasonOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Reason()
	}
	return err.Error()
}
