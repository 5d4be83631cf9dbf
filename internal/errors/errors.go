// Package errors provides the structured error type used across treebind,
// with error categories, stable codes, and a recoverability flag that the
// engine uses to decide between logging-and-continuing and failing fast.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSync     ErrorType = "sync"
	ErrorTypeHost     ErrorType = "host"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeDocument ErrorType = "document"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeUnsupportedKind = "ERR_UNSUPPORTED_KIND"
	ErrCodeOrphanedNode    = "ERR_ORPHANED_NODE"
	ErrCodeSessionClosed   = "ERR_SESSION_CLOSED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeDocumentInvalid = "ERR_DOCUMENT_INVALID"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// BindError is a structured error type with context.
type BindError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]any
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *BindError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, "path:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BindError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *BindError) Is(target error) bool {
	var t *BindError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *BindError) WithContext(key string, value any) *BindError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value

	return e
}

// WithPath records the logical-tree path the error relates to.
func (e *BindError) WithPath(path string) *BindError {
	e.Path = path

	return e
}

// Error creation functions

// NewUnsupportedKindError reports a logical value that is neither a
// supported scalar nor a container. Recoverable: the value is skipped,
// never aborting the enclosing build or sync.
func NewUnsupportedKindError(key string, value any) *BindError {
	return &BindError{
		Type:        ErrorTypeSync,
		Code:        ErrCodeUnsupportedKind,
		Message:     fmt.Sprintf("unsupported value kind %T for key %q", value, key),
		Recoverable: true,
	}
}

// NewUnsupportedClassError reports an external node whose class has no
// logical representation. Recoverable: the node is skipped during adoption.
func NewUnsupportedClassError(name, class string) *BindError {
	return &BindError{
		Type:        ErrorTypeSync,
		Code:        ErrCodeUnsupportedKind,
		Message:     fmt.Sprintf("unsupported node class %q for %q", class, name),
		Recoverable: true,
	}
}

// NewOrphanedNodeError reports a notification for a node with no binding.
// Recoverable: logged and ignored.
func NewOrphanedNodeError(nodeName string) *BindError {
	return &BindError{
		Type:        ErrorTypeSync,
		Code:        ErrCodeOrphanedNode,
		Message:     "notification for unbound node: " + nodeName,
		Recoverable: true,
	}
}

// NewSessionClosedError reports an operation on a torn-down session.
func NewSessionClosedError(op string) *BindError {
	return &BindError{
		Type:        ErrorTypeSync,
		Code:        ErrCodeSessionClosed,
		Message:     op + " on closed session",
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *BindError {
	return &BindError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeConfigInvalid,
		Message:     message,
		Recoverable: false,
	}
}

// NewDocumentError creates a document load/store error.
func NewDocumentError(message string, cause error) *BindError {
	return &BindError{
		Type:        ErrorTypeDocument,
		Code:        ErrCodeDocumentInvalid,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *BindError {
	return &BindError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeInternalError,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var be *BindError
	if errors.As(err, &be) {
		return be.Recoverable
	}

	return false
}

// IsSessionClosed checks whether an error is a use-after-close error.
func IsSessionClosed(err error) bool {
	var be *BindError
	if errors.As(err, &be) {
		return be.Code == ErrCodeSessionClosed
	}

	return false
}
