package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for quick checks
var (
	// ErrNotRunning is returned by node operations issued before Start or after Stop.
	ErrNotRunning = &BaseError{code: CodeUnavailable, message: "node is not running"}

	// ErrAlreadyRunning is returned when Start is called on a running node.
	ErrAlreadyRunning = errors.New("node is already running")

	// ErrLinkClosed is returned when a frame is sent on a closed link.
	ErrLinkClosed = &BaseError{code: CodeLinkDown, message: "link closed"}

	// ErrQueueFull is returned when a link's outbound queue cannot take another frame.
	ErrQueueFull = &BaseError{code: CodeLinkDown, message: "link outbound queue full"}
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// RouteError reports a path that cannot be resolved from the current node.
type RouteError struct {
	*BaseError
	Path    string
	Segment string
}

// NewNoRouteError creates an error for a segment that names no live child.
func NewNoRouteError(path, segment string) *RouteError {
	message := "no route"
	if segment != "" {
		message = fmt.Sprintf("no route: no child %q", segment)
	}
	return &RouteError{
		BaseError: &BaseError{
			code:    CodeNoRoute,
			message: message,
		},
		Path:    path,
		Segment: segment,
	}
}

// NewNoParentError creates an error for ".." applied at the root.
func NewNoParentError(path string) *RouteError {
	return &RouteError{
		BaseError: &BaseError{
			code:    CodeNoParent,
			message: "no parent: node is the root",
		},
		Path:    path,
		Segment: "..",
	}
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (path %q)", e.message, e.Path)
	}
	return e.message
}

// TopicError represents a registry failure for one topic.
type TopicError struct {
	*BaseError
	Topic string
}

// NewDuplicateTopicError creates an error for a topic registered twice.
func NewDuplicateTopicError(topic string) *TopicError {
	return &TopicError{
		BaseError: &BaseError{
			code:    CodeDuplicateTopic,
			message: fmt.Sprintf("topic '%s' already registered", topic),
		},
		Topic: topic,
	}
}

// NewUnknownTopicError creates an error for a topic that is not registered.
func NewUnknownTopicError(topic string) *TopicError {
	return &TopicError{
		BaseError: &BaseError{
			code:    CodeUnknownTopic,
			message: fmt.Sprintf("topic '%s' not registered", topic),
		},
		Topic: topic,
	}
}

// LinkError represents a network failure on one link.
type LinkError struct {
	*BaseError
	Remote string
}

// NewLinkDownError creates a link failure error.
func NewLinkDownError(remote string, cause error) *LinkError {
	message := "link down"
	if remote != "" {
		message = fmt.Sprintf("link to '%s' down", remote)
	}
	return &LinkError{
		BaseError: &BaseError{
			code:    CodeLinkDown,
			message: message,
			cause:   cause,
		},
		Remote: remote,
	}
}

// DeliveryError reports a publish that could not reach every known subscriber.
// The reachable subscribers were still delivered to.
type DeliveryError struct {
	*BaseError
	Topic     string
	Delivered int
	Failed    int
}

// NewDeliveryError creates a partial delivery error.
func NewDeliveryError(topic string, delivered, failed int) *DeliveryError {
	return &DeliveryError{
		BaseError: &BaseError{
			code:    CodeLinkDown,
			message: fmt.Sprintf("publish on '%s' reached %d of %d subscribers", topic, delivered, delivered+failed),
		},
		Topic:     topic,
		Delivered: delivered,
		Failed:    failed,
	}
}

// BindError represents a listener that could not be opened.
type BindError struct {
	*BaseError
	Addr string
}

// NewBindError creates a port bind failure.
func NewBindError(addr string, cause error) *BindError {
	return &BindError{
		BaseError: &BaseError{
			code:    CodePortBindFailure,
			message: fmt.Sprintf("cannot bind %s", addr),
			cause:   cause,
		},
		Addr: addr,
	}
}

// AuthError represents a handshake the parent rejected.
type AuthError struct {
	*BaseError
	Remote     string
	StatusCode int
}

// NewAuthError creates a handshake rejection error.
func NewAuthError(remote string, statusCode int, reason string) *AuthError {
	message := fmt.Sprintf("handshake with %s rejected (status %d)", remote, statusCode)
	if reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	return &AuthError{
		BaseError: &BaseError{
			code:    CodeAuthFailure,
			message: message,
		},
		Remote:     remote,
		StatusCode: statusCode,
	}
}

// InternalError wraps a failure that carries no broker code.
type InternalError struct {
	*BaseError
}

// WithCode creates a coded error wrapping cause.
func WithCode(code, message string, cause error) error {
	return &BaseError{
		code:    code,
		message: message,
		cause:   cause,
	}
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds the cause chain. Otherwise, it creates an InternalError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var e Error
	if errors.As(err, &e) {
		return &BaseError{
			code:    e.Code(),
			message: message,
			cause:   err,
		}
	}

	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   err,
		},
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
	}
}
