package errors

import "errors"

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// hasCode reports whether any coded error in err's chain carries code.
func hasCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(Error); ok && e.Code() == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNoRoute checks if an error reports an unresolvable child segment.
func IsNoRoute(err error) bool {
	return hasCode(err, CodeNoRoute)
}

// IsNoParent checks if an error reports ".." applied at the root.
func IsNoParent(err error) bool {
	return hasCode(err, CodeNoParent)
}

// IsDuplicateTopic checks if an error reports a duplicate registration.
func IsDuplicateTopic(err error) bool {
	return hasCode(err, CodeDuplicateTopic)
}

// IsUnknownTopic checks if an error reports an unregistered topic.
func IsUnknownTopic(err error) bool {
	return hasCode(err, CodeUnknownTopic)
}

// IsLinkDown checks if an error reports a link failure or partial delivery.
func IsLinkDown(err error) bool {
	return hasCode(err, CodeLinkDown)
}

// IsPortBind checks if an error reports a listener bind failure.
func IsPortBind(err error) bool {
	return hasCode(err, CodePortBindFailure)
}

// IsAuthFailure checks if an error reports a rejected handshake.
func IsAuthFailure(err error) bool {
	return hasCode(err, CodeAuthFailure)
}

// IsNotRunning checks if an error reports a stopped node.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Code()
	}

	return CodeInternal
}

// GetErrorMessage extracts a human-readable message from an error.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Message()
	}

	return err.Error()
}
