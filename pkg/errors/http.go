package errors

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code for an error.
// It maps error codes to appropriate HTTP status codes.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var authErr *AuthError
	if As(err, &authErr) && authErr.StatusCode != 0 {
		return authErr.StatusCode
	}

	return codeToHTTPStatus(GetErrorCode(err))
}

// codeToHTTPStatus maps error codes to HTTP status codes.
func codeToHTTPStatus(code string) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeValidation, CodeConfigError, CodeSerializationError:
		return http.StatusBadRequest
	case CodeAuthFailure:
		return http.StatusUnauthorized
	case CodeNoRoute, CodeUnknownTopic:
		return http.StatusNotFound
	case CodeDuplicateTopic:
		return http.StatusConflict
	case CodeNoParent:
		return http.StatusUnprocessableEntity
	case CodeLinkDown:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts an error to an HTTPError.
func ToHTTPError(err error) *HTTPError {
	if err == nil {
		return &HTTPError{
			Status:  http.StatusOK,
			Code:    CodeOK,
			Message: "success",
		}
	}

	return &HTTPError{
		Status:  StatusCode(err),
		Code:    GetErrorCode(err),
		Message: GetErrorMessage(err),
	}
}

// WriteHTTPError writes an error response as JSON.
func WriteHTTPError(w http.ResponseWriter, err error) {
	httpErr := ToHTTPError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Status)

	_ = json.NewEncoder(w).Encode(httpErr)
}

// DecodeHTTPError reads an error body written by WriteHTTPError.
// A body that is not an HTTPError yields an empty message.
func DecodeHTTPError(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{Status: status}
	if err := json.Unmarshal(body, httpErr); err != nil {
		httpErr.Code = ""
		httpErr.Message = ""
	}
	return httpErr
}
