package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"auth carries its own status", NewAuthError("p", http.StatusConflict, "duplicate child"), http.StatusConflict},
		{"auth default", NewAuthError("p", 0, ""), http.StatusUnauthorized},
		{"validation", NewValidationError("id", "empty", nil), http.StatusBadRequest},
		{"unknown topic", NewUnknownTopicError("t"), http.StatusNotFound},
		{"link down", NewLinkDownError("A", nil), http.StatusBadGateway},
		{"not running", ErrNotRunning, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, NewAuthError("child", http.StatusUnauthorized, "bearer token rejected"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	var body HTTPError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != CodeAuthFailure {
		t.Errorf("code = %q", body.Code)
	}

	decoded := DecodeHTTPError(rec.Code, rec.Body.Bytes())
	if decoded.Message != body.Message || decoded.Status != http.StatusUnauthorized {
		t.Errorf("DecodeHTTPError() = %+v", decoded)
	}
	if DecodeHTTPError(500, []byte("not json")).Message != "" {
		t.Error("non-JSON bodies should yield an empty message")
	}
}
