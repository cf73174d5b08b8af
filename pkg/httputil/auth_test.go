package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "valid bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "case insensitive", header: "bearer xyz789", want: "xyz789"},
		{name: "with extra spaces", header: "Bearer   token-with-spaces  ", want: "token-with-spaces"},
		{name: "no bearer scheme", header: "Basic abc123", want: ""},
		{name: "empty header", header: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractBearerToken(req))
		})
	}
}

func TestHandshakeHeader(t *testing.T) {
	h := HandshakeHeader("B", "secret", "cbor")
	assert.Equal(t, "B", h.Get(HeaderNodeID))
	assert.Equal(t, "cbor", h.Get(HeaderCodec))

	req := httptest.NewRequest(http.MethodGet, "/v1/link", nil)
	req.Header = h
	assert.Equal(t, "secret", ExtractBearerToken(req))

	h = HandshakeHeader("B", "", "")
	assert.Empty(t, h.Get(HeaderAuthorization))
	assert.Empty(t, h.Get(HeaderCodec))
}

func TestTokenAccepted(t *testing.T) {
	assert.True(t, TokenAccepted(nil, "anything"))
	assert.True(t, TokenAccepted([]string{"a", "b"}, "b"))
	assert.False(t, TokenAccepted([]string{"a"}, "b"))
	assert.False(t, TokenAccepted([]string{"a"}, ""))
}
