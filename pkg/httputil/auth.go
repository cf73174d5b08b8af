package httputil

import (
	"net/http"
	"strings"
)

// Link handshake headers.
const (
	HeaderAuthorization = "Authorization"
	HeaderNodeID        = "X-Node-Id"
	HeaderCodec         = "X-Link-Codec"
)

// ExtractBearerToken extracts a Bearer token from the Authorization header.
// Returns an empty string if no Bearer token is found.
func ExtractBearerToken(r *http.Request) string {
	return bearerFrom(r.Header.Get(HeaderAuthorization))
}

func bearerFrom(auth string) string {
	if auth == "" {
		return ""
	}

	lower := strings.ToLower(auth)
	if strings.HasPrefix(lower, "bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}

	return ""
}

// HandshakeHeader builds the headers a child presents when dialing its parent.
// An empty token sends no Authorization header.
func HandshakeHeader(selfID, token, codec string) http.Header {
	h := http.Header{}
	h.Set(HeaderNodeID, selfID)
	if codec != "" {
		h.Set(HeaderCodec, codec)
	}
	if token != "" {
		h.Set(HeaderAuthorization, "Bearer "+token)
	}
	return h
}

// TokenAccepted reports whether token is in accepted. An empty list accepts
// any token.
func TokenAccepted(accepted []string, token string) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, a := range accepted {
		if a == token {
			return true
		}
	}
	return false
}
