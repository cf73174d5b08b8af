package link

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/httputil"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

// DialConfig describes the parent to link to.
type DialConfig struct {
	ParentHost       string
	SelfID           string
	Token            string
	Codec            string
	HandshakeTimeout time.Duration
	Link             Options
	// TLS is used for wss:// parents.
	TLS *tls.Config
}

// LinkURL returns the link endpoint of a parent host URL.
func LinkURL(parentHost string) (string, error) {
	u, err := url.Parse(parentHost)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("parent host must be a ws:// or wss:// URL, got %q", parentHost)
	}
	u.Path = strings.TrimRight(u.Path, "/") + LinkPath
	return u.String(), nil
}

// Dial links to the parent. A handshake the parent refuses yields an
// AUTH_FAILURE error; an unreachable parent yields LINK_DOWN.
func Dial(ctx context.Context, cfg DialConfig, codecs *protocol.Registry, logger *logging.ColoredLogger) (*Link, error) {
	target, err := LinkURL(cfg.ParentHost)
	if err != nil {
		return nil, errors.NewValidationError("node.parent_host", err.Error(), cfg.ParentHost)
	}
	codec := codecs.Get(cfg.Codec)
	if codec == nil {
		return nil, errors.NewValidationError("link.codec", "unsupported codec", cfg.Codec)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		TLSClientConfig:  cfg.TLS,
	}

	conn, resp, err := dialer.DialContext(ctx, target, httputil.HandshakeHeader(cfg.SelfID, cfg.Token, codec.Name()))
	if err != nil {
		if resp == nil {
			return nil, errors.NewLinkDownError(cfg.ParentHost, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		rejected := errors.DecodeHTTPError(resp.StatusCode, body)

		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
			return nil, errors.NewAuthError(cfg.ParentHost, resp.StatusCode, rejected.Message)
		default:
			return nil, errors.NewLinkDownError(cfg.ParentHost,
				fmt.Errorf("handshake status %d: %w", resp.StatusCode, err))
		}
	}

	parentID := resp.Header.Get(httputil.HeaderNodeID)
	return New(conn, parentID, ToParent, codec, cfg.Link, logger), nil
}
