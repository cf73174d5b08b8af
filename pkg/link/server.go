package link

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/DeBrosOfficial/cogmesh/pkg/config"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/httputil"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

// Routes served by every node.
const (
	LinkPath   = "/v1/link"
	HealthPath = "/v1/health"
	InfoPath   = "/v1/info"
)

// Handshake is what a dialing child presented.
type Handshake struct {
	NodeID     string
	Token      string
	Codec      string
	RemoteAddr string
}

// Acceptor decides whether a child may link.
type Acceptor interface {
	// Admit vets a handshake before the upgrade. On success hs.NodeID stays
	// reserved until commit is called, with the new link or with nil when
	// the upgrade failed. Errors are written back as HTTP statuses.
	Admit(hs Handshake) (commit func(*Link), err error)
}

// ServerConfig configures the listener.
type ServerConfig struct {
	SelfID           string
	Addr             string
	MaxConnections   int
	AcceptedTokens   []string
	HandshakeTimeout time.Duration
	Link             Options
	// TLS, when set, makes the listener serve wss://.
	TLS *tls.Config
}

// Server is the node's single listening endpoint.
type Server struct {
	cfg      ServerConfig
	codecs   *protocol.Registry
	acceptor Acceptor
	logger   *logging.ColoredLogger
	router   chi.Router
	upgrader websocket.Upgrader

	listener   net.Listener
	httpServer *http.Server
}

// NewServer builds the router. Nothing is bound until Listen.
func NewServer(cfg ServerConfig, codecs *protocol.Registry, acceptor Acceptor, logger *logging.ColoredLogger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		codecs:   codecs,
		acceptor: acceptor,
		logger:   logger,
		router:   chi.NewRouter(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// Children are nodes, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get(LinkPath, s.handleLink)
	s.router.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccessWithData(w, map[string]any{"node": cfg.SelfID})
	})

	return s
}

// Router exposes the router so the node can mount InfoPath and friends.
func (s *Server) Router() chi.Router { return s.router }

// Listen binds the configured address. Failures carry PORT_BIND_FAILURE.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.NewBindError(s.cfg.Addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.HandshakeTimeout,
	}
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	_, port, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	srv, ln := s.httpServer, s.listener
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.ComponentError(logging.ComponentLink, "Listener stopped", zap.Error(err))
		}
	}()
}

// Close stops accepting. Upgraded links are not affected; their owner closes
// them.
func (s *Server) Close(ctx context.Context) error {
	if s.httpServer == nil {
		if s.listener != nil {
			return s.listener.Close()
		}
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	_ = s.listener.Close()
	return err
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	hs := Handshake{
		NodeID:     r.Header.Get(httputil.HeaderNodeID),
		Token:      httputil.ExtractBearerToken(r),
		Codec:      r.Header.Get(httputil.HeaderCodec),
		RemoteAddr: r.RemoteAddr,
	}
	if hs.Codec == "" {
		hs.Codec = protocol.JSON().Name()
	}

	if err := config.CheckNodeID(hs.NodeID); err != nil {
		errors.WriteHTTPError(w, errors.NewValidationError(httputil.HeaderNodeID, err.Error(), hs.NodeID))
		return
	}
	if !httputil.TokenAccepted(s.cfg.AcceptedTokens, hs.Token) {
		s.logger.ComponentWarn(logging.ComponentLink, "Rejected child: bad token",
			zap.String("child", hs.NodeID),
			zap.String("remote_addr", hs.RemoteAddr))
		errors.WriteHTTPError(w, errors.NewAuthError(hs.NodeID, http.StatusUnauthorized, "bearer token not accepted"))
		return
	}
	codec := s.codecs.Get(hs.Codec)
	if codec == nil {
		errors.WriteHTTPError(w, errors.NewValidationError(httputil.HeaderCodec, "unsupported codec", hs.Codec))
		return
	}

	commit, err := s.acceptor.Admit(hs)
	if err != nil {
		s.logger.ComponentWarn(logging.ComponentLink, "Rejected child",
			zap.String("child", hs.NodeID),
			zap.Error(err))
		errors.WriteHTTPError(w, err)
		return
	}

	header := http.Header{}
	header.Set(httputil.HeaderNodeID, s.cfg.SelfID)
	header.Set(httputil.HeaderCodec, codec.Name())
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		commit(nil)
		s.logger.ComponentWarn(logging.ComponentLink, "Upgrade failed",
			zap.String("child", hs.NodeID),
			zap.Error(err))
		return
	}

	commit(New(conn, hs.NodeID, ToChild, codec, s.cfg.Link, s.logger))
}
