package node

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/config"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/link"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
	"github.com/DeBrosOfficial/cogmesh/pkg/tlsutil"
)

// peer is the loop's bookkeeping for one link.
type peer struct {
	link *link.Link
	// inbound are chains the remote opened on this node, by chain id.
	inbound map[string]*inbound
	// routes are chains this node opened toward the remote, by chain id.
	routes map[string]*route
	// queries are forwarded queries awaiting a result, by request id.
	queries map[string]*pendingQuery
}

func newPeer(l *link.Link) *peer {
	return &peer{
		link:    l,
		inbound: make(map[string]*inbound),
		routes:  make(map[string]*route),
		queries: make(map[string]*pendingQuery),
	}
}

func (p *peer) remote() string { return p.link.Remote() }

// linkParent dials the parent and installs the link before the listener
// starts serving.
// parentTLS returns the client TLS config for a wss:// parent, or nil.
func parentTLS(cfg *config.Config) (*tls.Config, error) {
	u, err := url.Parse(cfg.Node.ParentHost)
	if err != nil || u.Scheme != "wss" {
		return nil, nil
	}
	tc, err := tlsutil.ClientConfig(tlsutil.ClientOptions{
		CACertFile:     cfg.Security.CACertFile,
		TrustedDomains: cfg.Security.TrustedDomains,
	}, u.Hostname())
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigError, "failed to build parent TLS config", err)
	}
	return tc, nil
}

func (c *core) linkParent(ctx context.Context) error {
	cfg := c.n.cfg
	clientTLS, err := parentTLS(cfg)
	if err != nil {
		return err
	}
	l, err := link.Dial(ctx, link.DialConfig{
		ParentHost:       cfg.Node.ParentHost,
		SelfID:           c.selfID,
		Token:            cfg.Node.BearerToken,
		Codec:            cfg.Link.Codec,
		HandshakeTimeout: cfg.Link.HandshakeTimeout,
		Link:             link.OptionsFrom(cfg.Link),
		TLS:              clientTLS,
	}, c.n.codecs, c.logger)
	if err != nil {
		return err
	}

	err = c.call(func() error {
		p := newPeer(l)
		c.parent = p
		c.peers[l.ID()] = p
		l.Run(c.onFrame, c.onClose)
		return nil
	})
	if err != nil {
		_ = l.Close()
		return err
	}

	c.logger.ComponentInfo(logging.ComponentLink, "Linked to parent",
		zap.String("parent", l.Remote()),
		zap.String("codec", l.Codec().Name()))
	return nil
}

// Admit implements link.Acceptor. A selfId already linked, or mid-handshake,
// is refused with 409.
func (c *core) Admit(hs link.Handshake) (func(*link.Link), error) {
	err := c.call(func() error {
		if _, linked := c.children[hs.NodeID]; linked {
			return errors.NewAuthError(hs.NodeID, http.StatusConflict, "node id already linked")
		}
		if _, pending := c.reserved[hs.NodeID]; pending {
			return errors.NewAuthError(hs.NodeID, http.StatusConflict, "node id already linking")
		}
		c.reserved[hs.NodeID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(l *link.Link) {
		ok := c.post(func() {
			delete(c.reserved, hs.NodeID)
			if l == nil {
				return
			}
			if c.stopped {
				_ = l.Close()
				return
			}
			p := newPeer(l)
			c.children[hs.NodeID] = p
			c.peers[l.ID()] = p
			l.Run(c.onFrame, c.onClose)

			c.logger.ComponentInfo(logging.ComponentLink, "Child linked",
				zap.String("child", hs.NodeID),
				zap.String("codec", l.Codec().Name()),
				zap.String("remote_addr", hs.RemoteAddr))
		})
		if !ok && l != nil {
			_ = l.Close()
		}
	}, nil
}

func (c *core) onFrame(l *link.Link, f *protocol.Frame) {
	c.post(func() {
		p, ok := c.peers[l.ID()]
		if !ok {
			return
		}
		c.handleFrame(p, f)
	})
}

func (c *core) onClose(l *link.Link, err error) {
	c.post(func() { c.linkLost(l, err) })
}

func (c *core) handleFrame(p *peer, f *protocol.Frame) {
	switch f.Type {
	case protocol.FrameSubscribe:
		c.handleSubscribe(p, f)
	case protocol.FrameSubAck:
		c.handleSubAck(p, f)
	case protocol.FrameUnsubscribe:
		c.handleUnsubscribe(p, f)
	case protocol.FrameSubClosed:
		c.handleSubClosed(p, f)
	case protocol.FramePayload:
		c.handlePayload(p, f)
	case protocol.FramePublishAt:
		c.handlePublishAt(p, f)
	case protocol.FrameQuery:
		c.handleQuery(p, f)
	case protocol.FrameQueryResult:
		c.handleQueryResult(p, f)
	}
}

// send queues f on p. A send that finds the link closed prunes it right away
// instead of waiting for the read pump to report it.
func (c *core) send(p *peer, f *protocol.Frame) error {
	err := p.link.Send(f)
	if err != nil && !c.stopped && p.link.State() == link.Closed {
		c.linkLost(p.link, err)
	}
	return err
}

// linkLost removes a closed link and everything routed through it: chains
// this node opened over it fail, chains the remote opened here are released
// (decrementing topic counts) and queries waiting on it fail.
func (c *core) linkLost(l *link.Link, cause error) {
	p, ok := c.peers[l.ID()]
	if !ok {
		return
	}
	delete(c.peers, l.ID())
	if c.parent == p {
		c.parent = nil
	} else if c.children[l.Remote()] == p {
		delete(c.children, l.Remote())
	}
	_ = l.Close()

	c.logger.ComponentWarn(logging.ComponentLink, "Link lost",
		zap.String("remote", l.Remote()),
		zap.String("direction", l.Direction().String()),
		zap.Int("routes", len(p.routes)),
		zap.Int("inbound", len(p.inbound)),
		zap.Int("queries", len(p.queries)),
		zap.Error(cause))

	reason := errors.NewLinkDownError(l.Remote(), cause)
	for _, r := range p.routes {
		c.failRoute(r, errors.CodeLinkDown, reason.Error())
	}
	for _, in := range p.inbound {
		c.dropInbound(in, true)
	}
	for id, q := range p.queries {
		delete(p.queries, id)
		q.reply(failedQuery(q.path, reason))
	}
}
