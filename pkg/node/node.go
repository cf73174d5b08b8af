// Package node implements one broker node: a member of a tree of nodes that
// own named topics, relay subscriptions and payloads across several hops and
// answer topology queries.
//
// All routing state of a running node is owned by a single event loop
// goroutine. Public methods post work to the loop and wait only for the loop
// to process it, never for the network; asynchronous results arrive through
// callbacks, which run one at a time on a dedicated dispatcher goroutine.
package node

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/config"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/link"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/persist"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
	"github.com/DeBrosOfficial/cogmesh/pkg/tlsutil"
	"github.com/DeBrosOfficial/cogmesh/pkg/workers"
)

const shutdownTimeout = 5 * time.Second

// Option customizes a Node.
type Option func(*Node)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *logging.ColoredLogger) Option {
	return func(n *Node) { n.logger = logger }
}

// WithStore makes the node keep persisted payloads in s instead of opening
// the configured backend. The node never closes an injected store, so it
// survives Stop/Start cycles.
func WithStore(s persist.Store) Option {
	return func(n *Node) { n.store = s }
}

// Node is one broker instance, identified by its selfId.
type Node struct {
	cfg    *config.Config
	selfID string
	logger *logging.ColoredLogger
	codecs *protocol.Registry
	store  persist.Store

	lifecycle sync.Mutex
	core      atomic.Pointer[core]
}

// New validates cfg and creates a stopped node.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("config", "config is required", nil)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.WithCode(errors.CodeConfigError, "invalid configuration", stderrors.Join(errs...))
	}

	codecs, err := protocol.NewRegistry()
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:    cfg,
		selfID: cfg.Node.ID,
		codecs: codecs,
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.logger == nil {
		logger, err := logging.New(logging.Options{
			Level:        cfg.Logging.Level,
			Format:       cfg.Logging.Format,
			OutputFile:   cfg.Logging.OutputFile,
			EnableColors: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		n.logger = logger
	}
	n.logger = n.logger.Named(n.selfID)

	return n, nil
}

// SelfID returns the node's identifier.
func (n *Node) SelfID() string { return n.selfID }

// Addr returns the listener's bound address, or "" when stopped.
func (n *Node) Addr() string {
	if c := n.core.Load(); c != nil {
		return c.server.Addr()
	}
	return ""
}

// Running reports whether Start succeeded and Stop has not been called since.
func (n *Node) Running() bool { return n.core.Load() != nil }

// Start binds the listener and, when a parent is configured, links to it.
// It fails with PORT_BIND_FAILURE when the port cannot be bound, with
// AUTH_FAILURE when the parent rejects the handshake and with LINK_DOWN when
// the parent is unreachable. A failed Start leaves nothing running.
func (n *Node) Start(ctx context.Context) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if n.core.Load() != nil {
		return errors.ErrAlreadyRunning
	}

	n.logger.ComponentInfo(logging.ComponentNode, "Starting node",
		zap.String("listen_addr", n.cfg.ListenAddr()),
		zap.String("parent_host", n.cfg.Node.ParentHost),
	)

	serverTLS, err := n.serverTLS()
	if err != nil {
		return err
	}

	c := newCore(n)
	c.server = link.NewServer(link.ServerConfig{
		SelfID:           n.selfID,
		Addr:             n.cfg.ListenAddr(),
		MaxConnections:   n.cfg.Node.MaxConnections,
		AcceptedTokens:   n.cfg.Security.AcceptedTokens,
		HandshakeTimeout: n.cfg.Link.HandshakeTimeout,
		Link:             link.OptionsFrom(n.cfg.Link),
		TLS:              serverTLS,
	}, n.codecs, c, n.logger)
	c.server.Router().Get(link.InfoPath, c.handleInfo)

	if err := c.server.Listen(); err != nil {
		n.logger.ComponentError(logging.ComponentNode, "Failed to bind listener", zap.Error(err))
		return err
	}

	c.store = n.store
	if c.store == nil {
		store, err := persist.Open(n.cfg.Persistence)
		if err != nil {
			_ = c.server.Close(ctx)
			return errors.WithCode(errors.CodeStorageError, "failed to open persistence store", err)
		}
		c.store = store
		c.ownsStore = true
	}

	c.pool = workers.New(n.cfg.Workers.Size, n.logger)
	c.disp = newDispatcher(n.logger)
	go c.run()

	if !n.cfg.IsRoot() {
		if err := c.linkParent(ctx); err != nil {
			n.logger.ComponentError(logging.ComponentNode, "Failed to link to parent",
				zap.String("parent_host", n.cfg.Node.ParentHost),
				zap.Error(err))
			c.shutdown()
			return err
		}
	}

	c.server.Serve()
	if n.cfg.Monitoring.Enabled {
		c.startMonitoring(n.cfg.Monitoring.Interval)
	}
	n.core.Store(c)

	n.logger.ComponentInfo(logging.ComponentNode, "Node started",
		zap.String("addr", c.server.Addr()),
		zap.Bool("root", n.cfg.IsRoot()),
	)
	return nil
}

// serverTLS returns the listener TLS config, or nil for plain ws://.
func (n *Node) serverTLS() (*tls.Config, error) {
	sc := n.cfg.Security
	switch {
	case sc.ACME.Enabled():
		cfg, _ := tlsutil.ACMEServerConfig(tlsutil.ACMEOptions{
			Domains:  sc.ACME.Domains,
			CacheDir: sc.ACME.CacheDir,
			Email:    sc.ACME.Email,
			Staging:  sc.ACME.Staging,
		})
		n.logger.ComponentInfo(logging.ComponentLink, "Let's Encrypt autocert configured",
			zap.Strings("domains", sc.ACME.Domains),
			zap.String("cache_dir", sc.ACME.CacheDir),
			zap.Bool("staging", sc.ACME.Staging))
		return cfg, nil
	case sc.TLSEnabled():
		cfg, err := tlsutil.ServerConfig(sc.TLSCertFile, sc.TLSKeyFile)
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigError, "failed to load TLS certificate", err)
		}
		return cfg, nil
	default:
		return nil, nil
	}
}

// Stop closes every link, fails every subscription and drops all topics.
// It is idempotent, and a stopped node may be started again.
func (n *Node) Stop() error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	c := n.core.Load()
	if c == nil {
		return nil
	}
	n.core.Store(nil)

	n.logger.ComponentInfo(logging.ComponentNode, "Stopping node")
	c.shutdown()
	n.logger.ComponentInfo(logging.ComponentNode, "Node stopped")
	return nil
}

// do runs fn on the loop of the running node.
func (n *Node) do(fn func(c *core) error) error {
	c := n.core.Load()
	if c == nil {
		return errors.ErrNotRunning
	}
	return c.call(func() error { return fn(c) })
}

// RegisterTopic creates a topic owned by this node. onSub, if non-nil, is
// called each time a subscriber attaches. It fails with DUPLICATE_TOPIC when
// the id is taken.
func (n *Node) RegisterTopic(id, typ string, onSub SubscriberHandler) error {
	return n.do(func(c *core) error {
		t, err := c.topics.Register(id, typ, onSub)
		if err != nil {
			return err
		}
		c.logger.ComponentDebug(logging.ComponentRegistry, "Topic registered",
			zap.String("topic", id),
			zap.String("type", typ))
		c.restore(t)
		return nil
	})
}

// GetSubscriberCount returns the number of Active subscriptions terminating
// on a local topic, local or forwarded. Unknown topics and stopped nodes
// report 0.
func (n *Node) GetSubscriberCount(topicID string) int {
	var count int
	_ = n.do(func(c *core) error {
		count = c.topics.Count(topicID)
		return nil
	})
	return count
}

// Subscribe attaches h to the topic path resolves to. Local topics attach
// immediately; remote ones start Pending until the chain is confirmed. If the
// topic holds a persisted payload, h receives it first. Resolution errors
// (NO_ROUTE, NO_PARENT, UNKNOWN_TOPIC for a local topic) are returned
// directly; later failures mark the subscription Failed.
//
// Payload data is shared between subscribers and must not be modified.
func (n *Node) Subscribe(path string, h PayloadHandler) error {
	if h == nil {
		return errors.NewValidationError("handler", "payload handler is required", nil)
	}
	return n.do(func(c *core) error { return c.subscribe(path, h) })
}

// Unsubscribe removes the oldest subscription made with exactly path. When a
// forwarded chain loses its last consumer it is torn down hop by hop. With
// no matching subscription it returns a NO_ROUTE error and changes nothing.
func (n *Node) Unsubscribe(path string) error {
	return n.do(func(c *core) error { return c.unsubscribe(path) })
}

// SubscriptionState reports the state of the oldest live subscription on
// path, or Failed when the last one failed. ok is false for paths never
// subscribed or fully unsubscribed.
func (n *Node) SubscriptionState(path string) (state SubState, ok bool) {
	_ = n.do(func(c *core) error {
		state, ok = c.subscriptionState(path)
		return nil
	})
	return state, ok
}

// Publish delivers data to every subscriber of a local topic. Subscribers
// that cannot be reached are pruned; the rest still get the payload, and the
// returned error carries LINK_DOWN. With persist the payload also replaces
// the topic's persisted slot.
func (n *Node) Publish(topicID string, data []byte, persist bool) error {
	data = clone(data)
	return n.do(func(c *core) error { return c.publish(topicID, data, n.selfID, persist) })
}

// PublishAt publishes on the topic path resolves to, possibly on another
// node. The error reflects local resolution and the first hop only.
func (n *Node) PublishAt(path string, data []byte) error {
	data = clone(data)
	return n.do(func(c *core) error { return c.publishAt(path, data, n.selfID) })
}

// Query describes the node (or topic) path resolves to. h is called exactly
// once; when the query cannot even leave this node the error is returned as
// well.
func (n *Node) Query(path string, h QueryHandler) error {
	if h == nil {
		return errors.NewValidationError("handler", "query handler is required", nil)
	}
	return n.do(func(c *core) error { return c.query(path, h) })
}

// Go runs task on the node's worker pool. then, if non-nil, receives the
// result on the callback goroutine, ordered with the node's other callbacks.
func (n *Node) Go(task workers.Task, then func(any, error)) error {
	c := n.core.Load()
	if c == nil {
		return errors.ErrNotRunning
	}
	return c.pool.Submit(task, func(result any, err error) {
		if then == nil {
			return
		}
		c.post(func() {
			c.disp.dispatch(func() { then(result, err) })
		})
	})
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
