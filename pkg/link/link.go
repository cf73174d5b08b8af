// Package link carries protocol frames between a node and its parent or
// children over websockets.
//
// A Link owns two goroutines: a read pump that hands decoded frames to the
// node and a write pump that drains a bounded outbound queue. Neither touches
// node state; the node's callbacks are expected to post into its own loop.
package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/config"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

// State is the lifecycle stage of a link.
type State int32

const (
	// Connecting links have completed the handshake but are not pumping yet.
	Connecting State = iota
	// Open links carry frames in both directions.
	Open
	// Closed links are gone for good; there is no reconnection.
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Direction tells which side of the tree the remote node is on.
type Direction int

const (
	// ToParent links were dialed by this node.
	ToParent Direction = iota
	// ToChild links were accepted by this node's listener.
	ToChild
)

func (d Direction) String() string {
	if d == ToChild {
		return "child"
	}
	return "parent"
}

// Options tunes a link's pumps.
type Options struct {
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
	OutboundQueue int
}

// OptionsFrom converts link configuration.
func OptionsFrom(cfg config.LinkConfig) Options {
	return Options{
		WriteTimeout:  cfg.WriteTimeout,
		PingInterval:  cfg.PingInterval,
		PongWait:      cfg.PongWait,
		MaxFrameBytes: cfg.MaxFrameBytes,
		OutboundQueue: cfg.OutboundQueue,
	}
}

func (o Options) withDefaults() Options {
	def := OptionsFrom(config.DefaultConfig().Link)
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = def.MaxFrameBytes
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = def.OutboundQueue
	}
	return o
}

// FrameHandler receives each decoded frame, in arrival order.
type FrameHandler func(l *Link, f *protocol.Frame)

// CloseHandler is called once when a running link closes, after the last
// frame was handed to the FrameHandler.
type CloseHandler func(l *Link, err error)

// Link is one websocket connection to the parent or a child.
type Link struct {
	id     string
	remote string
	dir    Direction
	conn   *websocket.Conn
	codec  protocol.Codec
	opts   Options
	logger *logging.ColoredLogger

	out   chan []byte
	done  chan struct{}
	state atomic.Int32

	mu        sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// New wraps an established websocket connection. The link stays Connecting
// until Run is called; frames sent before then are queued.
func New(conn *websocket.Conn, remote string, dir Direction, codec protocol.Codec, opts Options, logger *logging.ColoredLogger) *Link {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = opts.withDefaults()
	return &Link{
		id:     uuid.NewString(),
		remote: remote,
		dir:    dir,
		conn:   conn,
		codec:  codec,
		opts:   opts,
		logger: logger,
		out:    make(chan []byte, opts.OutboundQueue),
		done:   make(chan struct{}),
	}
}

// ID is unique per link instance, so a child that reconnects under the same
// selfId gets a new one.
func (l *Link) ID() string { return l.id }

// Remote returns the selfId of the node on the other end.
func (l *Link) Remote() string { return l.remote }

// Direction returns which side of the tree the remote is on.
func (l *Link) Direction() Direction { return l.dir }

// Codec returns the frame codec negotiated in the handshake.
func (l *Link) Codec() protocol.Codec { return l.codec }

// State returns the current lifecycle stage.
func (l *Link) State() State { return State(l.state.Load()) }

// Done is closed when the link closes.
func (l *Link) Done() <-chan struct{} { return l.done }

// Err returns why the link closed, or nil while it is not closed.
func (l *Link) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closeErr
}

// Run starts the pumps.
func (l *Link) Run(onFrame FrameHandler, onClose CloseHandler) {
	if !l.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return
	}
	go l.writePump()
	go l.readPump(onFrame, onClose)
}

// Send queues a frame. It never blocks: a full queue closes the link, since a
// peer that cannot keep up would otherwise see a gap in its chains.
func (l *Link) Send(f *protocol.Frame) error {
	data, err := protocol.Encode(l.codec, f)
	if err != nil {
		return errors.WithCode(errors.CodeSerializationError, "failed to encode frame", err)
	}

	l.mu.RLock()
	if l.State() == Closed {
		l.mu.RUnlock()
		return errors.ErrLinkClosed
	}
	select {
	case l.out <- data:
		l.mu.RUnlock()
		return nil
	default:
		l.mu.RUnlock()
	}

	l.logger.ComponentWarn(logging.ComponentLink, "Outbound queue full, closing link",
		zap.String("remote", l.remote),
		zap.Int("queue", l.opts.OutboundQueue))
	l.closeWith(errors.ErrQueueFull)
	return errors.ErrQueueFull
}

// Close shuts the link down. It is safe to call more than once.
func (l *Link) Close() error {
	l.closeWith(errors.ErrLinkClosed)
	return nil
}

func (l *Link) closeWith(err error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state.Store(int32(Closed))
		l.closeErr = err
		close(l.done)
		l.mu.Unlock()

		// A stalled write pump holds the connection's write lock until its
		// deadline, so an overflowing link is dropped without a close frame
		// and the close frame of any other link is written off the caller.
		if err == errors.ErrQueueFull {
			_ = l.conn.Close()
			return
		}
		go func() {
			deadline := time.Now().Add(time.Second)
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = l.conn.Close()
		}()
	})
}

func (l *Link) readPump(onFrame FrameHandler, onClose CloseHandler) {
	l.conn.SetReadLimit(l.opts.MaxFrameBytes)
	_ = l.conn.SetReadDeadline(time.Now().Add(l.opts.PongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(l.opts.PongWait))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if l.State() != Closed {
				l.logger.ComponentDebug(logging.ComponentLink, "Link read failed",
					zap.String("remote", l.remote),
					zap.String("direction", l.dir.String()),
					zap.Error(err))
			}
			l.closeWith(errors.NewLinkDownError(l.remote, err))
			break
		}

		f, err := protocol.Decode(l.codec, data)
		if err != nil {
			l.logger.ComponentWarn(logging.ComponentLink, "Dropping malformed frame",
				zap.String("remote", l.remote),
				zap.Error(err))
			continue
		}
		if onFrame != nil {
			onFrame(l, f)
		}
	}

	if onClose != nil {
		onClose(l, l.Err())
	}
}

func (l *Link) writePump() {
	ticker := time.NewTicker(l.opts.PingInterval)
	defer ticker.Stop()

	msgType := websocket.TextMessage
	if l.codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case data := <-l.out:
			_ = l.conn.SetWriteDeadline(time.Now().Add(l.opts.WriteTimeout))
			if err := l.conn.WriteMessage(msgType, data); err != nil {
				l.closeWith(errors.NewLinkDownError(l.remote, err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(l.opts.WriteTimeout)
			if err := l.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				l.closeWith(errors.NewLinkDownError(l.remote, err))
				return
			}
		case <-l.done:
			return
		}
	}
}
