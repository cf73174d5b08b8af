package node

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/httputil"
	"github.com/DeBrosOfficial/cogmesh/pkg/link"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/persist"
	"github.com/DeBrosOfficial/cogmesh/pkg/registry"
	"github.com/DeBrosOfficial/cogmesh/pkg/workers"
)

const inboxSize = 1024

// core is one run of a node, from Start to Stop. Fields below the marker are
// owned by the loop goroutine.
type core struct {
	n      *Node
	selfID string
	logger *logging.ColoredLogger

	inbox chan func()
	done  chan struct{}

	// mu guards closed; post holds it while queueing so nothing lands in the
	// inbox after the final drain.
	mu     sync.Mutex
	closed bool

	server      *link.Server
	pool        *workers.Pool
	disp        *dispatcher
	store       persist.Store
	ownsStore   bool
	stopMonitor context.CancelFunc

	// loop-owned
	exit     bool
	stopped  bool
	topics   *registry.Registry
	parent   *peer
	children map[string]*peer
	reserved map[string]struct{}
	peers    map[string]*peer // by link id
	routes   map[routeKey]*route
	subs     map[string][]*subscription // by original path, oldest first
	failed   map[string]struct{}
	relays   map[uint64]*inbound // by registry subscriber id
}

func newCore(n *Node) *core {
	return &core{
		n:        n,
		selfID:   n.selfID,
		logger:   n.logger,
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
		topics:   registry.New(),
		children: make(map[string]*peer),
		reserved: make(map[string]struct{}),
		peers:    make(map[string]*peer),
		routes:   make(map[routeKey]*route),
		subs:     make(map[string][]*subscription),
		failed:   make(map[string]struct{}),
		relays:   make(map[uint64]*inbound),
	}
}

func (c *core) run() {
	defer close(c.done)
	for !c.exit {
		fn := <-c.inbox
		fn()
	}
	// Work that raced with teardown still runs, against the stopped state.
	for {
		select {
		case fn := <-c.inbox:
			fn()
			continue
		default:
		}
		c.mu.Lock()
		select {
		case fn := <-c.inbox:
			c.mu.Unlock()
			fn()
			continue
		default:
		}
		c.closed = true
		c.mu.Unlock()
		return
	}
}

// post queues fn on the loop. It reports false once the loop has exited;
// a true result means fn will run.
func (c *core) post(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.inbox <- fn
	return true
}

// call runs fn on the loop and waits for its result. It must not be used
// from the loop itself.
func (c *core) call(fn func() error) error {
	errc := make(chan error, 1)
	if !c.post(func() {
		if c.stopped {
			errc <- errors.ErrNotRunning
			return
		}
		errc <- fn()
	}) {
		return errors.ErrNotRunning
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return errors.ErrNotRunning
		}
	}
}

// shutdown takes a started core apart. The listener goes first so no child
// links while the loop tears down.
func (c *core) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if c.stopMonitor != nil {
		c.stopMonitor()
	}
	if err := c.server.Close(ctx); err != nil {
		c.logger.ComponentWarn(logging.ComponentNode, "Listener shutdown incomplete", zap.Error(err))
	}

	_ = c.call(func() error {
		c.teardown()
		return nil
	})
	<-c.done

	c.disp.close()
	if err := c.pool.Shutdown(ctx); err != nil {
		c.logger.ComponentWarn(logging.ComponentWorkers, "Worker pool shutdown incomplete", zap.Error(err))
	}
	if c.ownsStore {
		if err := c.store.Close(); err != nil {
			c.logger.ComponentWarn(logging.ComponentStore, "Failed to close store", zap.Error(err))
		}
	}
}

// teardown runs on the loop: every link closes, every subscription fails and
// every topic is dropped.
func (c *core) teardown() {
	c.stopped = true
	for _, p := range c.peers {
		for id, q := range p.queries {
			delete(p.queries, id)
			q.reply(failedQuery(q.path, errors.ErrNotRunning))
		}
		_ = p.link.Close()
	}
	for path, subs := range c.subs {
		for _, sub := range subs {
			sub.state = Failed
		}
		c.failed[path] = struct{}{}
	}

	dropped := c.topics.Reset()
	c.logger.ComponentDebug(logging.ComponentNode, "Torn down",
		zap.Int("links", len(c.peers)),
		zap.Int("routes", len(c.routes)),
		zap.Int("topics", len(dropped)))

	c.parent = nil
	c.children = make(map[string]*peer)
	c.peers = make(map[string]*peer)
	c.routes = make(map[routeKey]*route)
	c.subs = make(map[string][]*subscription)
	c.relays = make(map[uint64]*inbound)
	c.exit = true
}

// HasParent implements address.Table.
func (c *core) HasParent() bool { return c.parent != nil }

// HasChild implements address.Table.
func (c *core) HasChild(selfID string) bool {
	_, ok := c.children[selfID]
	return ok
}

func (c *core) parentID() string {
	if c.parent == nil {
		return ""
	}
	return c.parent.link.Remote()
}

func (c *core) childIDs() []string {
	ids := make([]string, 0, len(c.children))
	for id := range c.children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// dispatch hands a callback to the dispatcher goroutine.
func (c *core) dispatch(fn func()) { c.disp.dispatch(fn) }

func (c *core) handleInfo(w http.ResponseWriter, r *http.Request) {
	var info QueryInfo
	err := c.call(func() error {
		info, _ = c.describe("")
		return nil
	})
	if err != nil {
		errors.WriteHTTPError(w, err)
		return
	}
	info.Path = "."
	httputil.WriteJSON(w, http.StatusOK, info)
}
