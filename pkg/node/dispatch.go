package node

import (
	"sync"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
)

// dispatcher runs application callbacks one at a time, in the order the loop
// queued them. The queue is unbounded so the loop never waits on a slow
// callback, and a callback may call back into the node.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	logger *logging.ColoredLogger
}

func newDispatcher(logger *logging.ColoredLogger) *dispatcher {
	d := &dispatcher{
		done:   make(chan struct{}),
		logger: logger,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) dispatch(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// close lets queued callbacks finish and then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.invoke(fn)
	}
}

func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ComponentError(logging.ComponentNode, "Callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
