// Package workers runs blocking work (disk, outbound calls) off the node's
// event loop with bounded concurrency.
package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker pool closed")

// Task is a unit of work. ctx is cancelled when the pool closes.
type Task func(ctx context.Context) (any, error)

// Pool runs at most size tasks at once. Submit never blocks: tasks beyond
// the limit wait in their own goroutine for a slot.
type Pool struct {
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.ColoredLogger

	mu      sync.RWMutex
	closed  bool
	running atomic.Int32
	pending atomic.Int32
}

// New creates a pool with the given concurrency.
func New(size int, logger *logging.ColoredLogger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    make(chan struct{}, size),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Submit schedules task. done, if non-nil, receives the task's result on the
// worker goroutine; callers that own single-threaded state must hand the
// result back themselves.
func (p *Pool) Submit(task Task, done func(any, error)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	p.wg.Add(1)
	p.pending.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			p.pending.Add(-1)
			if done != nil {
				done(nil, p.ctx.Err())
			}
			return
		}
		p.pending.Add(-1)
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			<-p.sem
		}()

		result, err := p.run(task)
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

// run executes task, turning a panic into an error so one bad task cannot
// take the node down.
func (p *Pool) run(task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ComponentError(logging.ComponentWorkers, "Task panicked", zap.Any("panic", r))
			err = errors.New("worker task panicked")
		}
	}()
	return task(p.ctx)
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Pending returns the number of tasks waiting for a slot.
func (p *Pool) Pending() int { return int(p.pending.Load()) }

// Shutdown stops accepting tasks and lets queued ones finish. When ctx ends
// first the rest are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.markClosed()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-finished
		return ctx.Err()
	}
}

// Close cancels waiting and running tasks and waits for them to return.
func (p *Pool) Close() {
	p.markClosed()
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
