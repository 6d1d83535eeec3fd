// Package taskloop provides the single-goroutine task executor that owns
// all routine and service state.
//
// Every mutation of routine state happens as a task on one loop, so the
// routine layer needs no locking. External I/O (subprocesses, adapter
// calls, delayed timers) completes on other goroutines and posts its
// completion back to the loop. Cancellable wraps such completions so that
// a callback deregistered by Cancel becomes a no-op.
package taskloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner posts tasks onto an executor.
type Runner interface {
	Post(fn func())
}

// SyncRunner additionally runs a task and waits for it to finish. Service
// entry points use Sync so client commands are serialised in arrival
// order.
type SyncRunner interface {
	Runner
	Sync(fn func())
}

// Loop is a single-goroutine task executor with an unbounded FIFO queue.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New creates a Loop and starts its goroutine.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Post enqueues fn. Posting after Close is a no-op.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Sync posts fn and blocks until it has run. Must not be called from a
// task already running on the loop: that would deadlock.
func (l *Loop) Sync(fn func()) {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
	case <-l.done:
	}
}

// Close drains the queue and stops the loop goroutine.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

// Inline is a Runner that executes tasks immediately on the calling
// goroutine. Tests use it so routine callbacks run deterministically.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }
func (Inline) Sync(fn func()) { fn() }

// Cancellable wraps a callback so it can be deregistered. After Cancel,
// Run does nothing. Safe for concurrent use: a timer goroutine may Run
// while the loop Cancels.
type Cancellable struct {
	fn        func()
	cancelled atomic.Bool
}

// NewCancellable wraps fn.
func NewCancellable(fn func()) *Cancellable {
	return &Cancellable{fn: fn}
}

// Run invokes the callback unless it has been cancelled.
func (c *Cancellable) Run() {
	if c == nil || c.cancelled.Load() {
		return
	}
	c.fn()
}

// Cancel makes all future Run calls no-ops.
func (c *Cancellable) Cancel() {
	if c != nil {
		c.cancelled.Store(true)
	}
}

// Delayed is a pending delayed task. Cancel stops the underlying timer and
// deregisters the callback; the two are independent so cancellation wins
// even if the timer has already fired and the completion is queued.
type Delayed struct {
	timer clockwork.Timer
	cb    *Cancellable
}

// After schedules fn to run on runner after d, measured against clock.
func After(clock clockwork.Clock, runner Runner, d time.Duration, fn func()) *Delayed {
	cb := NewCancellable(fn)
	timer := clock.AfterFunc(d, func() {
		runner.Post(cb.Run)
	})
	return &Delayed{timer: timer, cb: cb}
}

// Cancel stops the pending task. Safe to call after the task has run.
func (d *Delayed) Cancel() {
	if d == nil {
		return
	}
	d.timer.Stop()
	d.cb.Cancel()
}
