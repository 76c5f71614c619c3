// Package scheduler implements the single-threaded cooperative executor
// that serialises all mutation of Streamer/session state (§5). Capture runs
// on its own dedicated goroutines per Pipeline and hands chunks to the
// Scheduler through TryPost; socket I/O completion handlers and flush timers
// likewise only ever touch shared state from inside a task run on the
// Scheduler's own goroutine.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs posted tasks one at a time, in submission order, on a
// single dedicated goroutine. Every suspension point named in §5 (an async
// write completing, a timer firing, a chunk crossing from a capture
// goroutine) is modelled as a task posted here.
type Scheduler struct {
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	stopMu sync.Once
}

// New creates a Scheduler with the given task queue depth. Post blocks once
// the queue is full; TryPost, which Pipelines use for chunk delivery,
// instead returns false so the chunk is dropped.
func New(queueDepth int) *Scheduler {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	return &Scheduler{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
}

// Start launches the executor goroutine. Call once; use Stop to halt it.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// run executes posted tasks until Stop is called. It is the only goroutine
// ever allowed to execute a task's body, which is what gives the Scheduler
// its serialisation guarantee.
func (s *Scheduler) run() {
	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-s.done:
			// Drain remaining tasks so queued cleanup (session Stop
			// callbacks, pending flush barriers) still runs before exit.
			for {
				select {
				case fn := <-s.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn to run on the Scheduler goroutine. Safe to call from any
// goroutine, including capture threads and async I/O completion callbacks.
func (s *Scheduler) Post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

// TryPost enqueues fn without blocking, returning false if the queue is
// full. Pipelines use this for chunk delivery: §5/§7 require capture never
// to block on downstream state, so a full queue here is dropped the same
// way a full BufferedAsyncWriter is — a ResourceExhausted, not a stall.
func (s *Scheduler) TryPost(fn func()) bool {
	select {
	case s.tasks <- fn:
		return true
	default:
		return false
	}
}

// AfterFunc arranges for fn to be Post-ed after d elapses. It returns a
// *Timer whose Stop cancels the pending post (best-effort: if the timer has
// already fired, Stop is a no-op). Used by HTTPStreamingSession's drain
// state machine to retry WaitingForWriterSlot every 1ms.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		if t.stopped.Load() {
			return
		}
		s.Post(fn)
	})
	return t
}

// Timer cancels a pending AfterFunc callback.
type Timer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop cancels the timer. Idempotent.
func (t *Timer) Stop() {
	t.stopped.Store(true)
	t.timer.Stop()
}

// Stop halts the executor. Run's current task (if any) completes, any
// already-queued tasks drain, and Run returns.
func (s *Scheduler) Stop() {
	s.stopMu.Do(func() { close(s.done) })
	s.wg.Wait()
}
