// Package asyncio implements BufferedAsyncWriter (§4.3), the bounded,
// FIFO, one-write-in-flight async socket writer sitting between an Encoder's
// sink and a client's TCP connection. Grounded on the teacher's ChunkBuffer
// (internal/server/chunkbuffer.go): a channel of pending work items drained
// by a single dedicated goroutine, with a non-blocking enqueue that reports
// backpressure to the caller instead of stalling it.
package asyncio

import (
	"io"
	"log/slog"
	"sync"

	"github.com/sam0402/slimstreamer/internal/streamerr"
)

// DefaultQueueDepth is used when BufferedAsyncWriter is constructed with a
// non-positive queue depth, matching §4.3's "depth N (default 128)".
const DefaultQueueDepth = 128

// writeRequest is a single queued unit of work. A zero-length data slice is
// a flush barrier: it performs no I/O but still completes in FIFO order
// after every write enqueued before it, which is exactly how
// HTTPStreamingSession's drain state machine waits for outstanding bytes to
// reach the wire before emitting its own end-of-stream barrier.
type writeRequest struct {
	data       []byte
	onComplete func(err error)
}

// BufferedAsyncWriter serialises writes to an underlying io.Writer (a TCP
// connection in production, anything in tests) through a bounded queue
// drained by one dedicated goroutine, so callers on the Scheduler goroutine
// never block on socket I/O.
type BufferedAsyncWriter struct {
	w      io.Writer
	logger *slog.Logger

	queue chan writeRequest
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBufferedAsyncWriter builds a writer around w with the given queue
// depth. Call Start before any WriteAsync.
func NewBufferedAsyncWriter(w io.Writer, queueDepth int, logger *slog.Logger) *BufferedAsyncWriter {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &BufferedAsyncWriter{
		w:      w,
		logger: logger,
		queue:  make(chan writeRequest, queueDepth),
		done:   make(chan struct{}),
	}
}

// Start launches the dispatch goroutine.
func (bw *BufferedAsyncWriter) Start() {
	bw.wg.Add(1)
	go bw.pump()
}

func (bw *BufferedAsyncWriter) pump() {
	defer bw.wg.Done()
	for {
		select {
		case req := <-bw.queue:
			bw.dispatch(req)
		case <-bw.done:
			// Drain whatever is already queued so completion callbacks a
			// caller is waiting on (the drain state machine included) still
			// fire before the writer shuts down.
			for {
				select {
				case req := <-bw.queue:
					bw.dispatch(req)
				default:
					return
				}
			}
		}
	}
}

func (bw *BufferedAsyncWriter) dispatch(req writeRequest) {
	var err error
	if len(req.data) > 0 {
		_, err = bw.w.Write(req.data)
		if err != nil {
			err = streamerr.IO("asyncio", err)
			if bw.logger != nil {
				bw.logger.Error("async write failed", "error", err)
			}
		}
	}
	if req.onComplete != nil {
		req.onComplete(err)
	}
}

// BufferAvailable reports whether WriteAsync currently has room to enqueue
// without blocking. It is a point-in-time hint, not a guarantee.
func (bw *BufferedAsyncWriter) BufferAvailable() bool {
	return len(bw.queue) < cap(bw.queue)
}

// WriteAsync enqueues data for writing, invoking onComplete from the
// dispatch goroutine once the write (or, for a zero-length flush barrier,
// every write ahead of it) finishes. It never blocks: if the queue is full
// it returns false and enqueues nothing, the ResourceExhausted path of §5 —
// the caller drops the chunk and logs a warning rather than stalling.
func (bw *BufferedAsyncWriter) WriteAsync(data []byte, onComplete func(err error)) bool {
	var owned []byte
	if len(data) > 0 {
		// The caller (Pipeline, via Streamer/Encoder) may release its
		// pool-backed buffer as soon as this call returns, long before the
		// dispatch goroutine actually writes it, so the bytes are copied
		// into the queue rather than referenced.
		owned = append([]byte(nil), data...)
	}
	select {
	case bw.queue <- writeRequest{data: owned, onComplete: onComplete}:
		return true
	default:
		return false
	}
}

// Flush enqueues a zero-length barrier whose onComplete fires once every
// write queued before it has been written.
func (bw *BufferedAsyncWriter) Flush(onComplete func(err error)) bool {
	return bw.WriteAsync(nil, onComplete)
}

// Close stops the dispatch goroutine after draining any already-queued
// writes. Safe to call more than once.
func (bw *BufferedAsyncWriter) Close() {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
}
