package streamsvc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sam0402/slimstreamer/internal/asyncio"
	"github.com/sam0402/slimstreamer/internal/capture"
	"github.com/sam0402/slimstreamer/internal/chunk"
	"github.com/sam0402/slimstreamer/internal/encoder"
	"github.com/sam0402/slimstreamer/internal/scheduler"
	"github.com/sam0402/slimstreamer/internal/streamerr"
)

// ServerVersion is reported in the streaming response header, matching the
// original StreamingSession.hpp's "Server: SlimStreamer (<version>)" line.
const ServerVersion = "1.0"

// drainPollInterval is the retry period for the WaitingForWriterSlot state,
// matching §4.4's "1ms retry timer".
const drainPollInterval = time.Millisecond

type drainState int32

const (
	drainIdle drainState = iota
	drainFlushingEncoder
	drainWaitingForWriterSlot
	drainEmittingBarrier
	drainDone
)

// HTTPStreamingSession is the per-client audio data channel (§4.4): it
// writes the fixed HTTP response header block, feeds captured chunks
// through a negotiated Encoder into a BufferedAsyncWriter, and on Drain
// walks FlushingEncoder -> WaitingForWriterSlot -> EmittingBarrier -> Done
// before closing the connection.
type HTTPStreamingSession struct {
	clientID string
	conn     net.Conn
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	rate    uint32
	encoder encoder.Encoder
	writer  *asyncio.BufferedAsyncWriter

	state    atomic.Int32
	onDrain  func()
	onFailed func(error)

	closeOnce sync.Once
}

// parseClientID extracts the player identifier from an HTTP request line,
// restoring StreamingSession.hpp::parseClientID's rule: the first '=' wins,
// and everything after it up to the next whitespace is the value.
func parseClientID(requestLine string) (string, bool) {
	idx := strings.IndexByte(requestLine, '=')
	if idx < 0 {
		return "", false
	}
	rest := requestLine[idx+1:]
	if sp := strings.IndexAny(rest, " \t\r\n"); sp >= 0 {
		rest = rest[:sp]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}
	return rest, true
}

// validateRequest checks the literal "GET" method prefix, as
// StreamingSession.hpp::onRequest does.
func validateRequest(requestLine string) bool {
	return strings.HasPrefix(requestLine, "GET")
}

// writeResponseHeader writes the fixed response header block, carried
// verbatim from StreamingSession.hpp's construction.
func writeResponseHeader(w io.Writer, mime string) error {
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nServer: SlimStreamer (%s)\r\nConnection: close\r\nContent-Type: %s\r\n\r\n",
		ServerVersion, mime,
	)
	_, err := io.WriteString(w, header)
	return err
}

// NewHTTPStreamingSession builds a session bound to rate, with an Encoder
// constructed via build for the capture format, writing through a
// BufferedAsyncWriter of the given queue depth.
func NewHTTPStreamingSession(
	clientID string,
	conn net.Conn,
	rate uint32,
	format capture.Format,
	build encoder.Builder,
	writerQueueDepth int,
	maxBytesPerSec int64,
	sched *scheduler.Scheduler,
	logger *slog.Logger,
) *HTTPStreamingSession {
	s := &HTTPStreamingSession{
		clientID: clientID,
		conn:     conn,
		sched:    sched,
		logger:   logger,
		rate:     rate,
	}
	w := NewThrottledWriter(context.Background(), conn, maxBytesPerSec)
	s.writer = asyncio.NewBufferedAsyncWriter(w, writerQueueDepth, logger)
	s.encoder = build(format.Channels, rate, format.BitsPerSample, s.sink)
	return s
}

// SetOnDrained registers the callback fired once Drain's state machine
// reaches Done and the connection has been closed.
func (s *HTTPStreamingSession) SetOnDrained(fn func()) { s.onDrain = fn }

// SetOnFailed registers the callback fired when the underlying connection
// fails (§7's IoError path: terminates the session).
func (s *HTTPStreamingSession) SetOnFailed(fn func(error)) { s.onFailed = fn }

// Rate returns the sampling rate this session was negotiated at.
func (s *HTTPStreamingSession) Rate() uint32 { return s.rate }

// Start writes the response header and starts the encoder (which may itself
// write a format header, e.g. WAVEncoder's RIFF preamble).
func (s *HTTPStreamingSession) Start() error {
	s.writer.Start()
	if err := writeResponseHeader(s.conn, s.encoder.MIME()); err != nil {
		return streamerr.IO("streamsvc.http", err)
	}
	return s.encoder.Start()
}

// sink is the Encoder's output callback: it forwards encoded bytes to the
// BufferedAsyncWriter, dropping them under backpressure rather than
// blocking the Scheduler (§5's ResourceExhausted path).
func (s *HTTPStreamingSession) sink(data []byte) {
	accepted := s.writer.WriteAsync(data, func(err error) {
		if err != nil {
			// Runs on the writer's dispatch goroutine, which fail's Close
			// waits for; hand the failure to the Scheduler instead.
			s.sched.Post(func() { s.fail(err) })
		}
	})
	if !accepted && s.logger != nil {
		s.logger.Warn("writer queue full, dropping encoded chunk", "client", s.clientID)
	}
}

// Encode feeds one captured chunk through the negotiated Encoder. Callers
// (the Streamer) are responsible for only calling this for chunks whose
// SamplingRate matches Rate(); a mismatch is handled upstream by draining
// and renegotiating, not inside Encode.
func (s *HTTPStreamingSession) Encode(c chunk.Chunk) {
	if drainState(s.state.Load()) != drainIdle {
		return
	}
	if err := s.encoder.Encode(c.Data); err != nil {
		s.fail(err)
	}
}

func (s *HTTPStreamingSession) fail(err error) {
	ioErr := streamerr.IO("streamsvc.http", err)
	if s.logger != nil {
		s.logger.Error("streaming session failed", "client", s.clientID, "error", ioErr)
	}
	s.Close()
	if s.onFailed != nil {
		s.onFailed(ioErr)
	}
}

// Drain runs the FlushingEncoder -> WaitingForWriterSlot -> EmittingBarrier
// -> Done state machine (§4.4), closing the connection once every byte
// encoded before the drain request has reached the writer queue, then
// invoking the SetOnDrained callback (if any) followed by onDone. Calling
// Drain more than once is a no-op.
func (s *HTTPStreamingSession) Drain(onDone func()) {
	if !s.state.CompareAndSwap(int32(drainIdle), int32(drainFlushingEncoder)) {
		return
	}
	registered := s.onDrain
	s.onDrain = func() {
		if registered != nil {
			registered()
		}
		if onDone != nil {
			onDone()
		}
	}
	s.encoder.Stop(func() {
		s.state.Store(int32(drainWaitingForWriterSlot))
		s.pollWriterSlot()
	})
}

func (s *HTTPStreamingSession) pollWriterSlot() {
	if !s.writer.BufferAvailable() {
		s.sched.AfterFunc(drainPollInterval, s.pollWriterSlot)
		return
	}
	s.state.Store(int32(drainEmittingBarrier))
	// Flush's completion fires on the asyncio writer's dispatch goroutine,
	// not the Scheduler; post it back so finishDrain (and onDrain, which
	// mutates Streamer's client table) runs under §5's single-goroutine
	// model instead of relying on Streamer's mutex to paper over it.
	if !s.writer.Flush(func(error) { s.sched.Post(s.finishDrain) }) {
		// Lost the race for the slot just reported available; fall back to
		// WaitingForWriterSlot and retry.
		s.state.Store(int32(drainWaitingForWriterSlot))
		s.sched.AfterFunc(drainPollInterval, s.pollWriterSlot)
	}
}

func (s *HTTPStreamingSession) finishDrain() {
	s.state.Store(int32(drainDone))
	s.Close()
	if s.onDrain != nil {
		s.onDrain()
	}
}

// Close stops the writer and closes the connection. Safe to call more than
// once and safe to call before Drain completes (e.g. on shutdown).
func (s *HTTPStreamingSession) Close() {
	s.closeOnce.Do(func() {
		s.writer.Close()
		s.conn.Close()
	})
}
