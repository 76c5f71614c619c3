package slimproto

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sam0402/slimstreamer/internal/streamerr"
)

// Session is the per-client SlimProto control connection described in §4.5:
// it drives the connect-time command sequence, periodic Ping/RTT
// measurement, and dispatches incoming STAT events to the Client/Streamer.
// Grounded on the teacher's ControlChannel (internal/agent/control_channel.go):
// a managed net.Conn guarded by a write mutex, a dedicated read-loop
// goroutine, and setter-injected callbacks configured before Start.
type Session struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	rttNanos   atomic.Int64
	pingSentAt atomic.Int64

	onStat           func(STAT)
	onProtocolError  func(error)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSession wraps conn. Call SetOnStat/SetOnProtocolError before Start.
func NewSession(conn net.Conn, logger *slog.Logger) *Session {
	return &Session{
		conn:   conn,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// SetOnStat registers the callback invoked for every STAT event the client
// reports, on the session's own read goroutine.
func (s *Session) SetOnStat(fn func(STAT)) { s.onStat = fn }

// SetOnProtocolError registers the callback invoked when the read loop
// encounters a malformed frame or the connection fails. §4.5 terminates the
// session on any ProtocolError; the callback is where the Streamer removes
// the client.
func (s *Session) SetOnProtocolError(fn func(error)) { s.onProtocolError = fn }

// Start sends the connect-time command sequence and launches the read loop.
// Per §4.5/supplemented features: STRM{Stop}, SETD{RequestName},
// SETD{Squeezebox3}, AUDE{true,true}, AUDG{}.
func (s *Session) Start() error {
	if err := s.sendConnectSequence(); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.readLoop()
	return nil
}

func (s *Session) sendConnectSequence() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := WriteSTRM(s.conn, STRMCommand{SubCommand: STRMStop}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	if err := WriteSETD(s.conn, SETDCommand{RequestID: SETDRequestName}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	if err := WriteSETD(s.conn, SETDCommand{RequestID: SETDSqueezebox3}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	if err := WriteAUDE(s.conn, AUDECommand{EnableSPDIF: true, EnableAnalog: true}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	if err := WriteAUDG(s.conn, AUDGCommand{}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	return nil
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		stat, err := ReadSTAT(s.conn)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			protoErr := streamerr.Protocol("slimproto", fmt.Errorf("reading STAT: %w", err))
			if s.logger != nil {
				s.logger.Warn("slimproto session terminated", "error", protoErr)
			}
			if s.onProtocolError != nil {
				s.onProtocolError(protoErr)
			}
			return
		}

		if stat.Event == EventSTMt {
			if sentAt := s.pingSentAt.Load(); sentAt != 0 {
				s.rttNanos.Store(time.Now().UnixNano() - sentAt)
			}
		}
		if s.onStat != nil {
			s.onStat(*stat)
		}
	}
}

// Ping sends STRM{Time}, capturing the send timestamp so the matching
// STAT(STMt) reply's arrival yields an RTT sample, per the original
// CommandSession::ping()'s steady_clock-before/after measurement.
func (s *Session) Ping() error {
	s.pingSentAt.Store(time.Now().UnixNano())
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := WriteSTRM(s.conn, STRMCommand{SubCommand: STRMTime}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	return nil
}

// RTT returns the most recent ping round-trip measurement, or 0 if none has
// completed yet.
func (s *Session) RTT() time.Duration {
	return time.Duration(s.rttNanos.Load())
}

// SendStreamStart tells the client to begin pulling from its data channel.
func (s *Session) SendStreamStart() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := WriteSTRM(s.conn, STRMCommand{SubCommand: STRMStart}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	return nil
}

// SendStreamStop tells the client to stop pulling from its data channel,
// used by the RateMismatch renegotiation path (§4.7): STRM{Stop}, then,
// once the old data session has drained, a fresh STRM{Start} that makes
// the client reconnect its data channel at its newly selected rate.
func (s *Session) SendStreamStop() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := WriteSTRM(s.conn, STRMCommand{SubCommand: STRMStop}); err != nil {
		return streamerr.IO("slimproto", err)
	}
	return nil
}

// Stop closes the underlying connection and waits for the read loop to
// exit. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.conn.Close()
	})
	s.wg.Wait()
}
