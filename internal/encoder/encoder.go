// Package encoder converts raw PCM chunks into the wire format a client
// negotiated: uncompressed WAV framing, or one of two compressed codecs.
// Every encoder is built fresh per HTTPStreamingSession from a Builder, so
// state (the Idle/Running/Stopping machine, any in-flight compression
// state) is never shared across clients.
package encoder

import "sync/atomic"

// State is the encoder lifecycle: Idle -> Running (Start) -> Stopping (Stop
// requested) -> Idle (onDone fired). Encode calls made while Stopping are
// rejected silently, matching §4.2's state machine.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// Sink receives encoded bytes as the encoder produces them. It is called
// synchronously from within Start/Encode/Stop; callers (HTTPStreamingSession)
// decide whether to forward, drop under backpressure, or buffer.
type Sink func(data []byte)

// Encoder is built from a Builder parameterised by the negotiated format
// plus a Sink. Start emits any header bytes; Encode appends PCM and may
// emit zero or more callbacks; Stop flushes pending bytes and invokes
// onDone exactly once, synchronously or not.
type Encoder interface {
	Start() error
	Encode(data []byte) error
	Stop(onDone func()) error
	IsRunning() bool
	MIME() string
	SamplingRate() uint32
}

// Builder constructs an Encoder for one session given its negotiated
// format and the sink that receives encoded output.
type Builder func(channels uint8, samplingRate uint32, bitsPerSample uint8, sink Sink) Encoder

// stateMachine is embedded by every Encoder implementation to share the
// Idle/Running/Stopping bookkeeping.
type stateMachine struct {
	state atomic.Int32
}

func (s *stateMachine) get() State { return State(s.state.Load()) }

func (s *stateMachine) set(v State) { s.state.Store(int32(v)) }

// beginStop transitions Running -> Stopping, returning true if it performed
// the transition. Calling Stop on an already-Stopping or Idle encoder is a
// harmless no-op (the caller's onDone still fires immediately).
func (s *stateMachine) beginStop() bool {
	return s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
}

func (s *stateMachine) finishStop() { s.state.Store(int32(StateIdle)) }

func (s *stateMachine) IsRunning() bool { return s.get() == StateRunning }
