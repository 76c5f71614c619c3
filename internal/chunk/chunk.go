// Package chunk defines the unit of audio data that flows from a
// CaptureSource, through a Pipeline, into the Streamer and out to every
// subscribed HTTPStreamingSession.
package chunk

import "github.com/sam0402/slimstreamer/internal/buffer"

// Chunk is a fixed-duration block of interleaved PCM frames tagged with the
// sampling rate it was captured at. Data holds exactly
// Frames * Channels * (BitsPerSample/8) bytes. Buf, when non-nil, is the
// pool-backed storage Data points into; the last subscriber to finish with
// the chunk must call Release so the buffer returns to its pool.
type Chunk struct {
	Data          []byte
	Buf           *buffer.PooledBuffer
	SamplingRate  uint32
	Channels      uint8
	BitsPerSample uint8
	EndOfStream   bool
}

// Frames returns the number of PCM frames this chunk carries.
func (c Chunk) Frames() int64 {
	bytesPerFrame := int(c.Channels) * int(c.BitsPerSample) / 8
	if bytesPerFrame == 0 {
		return 0
	}
	return int64(len(c.Data) / bytesPerFrame)
}

// Release returns the chunk's backing buffer to its pool, if any. Safe to
// call on a Chunk with no pool-backed storage (Buf == nil).
func (c Chunk) Release() {
	if c.Buf != nil {
		c.Buf.Release()
	}
}
