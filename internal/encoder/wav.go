package encoder

import "encoding/binary"

// MIMEWave is the MIME type SlimStreamer advertises for the uncompressed
// PCM/WAV encoder, matching the legacy "audio/x-wave" content type the
// original SlimStreamer (slim::wave::Destination) served.
const MIMEWave = "audio/x-wave"

// streamingSize is written into the RIFF/data size fields of a WAV header
// emitted for an endless stream, where the final size is not known up
// front. Readers that tolerate streamed WAV (as SlimProto clients do)
// accept this sentinel in place of a real byte count.
const streamingSize = 0xFFFFFFFF

// WAVEncoder passes PCM straight through after emitting a single streaming
// RIFF/WAVE header, grounded on the canonical 44-byte PCM WAV header layout
// (RIFF chunk descriptor + fmt subchunk + data subchunk header).
type WAVEncoder struct {
	stateMachine
	channels      uint8
	samplingRate  uint32
	bitsPerSample uint8
	sink          Sink
}

// NewWAVEncoder is a Builder for WAVEncoder.
func NewWAVEncoder(channels uint8, samplingRate uint32, bitsPerSample uint8, sink Sink) Encoder {
	return &WAVEncoder{
		channels:      channels,
		samplingRate:  samplingRate,
		bitsPerSample: bitsPerSample,
		sink:          sink,
	}
}

func (e *WAVEncoder) MIME() string          { return MIMEWave }
func (e *WAVEncoder) SamplingRate() uint32  { return e.samplingRate }

func (e *WAVEncoder) Start() error {
	e.set(StateRunning)
	e.sink(e.header())
	return nil
}

func (e *WAVEncoder) header() []byte {
	byteRate := e.samplingRate * uint32(e.channels) * uint32(e.bitsPerSample) / 8
	blockAlign := uint16(e.channels) * uint16(e.bitsPerSample) / 8

	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], streamingSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // fmt subchunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(e.channels))
	binary.LittleEndian.PutUint32(h[24:28], e.samplingRate)
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], uint16(e.bitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], streamingSize)
	return h
}

func (e *WAVEncoder) Encode(data []byte) error {
	if e.get() != StateRunning {
		return nil // Stopping/Idle: silently rejected per §4.2
	}
	if len(data) > 0 {
		e.sink(data)
	}
	return nil
}

func (e *WAVEncoder) Stop(onDone func()) error {
	e.beginStop()
	e.finishStop()
	if onDone != nil {
		onDone()
	}
	return nil
}
