package encoder

import (
	"github.com/klauspost/compress/zstd"
)

// MIMEZstd is advertised for the zstd compressed codec.
const MIMEZstd = "audio/x-wave+zstd"

// ZstdEncoder compresses PCM with klauspost/compress's streaming zstd
// writer — the second compressed-codec option alongside GzipEncoder,
// offering a higher-ratio/higher-CPU tradeoff for clients on constrained
// links.
type ZstdEncoder struct {
	stateMachine
	samplingRate uint32
	sink         Sink
	zw           *zstd.Encoder
}

// NewZstdEncoder is a Builder for ZstdEncoder.
func NewZstdEncoder(channels uint8, samplingRate uint32, bitsPerSample uint8, sink Sink) Encoder {
	return &ZstdEncoder{samplingRate: samplingRate, sink: sink}
}

func (e *ZstdEncoder) MIME() string         { return MIMEZstd }
func (e *ZstdEncoder) SamplingRate() uint32 { return e.samplingRate }

func (e *ZstdEncoder) Start() error {
	zw, err := zstd.NewWriter(sinkWriter{sink: e.sink}, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	e.zw = zw
	e.set(StateRunning)
	return nil
}

func (e *ZstdEncoder) Encode(data []byte) error {
	if e.get() != StateRunning {
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	_, err := e.zw.Write(data)
	return err
}

func (e *ZstdEncoder) Stop(onDone func()) error {
	if !e.beginStop() {
		e.finishStop()
		if onDone != nil {
			onDone()
		}
		return nil
	}
	err := e.zw.Close()
	e.finishStop()
	if onDone != nil {
		onDone()
	}
	return err
}
