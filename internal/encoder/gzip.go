package encoder

import (
	"github.com/klauspost/pgzip"
)

// MIMEGzip is advertised for the parallel-gzip compressed codec.
const MIMEGzip = "audio/x-wave+gzip"

// sinkWriter adapts a Sink callback to io.Writer so stdlib-shaped encoders
// (pgzip.Writer, zstd.Encoder) can write straight into it.
type sinkWriter struct{ sink Sink }

func (w sinkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.sink(append([]byte(nil), p...))
	}
	return len(p), nil
}

// GzipEncoder compresses PCM with pgzip (parallel gzip), matching the
// compressed-codec branch of §4.2 ("a compressed codec"). Grounded on the
// teacher's Stream() pipeline, which drives a gzip.Writer inline over a
// tar stream; here the gzip.Writer sits directly over raw PCM instead.
type GzipEncoder struct {
	stateMachine
	samplingRate uint32
	sink         Sink
	gz           *pgzip.Writer
}

// NewGzipEncoder is a Builder for GzipEncoder.
func NewGzipEncoder(channels uint8, samplingRate uint32, bitsPerSample uint8, sink Sink) Encoder {
	return &GzipEncoder{samplingRate: samplingRate, sink: sink}
}

func (e *GzipEncoder) MIME() string         { return MIMEGzip }
func (e *GzipEncoder) SamplingRate() uint32 { return e.samplingRate }

func (e *GzipEncoder) Start() error {
	e.gz = pgzip.NewWriter(sinkWriter{sink: e.sink})
	e.set(StateRunning)
	return nil
}

func (e *GzipEncoder) Encode(data []byte) error {
	if e.get() != StateRunning {
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	_, err := e.gz.Write(data)
	return err
}

func (e *GzipEncoder) Stop(onDone func()) error {
	if !e.beginStop() {
		e.finishStop()
		if onDone != nil {
			onDone()
		}
		return nil
	}
	err := e.gz.Close()
	e.finishStop()
	if onDone != nil {
		onDone()
	}
	return err
}
