package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sam0402/slimstreamer/internal/streamerr"
)

// FileSource is a Source backed by a looping raw-PCM reader, paced to real
// time with a token-bucket limiter sized to the format's byte rate —
// generalising the teacher's upload ThrottledWriter (internal/agent/throttle.go)
// to a capture-side read path, so a file replayed in a loop behaves like a
// live device instead of bursting every chunk through at disk speed.
type FileSource struct {
	deviceName     string
	format         Format
	framesPerChunk int

	mu      sync.Mutex
	r       io.ReadSeeker
	limiter *rate.Limiter
}

// NewFileSource builds a FileSource reading PCM from r, looping back to the
// start whenever it reaches EOF. framesPerChunk determines both ReadChunk's
// expected buffer size and the limiter's burst allowance.
func NewFileSource(deviceName string, format Format, framesPerChunk int, r io.ReadSeeker) *FileSource {
	bytesPerSec := format.BytesPerFrame() * int(format.SamplingRate)
	burst := format.BytesPerFrame() * framesPerChunk
	if burst <= 0 {
		burst = 1
	}
	return &FileSource{
		deviceName:     deviceName,
		format:         format,
		framesPerChunk: framesPerChunk,
		r:              r,
		limiter:        rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

func (s *FileSource) DeviceName() string    { return s.deviceName }
func (s *FileSource) Format() Format        { return s.format }
func (s *FileSource) FramesPerChunk() int   { return s.framesPerChunk }

// ReadChunk fills buf with exactly len(buf) bytes, retrying on short reads
// and looping the underlying reader back to its start on EOF, after pacing
// delivery to the configured byte rate.
func (s *FileSource) ReadChunk(ctx context.Context, buf []byte) error {
	if err := s.limiter.WaitN(ctx, len(buf)); err != nil {
		return streamerr.Device("capture.file", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filled := 0
	for filled < len(buf) {
		n, err := s.r.Read(buf[filled:])
		filled += n
		if err == nil {
			continue
		}
		if err == io.EOF {
			if _, seekErr := s.r.Seek(0, io.SeekStart); seekErr != nil {
				return streamerr.Device("capture.file", fmt.Errorf("looping source: %w", seekErr))
			}
			continue
		}
		return streamerr.Device("capture.file", err)
	}
	return nil
}

func (s *FileSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewSilenceSource builds a FileSource over an in-memory buffer of zeroed
// PCM, looping forever. The real capture device driver is an external
// collaborator the CORE only ever sees through the Source interface; this
// gives a deployment a usable Source without one, pacing silence at the
// same byte rate a live device would deliver audio.
func NewSilenceSource(deviceName string, format Format, framesPerChunk int) *FileSource {
	silence := make([]byte, format.BytesPerFrame()*framesPerChunk*8)
	return NewFileSource(deviceName, format, framesPerChunk, bytes.NewReader(silence))
}
