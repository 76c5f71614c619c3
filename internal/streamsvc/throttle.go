package streamsvc

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize caps the chunk size fed to the limiter per call, matching the
// teacher's ThrottledWriter (internal/agent/throttle.go).
const maxBurstSize = 256 * 1024

// ThrottledWriter wraps an io.Writer with a token-bucket bandwidth cap,
// generalising the teacher's upload throttle to the streaming download
// path: an optional per-client bitrate ceiling a BufferedAsyncWriter writes
// through when the client configuration requests one.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter returns w unchanged if bytesPerSec <= 0 (no cap
// configured), otherwise a ThrottledWriter enforcing it.
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write splits p into burst-sized pieces so it never reserves more tokens
// than the limiter's burst capacity, blocking between pieces to respect the
// configured rate.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > tw.limiter.Burst() {
			n = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(tw.ctx, n); err != nil {
			return total, err
		}
		written, err := tw.w.Write(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
