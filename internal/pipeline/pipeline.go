// Package pipeline implements the capture-to-Streamer pump described in
// §4.6: one Pipeline owns one CaptureSource, reads fixed-duration chunks on
// its own goroutine, and hands each one to the Scheduler for the Streamer to
// fan out — never blocking capture on anything downstream.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sam0402/slimstreamer/internal/buffer"
	"github.com/sam0402/slimstreamer/internal/capture"
	"github.com/sam0402/slimstreamer/internal/chunk"
	"github.com/sam0402/slimstreamer/internal/scheduler"
	"github.com/sam0402/slimstreamer/internal/streamerr"
)

// Deliver receives a chunk on the Scheduler goroutine. The Streamer's fan-out
// to HTTPStreamingSessions is registered here.
type Deliver func(chunk.Chunk)

// Pipeline pumps fixed-size chunks from one CaptureSource into the Streamer
// via the Scheduler, dedicating its own goroutine to the (potentially
// blocking) capture read so the Scheduler is never stalled by device I/O.
type Pipeline struct {
	source  capture.Source
	pool    *buffer.Pool
	sched   *scheduler.Scheduler
	deliver Deliver
	logger  *slog.Logger

	chunkSize int
	scratch   []byte

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Pipeline. chunkSize is source.FramesPerChunk() *
// source.Format().BytesPerFrame(), computed once here.
func New(source capture.Source, pool *buffer.Pool, sched *scheduler.Scheduler, deliver Deliver, logger *slog.Logger) *Pipeline {
	chunkSize := source.FramesPerChunk() * source.Format().BytesPerFrame()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		source:    source,
		pool:      pool,
		sched:     sched,
		deliver:   deliver,
		logger:    logger,
		chunkSize: chunkSize,
		scratch:   make([]byte, chunkSize),
		ctx:       ctx,
		cancel:    cancel,
		stopCh:    make(chan struct{}),
	}
}

// Rate returns the sampling rate this Pipeline captures at.
func (p *Pipeline) Rate() uint32 { return p.source.Format().SamplingRate }

// Format returns the capture format (rate, channels, bit depth) this
// Pipeline's Source produces.
func (p *Pipeline) Format() capture.Format { return p.source.Format() }

// SetDeliver replaces the delivery callback. Must be called before Start.
func (p *Pipeline) SetDeliver(fn Deliver) { p.deliver = fn }

// Start launches the dedicated capture goroutine.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.pump()
}

func (p *Pipeline) pump() {
	defer p.wg.Done()
	format := p.source.Format()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		buf, ok := p.pool.Allocate()
		if !ok {
			// ResourceExhausted: the two sanctioned lossy paths (§5). Still
			// perform the read so the capture device's timing isn't
			// disturbed, just discard it instead of fanning it out.
			if err := p.source.ReadChunk(p.ctx, p.scratch); err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.fail(err)
				return
			}
			if p.logger != nil {
				p.logger.Warn("buffer pool exhausted, dropping chunk",
					"device", p.source.DeviceName(), "rate", format.SamplingRate)
			}
			continue
		}

		data := buf.Bytes[:p.chunkSize]
		if err := p.source.ReadChunk(p.ctx, data); err != nil {
			buf.Release()
			if p.ctx.Err() != nil {
				return
			}
			p.fail(err)
			return
		}

		c := chunk.Chunk{
			Data:          data,
			Buf:           buf,
			SamplingRate:  format.SamplingRate,
			Channels:      format.Channels,
			BitsPerSample: format.BitsPerSample,
		}
		if !p.sched.TryPost(func() { p.deliver(c) }) {
			// Scheduler's task queue is full: the same ResourceExhausted
			// lossy path, now triggered by downstream congestion instead of
			// pool exhaustion.
			c.Release()
			if p.logger != nil {
				p.logger.Warn("scheduler queue full, dropping chunk",
					"device", p.source.DeviceName(), "rate", format.SamplingRate)
			}
		}
	}
}

func (p *Pipeline) fail(err error) {
	if p.logger != nil {
		p.logger.Error("capture device failed, terminating pipeline",
			"device", p.source.DeviceName(), "error", err)
	}
	format := p.source.Format()
	eos := chunk.Chunk{
		SamplingRate:  format.SamplingRate,
		Channels:      format.Channels,
		BitsPerSample: format.BitsPerSample,
		EndOfStream:   true,
	}
	p.sched.Post(func() { p.deliver(eos) })
}

// Stop halts the capture goroutine and closes the underlying source. Safe to
// call once Start has returned; blocks until the capture goroutine exits.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	p.cancel()
	p.wg.Wait()
	if err := p.source.Close(); err != nil && p.logger != nil {
		p.logger.Warn("error closing capture source", "device", p.source.DeviceName(), "error", streamerr.Device("pipeline", err))
	}
}
