// Package slimstreamer wires every CORE component (capture, pipeline,
// streamer, control/data accept loops) and the optional side services
// (discovery beacon, housekeeping, stats, debug archive) into one running
// service, the same way the teacher's internal/server.Run assembles a
// listener, a handler and its background goroutines behind one call.
package slimstreamer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sam0402/slimstreamer/internal/buffer"
	"github.com/sam0402/slimstreamer/internal/capture"
	"github.com/sam0402/slimstreamer/internal/chunk"
	"github.com/sam0402/slimstreamer/internal/config"
	"github.com/sam0402/slimstreamer/internal/debugsink"
	"github.com/sam0402/slimstreamer/internal/discovery"
	"github.com/sam0402/slimstreamer/internal/encoder"
	"github.com/sam0402/slimstreamer/internal/pipeline"
	"github.com/sam0402/slimstreamer/internal/pki"
	"github.com/sam0402/slimstreamer/internal/scheduler"
	"github.com/sam0402/slimstreamer/internal/slimproto"
	"github.com/sam0402/slimstreamer/internal/streamsvc"
)

// acceptBackoffCap bounds the delay applied after consecutive Accept
// errors, matching the teacher's server.go accept loop.
const acceptBackoffCap = 5 * time.Second

// Run builds the full service from cfg and blocks until ctx is cancelled,
// then drains every client and stops every background goroutine before
// returning.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		cfgTLS, tlsErr := pki.NewServerTLSConfig(cfg.TLS.Cert, cfg.TLS.Key, cfg.TLS.CACert)
		if tlsErr != nil {
			return fmt.Errorf("configuring TLS: %w", tlsErr)
		}
		tlsCfg = cfgTLS
	}

	controlLn, err := listen(cfg.Control.Address, tlsCfg)
	if err != nil {
		return fmt.Errorf("listening on control address %s: %w", cfg.Control.Address, err)
	}
	defer controlLn.Close()

	streamingLn, err := listen(cfg.Streaming.Address, tlsCfg)
	if err != nil {
		return fmt.Errorf("listening on streaming address %s: %w", cfg.Streaming.Address, err)
	}
	defer streamingLn.Close()

	logger.Info("slimstreamer listening",
		"control", cfg.Control.Address, "streaming", cfg.Streaming.Address, "tls", cfg.TLS.Enabled)

	sched := scheduler.New(256)
	sched.Start()
	defer sched.Stop()

	builder := encoderBuilder(cfg.Encoding.Format)
	streamer := streamsvc.New(sched, builder, cfg.Writer.QueueDepth, cfg.Writer.MaxBytesPerSecRaw, logger)

	pools, err := wirePipelines(cfg, sched, streamer, logger)
	if err != nil {
		return err
	}

	if cfg.DebugArchive.Enabled {
		archiver, archErr := debugsink.New(ctx, debugsink.Config{
			Bucket:          cfg.DebugArchive.Bucket,
			Prefix:          cfg.DebugArchive.Prefix,
			Region:          cfg.DebugArchive.Region,
			AccessKeyID:     cfg.DebugArchive.AccessKeyID,
			SecretAccessKey: cfg.DebugArchive.SecretAccessKey,
		}, int(cfg.DebugArchive.SnapshotSizeRaw), logger)
		if archErr != nil {
			return fmt.Errorf("configuring debug archive: %w", archErr)
		}
		streamer.SetDebugTap(func(c chunk.Chunk) { archiver.Observe(ctx, c) })
	}

	var announcer *discovery.Announcer
	if cfg.Discovery.Enabled {
		host, _, splitErr := net.SplitHostPort(cfg.Control.Address)
		if splitErr != nil || host == "" || host == "0.0.0.0" {
			host = "0.0.0.0"
		}
		beacon := discovery.Beacon{
			Host:          host,
			ControlPort:   cfg.Discovery.ControlPort,
			StreamingPort: cfg.Discovery.StreamingPort,
		}
		announcer, err = discovery.NewAnnouncer(beacon, cfg.Discovery.BroadcastAddress, cfg.Discovery.Schedule, logger)
		if err != nil {
			return fmt.Errorf("configuring discovery announcer: %w", err)
		}
		announcer.Start()
		defer announcer.Stop()
	}

	var housekeeper *discovery.Housekeeper
	if cfg.Housekeeper.Enabled {
		housekeeper, err = discovery.NewHousekeeper(cfg.Housekeeper.Schedule, logger)
		if err != nil {
			return fmt.Errorf("configuring housekeeper: %w", err)
		}
		for rate, pool := range pools {
			housekeeper.Watch(fmt.Sprintf("rate-%d", rate), pool)
		}
		housekeeper.Start()
		defer housekeeper.Stop()
	}

	var statsReporter *streamsvc.StatsReporter
	if cfg.Stats.Enabled {
		statsReporter = streamsvc.NewStatsReporter(streamer, cfg.Stats.Interval, logger)
		statsReporter.Start()
		defer statsReporter.Stop()
	}

	streamer.Start()
	defer streamer.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptControl(ctx, controlLn, cfg, sched, streamer, logger)
	}()
	go func() {
		defer wg.Done()
		acceptStreaming(ctx, streamingLn, streamer, logger)
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down slimstreamer")
		controlLn.Close()
		streamingLn.Close()
	}()

	wg.Wait()
	return nil
}

func listen(address string, tlsCfg *tls.Config) (net.Listener, error) {
	if tlsCfg != nil {
		return tls.Listen("tcp", address, tlsCfg)
	}
	return net.Listen("tcp", address)
}

// wirePipelines builds one silence-backed capture Source and Pipeline per
// configured rate, each over its own buffer.Pool sized for that rate's
// chunk, and registers every Pipeline with streamer.
func wirePipelines(cfg *config.Config, sched *scheduler.Scheduler, streamer *streamsvc.Streamer, logger *slog.Logger) (map[uint32]*buffer.Pool, error) {
	defaults := make(map[uint32]string, len(capture.DefaultDeviceTable()))
	for _, spec := range capture.DefaultDeviceTable() {
		defaults[spec.Rate] = spec.DeviceName
	}
	devices, err := cfg.DeviceTable(defaults)
	if err != nil {
		return nil, err
	}

	pools := make(map[uint32]*buffer.Pool, len(cfg.Capture.Rates))
	for _, rate := range cfg.Capture.Rates {
		format := capture.DefaultFormat
		format.SamplingRate = rate

		framesPerChunk := capture.FramesForDuration(rate, cfg.Capture.ChunkDurationMS)
		src := capture.NewSilenceSource(devices[rate], format, framesPerChunk)

		bufSize := framesPerChunk * format.BytesPerFrame()
		pool := buffer.New(cfg.BufferPool.PoolSize, bufSize)
		pools[rate] = pool

		p := pipeline.New(src, pool, sched, nil, logger)
		streamer.AddPipeline(p)
	}
	return pools, nil
}

func encoderBuilder(format string) encoder.Builder {
	switch format {
	case "gzip":
		return encoder.NewGzipEncoder
	case "zstd":
		return encoder.NewZstdEncoder
	default:
		return encoder.NewWAVEncoder
	}
}

// clientIDFromConn derives a SlimProto client identifier from the
// connecting socket's remote address. The wire protocol's HELO frame would
// normally carry the player's own identifier; until that parsing exists,
// the remote host stands in for it. It is unique per player only while each
// player connects from its own address; players sharing one address (e.g.
// behind NAT) get the same ID.
func clientIDFromConn(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.ReplaceAll(addr, "/", "-")
	}
	return host
}

func acceptControl(ctx context.Context, ln net.Listener, cfg *config.Config, sched *scheduler.Scheduler, streamer *streamsvc.Streamer, logger *slog.Logger) {
	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				consecutiveErrors++
				logger.Error("accepting control connection", "error", err, "consecutive_errors", consecutiveErrors)
				backoffAndContinue(&consecutiveErrors)
				continue
			}
		}
		consecutiveErrors = 0
		go handleControlConn(conn, cfg, sched, streamer, logger)
	}
}

func acceptStreaming(ctx context.Context, ln net.Listener, streamer *streamsvc.Streamer, logger *slog.Logger) {
	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				consecutiveErrors++
				logger.Error("accepting streaming connection", "error", err, "consecutive_errors", consecutiveErrors)
				backoffAndContinue(&consecutiveErrors)
				continue
			}
		}
		consecutiveErrors = 0
		go func() {
			if err := streamer.AttachHTTP(conn); err != nil {
				logger.Warn("streaming attach failed", "error", err)
			}
		}()
	}
}

func backoffAndContinue(consecutiveErrors *int) {
	if *consecutiveErrors <= 5 {
		return
	}
	delay := time.Duration(*consecutiveErrors) * 100 * time.Millisecond
	if delay > acceptBackoffCap {
		delay = acceptBackoffCap
	}
	time.Sleep(delay)
}

// handleControlConn runs one player's SlimProto control session: it derives
// a clientID, sends the connect-time command sequence, registers the
// resulting Client with streamer at the configured default rate, and tells
// the player to open its data channel.
func handleControlConn(conn net.Conn, cfg *config.Config, sched *scheduler.Scheduler, streamer *streamsvc.Streamer, logger *slog.Logger) {
	clientID := clientIDFromConn(conn)
	sessionLogger := logger.With("client", clientID)

	session := slimproto.NewSession(conn, sessionLogger)
	client := streamsvc.NewClient(clientID, session)
	client.SetSelectedRate(cfg.Capture.Rates[0])

	session.SetOnStat(func(stat slimproto.STAT) {
		sessionLogger.Debug("slimproto stat", "event", string(stat.Event[:]))
	})
	session.SetOnProtocolError(func(err error) {
		sessionLogger.Warn("control session terminated", "error", err)
		sched.Post(func() { streamer.RemoveClient(clientID) })
	})

	if err := session.Start(); err != nil {
		sessionLogger.Warn("control handshake failed", "error", err)
		conn.Close()
		return
	}

	sched.Post(func() { streamer.RegisterClient(client) })

	if err := session.SendStreamStart(); err != nil {
		sessionLogger.Warn("failed to start stream", "error", err)
	}
}
