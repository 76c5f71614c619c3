// Package debugsink optionally archives raw captured PCM to S3 for offline
// debugging, generalising the teacher's tar/gzip/sha256-while-copy Stream
// pipeline (internal/agent/streamer.go) from a full filesystem backup run to
// periodic fixed-size PCM snapshots.
package debugsink

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sam0402/slimstreamer/internal/chunk"
)

// SnapshotResult mirrors the teacher's StreamResult: the checksum and size
// of one archived snapshot, as confirmation for callers that want to log it.
type SnapshotResult struct {
	Key      string
	Checksum [32]byte
	Size     int
}

// Config configures the S3 debug archiver. Region/AccessKeyID/SecretKey are
// optional; when empty, the SDK falls back to its default credential chain.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Archiver buffers captured chunks for one capture rate and periodically
// gzips a snapshot up to S3, computing a SHA-256 inline over the compressed
// stream the same way Stream() does over its tar/gzip pipeline.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger

	buf bytes.Buffer
	max int
}

// New builds an Archiver from cfg. snapshotBytes is how much PCM is
// buffered before Observe uploads a snapshot.
func New(ctx context.Context, cfg Config, snapshotBytes int, logger *slog.Logger) (*Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("debugsink: loading aws config: %w", err)
	}
	return &Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
		max:    snapshotBytes,
	}, nil
}

// Observe appends a captured chunk's raw PCM to the pending snapshot,
// flushing to S3 once the buffer reaches its configured size.
func (a *Archiver) Observe(ctx context.Context, c chunk.Chunk) {
	if c.EndOfStream || len(c.Data) == 0 {
		return
	}
	a.buf.Write(c.Data)
	if a.buf.Len() >= a.max {
		if _, err := a.flush(ctx, c.SamplingRate); err != nil && a.logger != nil {
			a.logger.Warn("debug snapshot upload failed", "error", err)
		}
	}
}

func (a *Archiver) flush(ctx context.Context, rate uint32) (*SnapshotResult, error) {
	raw := a.buf.Bytes()
	a.buf.Reset()
	if len(raw) == 0 {
		return nil, nil
	}

	var compressed bytes.Buffer
	hasher := sha256.New()
	tee := io.MultiWriter(&compressed, hasher)

	gz := gzip.NewWriter(tee)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("debugsink: compressing snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("debugsink: closing gzip writer: %w", err)
	}

	var checksum [32]byte
	copy(checksum[:], hasher.Sum(nil))

	key := fmt.Sprintf("%s/%d-%x.pcm.gz", a.prefix, rate, checksum[:8])
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(compressed.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("debugsink: uploading snapshot: %w", err)
	}

	return &SnapshotResult{Key: key, Checksum: checksum, Size: compressed.Len()}, nil
}

// Flush forces any buffered PCM out as a snapshot, ignoring the size
// threshold. The service itself does not call it, so PCM still buffered at
// shutdown is not uploaded.
func (a *Archiver) Flush(ctx context.Context, rate uint32) (*SnapshotResult, error) {
	return a.flush(ctx, rate)
}

// flushInterval is the default periodic forced-flush cadence when the
// owning caller wants time-bounded snapshots regardless of fill level.
const flushInterval = 30 * time.Second

// FlushInterval returns the default periodic flush cadence.
func FlushInterval() time.Duration { return flushInterval }
