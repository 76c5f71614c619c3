// Package config loads and validates the YAML configuration file that
// drives the streamer: capture rates and devices, buffer/writer sizing,
// listener addresses, optional TLS, and the optional discovery/housekeeping/
// debug-archive side services.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full streamer configuration.
type Config struct {
	Control     ListenConfig       `yaml:"control"`
	Streaming   ListenConfig       `yaml:"streaming"`
	TLS         TLSConfig          `yaml:"tls"`
	Capture     CaptureConfig      `yaml:"capture"`
	BufferPool  BufferPoolConfig   `yaml:"buffer_pool"`
	Writer      WriterConfig       `yaml:"writer"`
	Discovery   DiscoveryConfig    `yaml:"discovery"`
	Housekeeper HousekeeperConfig  `yaml:"housekeeping"`
	Stats       StatsConfig        `yaml:"stats"`
	DebugArchive DebugArchiveConfig `yaml:"debug_archive"`
	Logging     LoggingInfo        `yaml:"logging"`
	Encoding    EncodingConfig     `yaml:"encoding"`
}

// EncodingConfig selects the Encoder every HTTPStreamingSession is built
// with. One Streamer serves one wire format at a time; Format is one of
// "wav", "gzip", "zstd".
type EncodingConfig struct {
	Format string `yaml:"format"`
}

// ListenConfig is a bare TCP listen address.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// TLSConfig optionally wraps a listener in TLS. CACert is optional; when
// set, mutual TLS is required (see pki.NewServerTLSConfig).
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
	CACert  string `yaml:"ca_cert"`
}

// CaptureConfig lists the sampling rates this instance captures and serves.
// Devices optionally overrides the built-in rate->device-name table
// (capture.DefaultDeviceTable) per rate.
type CaptureConfig struct {
	Rates           []uint32          `yaml:"rates"`
	Devices         map[uint32]string `yaml:"devices"`
	ChunkDurationMS int               `yaml:"chunk_duration_ms"`
}

// BufferPoolConfig sizes the fixed-buffer pool shared by every Pipeline.
type BufferPoolConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// WriterConfig sizes each client's async write queue and optional bitrate
// cap.
type WriterConfig struct {
	QueueDepth        int    `yaml:"queue_depth"`
	MaxBytesPerSec    string `yaml:"max_bytes_per_sec"` // e.g. "256kb"; empty = uncapped
	MaxBytesPerSecRaw int64  `yaml:"-"`
}

// DiscoveryConfig configures the UDP beacon announcing this instance.
type DiscoveryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BroadcastAddress string `yaml:"broadcast_address"`
	Schedule         string `yaml:"schedule"`
	ControlPort      int    `yaml:"control_port"`
	StreamingPort    int    `yaml:"streaming_port"`
}

// HousekeeperConfig configures periodic buffer/queue occupancy logging.
type HousekeeperConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// StatsConfig configures periodic host resource sampling.
type StatsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DebugArchiveConfig optionally archives raw captured PCM to S3 for offline
// debugging.
type DebugArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SnapshotSize    string `yaml:"snapshot_size"` // e.g. "8mb"
	SnapshotSizeRaw int64  `yaml:"-"`
}

// LoggingInfo configures the process-wide logger.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Control.Address == "" {
		return fmt.Errorf("control.address is required")
	}
	if c.Streaming.Address == "" {
		return fmt.Errorf("streaming.address is required")
	}

	if len(c.Capture.Rates) == 0 {
		return fmt.Errorf("capture.rates must have at least one entry")
	}
	for _, rate := range c.Capture.Rates {
		if rate == 0 {
			return fmt.Errorf("capture.rates entries must be non-zero")
		}
	}
	if c.Capture.ChunkDurationMS <= 0 {
		c.Capture.ChunkDurationMS = 100
	}

	if c.BufferPool.PoolSize <= 0 {
		c.BufferPool.PoolSize = 32
	}

	if c.Writer.QueueDepth <= 0 {
		c.Writer.QueueDepth = 128
	}
	if c.Writer.MaxBytesPerSec != "" {
		parsed, err := ParseByteSize(c.Writer.MaxBytesPerSec)
		if err != nil {
			return fmt.Errorf("writer.max_bytes_per_sec: %w", err)
		}
		c.Writer.MaxBytesPerSecRaw = parsed
	}

	if c.TLS.Enabled {
		if c.TLS.Cert == "" {
			return fmt.Errorf("tls.cert is required when tls is enabled")
		}
		if c.TLS.Key == "" {
			return fmt.Errorf("tls.key is required when tls is enabled")
		}
	}

	if c.Discovery.Enabled {
		if c.Discovery.BroadcastAddress == "" {
			return fmt.Errorf("discovery.broadcast_address is required when discovery is enabled")
		}
		if c.Discovery.Schedule == "" {
			c.Discovery.Schedule = "@every 5s"
		}
		if c.Discovery.ControlPort == 0 {
			return fmt.Errorf("discovery.control_port is required when discovery is enabled")
		}
		if c.Discovery.StreamingPort == 0 {
			return fmt.Errorf("discovery.streaming_port is required when discovery is enabled")
		}
	}

	if c.Housekeeper.Enabled && c.Housekeeper.Schedule == "" {
		c.Housekeeper.Schedule = "@every 30s"
	}

	if c.Stats.Enabled && c.Stats.Interval <= 0 {
		c.Stats.Interval = 15 * time.Second
	}

	if c.DebugArchive.Enabled {
		if c.DebugArchive.Bucket == "" {
			return fmt.Errorf("debug_archive.bucket is required when debug_archive is enabled")
		}
		if c.DebugArchive.SnapshotSize == "" {
			c.DebugArchive.SnapshotSize = "8mb"
		}
		parsed, err := ParseByteSize(c.DebugArchive.SnapshotSize)
		if err != nil {
			return fmt.Errorf("debug_archive.snapshot_size: %w", err)
		}
		c.DebugArchive.SnapshotSizeRaw = parsed
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	switch c.Encoding.Format {
	case "":
		c.Encoding.Format = "wav"
	case "wav", "gzip", "zstd":
	default:
		return fmt.Errorf("encoding.format must be one of wav, gzip, zstd (got %q)", c.Encoding.Format)
	}

	return nil
}

// DeviceTable merges capture.Rates against any per-rate device name
// overrides, falling back to the given defaults for any rate that isn't
// overridden. Returns an error if a configured rate has no default and no
// override.
func (c *Config) DeviceTable(defaults map[uint32]string) (map[uint32]string, error) {
	out := make(map[uint32]string, len(c.Capture.Rates))
	for _, rate := range c.Capture.Rates {
		if name, ok := c.Capture.Devices[rate]; ok {
			out[rate] = name
			continue
		}
		name, ok := defaults[rate]
		if !ok {
			return nil, fmt.Errorf("capture.rates: no device name for rate %d (configure capture.devices)", rate)
		}
		out[rate] = name
	}
	return out, nil
}

// ParseByteSize converts human-readable strings like "256mb", "1gb" into
// bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longest suffix first so "mb" doesn't match as "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}

// ResolveBroadcastAddr validates discovery.broadcast_address is a usable UDP
// address, surfacing a config-time error instead of failing at Announcer
// construction.
func (c *Config) ResolveBroadcastAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", c.Discovery.BroadcastAddress)
}
