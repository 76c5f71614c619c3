// Package capture defines the CaptureSource contract (§6) and a paced
// file-backed implementation usable without real ALSA hardware. A live
// device driver implements the same Source interface; Pipeline never knows
// the difference.
package capture

import "context"

// Format describes the PCM layout a Source produces: signed little-endian
// samples, the channel count and sample width negotiated with the device.
// The original SlimStreamer always captured 32-bit LE PCM (§ supplemented
// features, SND_PCM_FORMAT_S32_LE) which is carried here as the default.
type Format struct {
	SamplingRate  uint32
	Channels      uint8
	BitsPerSample uint8
}

// BytesPerFrame is the byte width of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return int(f.Channels) * int(f.BitsPerSample) / 8
}

// Source is one rate-specific capture device (§6: "Capture device: name
// string, 32-bit LE signed PCM, channel count, frames-per-chunk, whole-chunk
// reads with retry on partial read"). Pipeline owns exactly one Source.
type Source interface {
	// DeviceName identifies the underlying device, e.g. "hw:1,1,1".
	DeviceName() string
	Format() Format
	// FramesPerChunk is the frame count Pipeline expects from each ReadChunk,
	// derived from the configured chunk duration and this Source's rate.
	FramesPerChunk() int
	// ReadChunk fills buf (sized FramesPerChunk()*Format().BytesPerFrame())
	// with exactly one chunk's worth of PCM, retrying internally on short
	// reads. A non-nil error is always a DeviceError: Pipeline terminates.
	ReadChunk(ctx context.Context, buf []byte) error
	Close() error
}

// DeviceSpec binds one supported sampling rate to a device name, restoring
// the device table SlimStreamer.cpp::createPipelines built at startup.
type DeviceSpec struct {
	Rate       uint32
	DeviceName string
}

// DefaultChunkDurationMS is the fixed chunk duration the original service
// used for every rate (chunkDurationMilliSecond{100}).
const DefaultChunkDurationMS = 100

// DefaultFormat is the PCM layout every default device captures at:
// 32-bit signed little-endian, stereo.
var DefaultFormat = Format{Channels: 2, BitsPerSample: 32}

// DefaultDeviceTable restores the literal rate-to-device binding from
// SlimStreamer.cpp::createPipelines: thirteen supported rates, each bound to
// an ALSA-style hardware device name.
func DefaultDeviceTable() []DeviceSpec {
	return []DeviceSpec{
		{5512, "hw:1,1,1"},
		{8000, "hw:1,1,2"},
		{11025, "hw:1,1,3"},
		{16000, "hw:1,1,4"},
		{22050, "hw:1,1,5"},
		{32000, "hw:1,1,6"},
		{44100, "hw:1,1,7"},
		{48000, "hw:2,1,1"},
		{64000, "hw:2,1,2"},
		{88200, "hw:2,1,3"},
		{96000, "hw:2,1,4"},
		{176400, "hw:2,1,5"},
		{192000, "hw:2,1,6"},
	}
}

// FramesForDuration converts a chunk duration in milliseconds to a frame
// count at the given sampling rate.
func FramesForDuration(rate uint32, durationMS int) int {
	return int(int64(rate) * int64(durationMS) / 1000)
}
