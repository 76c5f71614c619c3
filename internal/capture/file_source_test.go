package capture

import (
	"bytes"
	"context"
	"testing"
)

func TestDefaultDeviceTable_HasThirteenDistinctRates(t *testing.T) {
	table := DefaultDeviceTable()
	if len(table) != 13 {
		t.Fatalf("expected 13 supported rates, got %d", len(table))
	}
	seenRates := map[uint32]bool{}
	for _, d := range table {
		if seenRates[d.Rate] {
			t.Fatalf("duplicate rate %d in device table", d.Rate)
		}
		seenRates[d.Rate] = true
	}
}

func TestFramesForDuration(t *testing.T) {
	if got := FramesForDuration(44100, 100); got != 4410 {
		t.Fatalf("expected 4410 frames for 44100Hz/100ms, got %d", got)
	}
}

func TestFileSource_ReadChunkLoopsOnEOF(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8} // 2 frames of stereo 32-bit
	format := Format{SamplingRate: 1000000, Channels: 2, BitsPerSample: 32}
	src := NewFileSource("hw:test", format, 2, bytes.NewReader(payload))

	var first [8]byte
	if err := src.ReadChunk(context.Background(), first[:]); err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if !bytes.Equal(first[:], payload) {
		t.Fatalf("expected first chunk to equal source payload, got %v", first)
	}

	var second [8]byte
	if err := src.ReadChunk(context.Background(), second[:]); err != nil {
		t.Fatalf("ReadChunk after loop: %v", err)
	}
	if !bytes.Equal(second[:], payload) {
		t.Fatalf("expected looped chunk to equal source payload again, got %v", second)
	}
}

func TestFileSource_ReadChunkHandlesShortUnderlyingReads(t *testing.T) {
	format := Format{SamplingRate: 1000000, Channels: 1, BitsPerSample: 8}
	src := NewFileSource("hw:test", format, 4, &stutteringReader{data: []byte{9, 8, 7, 6}})

	var buf [4]byte
	if err := src.ReadChunk(context.Background(), buf[:]); err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if !bytes.Equal(buf[:], []byte{9, 8, 7, 6}) {
		t.Fatalf("expected assembled chunk from short reads, got %v", buf)
	}
}

// stutteringReader returns at most one byte per Read call before looping,
// exercising ReadChunk's partial-read retry loop.
type stutteringReader struct {
	data []byte
	pos  int
}

func (r *stutteringReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		r.pos = 0
		return 0, nil
	}
	n := copy(p[:1], r.data[r.pos:r.pos+1])
	r.pos += n
	return n, nil
}
