package encoder

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestWAVEncoder_HeaderThenPassthrough(t *testing.T) {
	var got bytes.Buffer
	enc := NewWAVEncoder(2, 44100, 32, func(b []byte) { got.Write(b) })

	if err := enc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !enc.IsRunning() {
		t.Fatalf("expected running after Start")
	}

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := enc.Encode(payload); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if got.Len() != 44+len(payload) {
		t.Fatalf("expected header(44) + payload(%d) = %d bytes, got %d", len(payload), 44+len(payload), got.Len())
	}
	header := got.Bytes()[:44]
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Fatalf("malformed RIFF header: %x", header[:12])
	}

	done := false
	if err := enc.Stop(func() { done = true }); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !done {
		t.Fatalf("expected onDone to be invoked")
	}
	if enc.IsRunning() {
		t.Fatalf("expected not running after Stop")
	}
}

func TestWAVEncoder_EncodeRejectedWhileStopping(t *testing.T) {
	var got bytes.Buffer
	enc := NewWAVEncoder(1, 8000, 16, func(b []byte) { got.Write(b) })
	enc.Start()
	got.Reset()

	enc.(*WAVEncoder).beginStop() // simulate mid-stop without finishing
	if err := enc.Encode([]byte{9, 9}); err != nil {
		t.Fatalf("Encode during Stopping should not error: %v", err)
	}
	if got.Len() != 0 {
		t.Fatalf("expected Encode to be silently rejected while Stopping, got %d bytes", got.Len())
	}
}

func TestWAVEncoder_StopIsIdempotent(t *testing.T) {
	enc := NewWAVEncoder(1, 8000, 16, func(b []byte) {})
	enc.Start()

	calls := 0
	enc.Stop(func() { calls++ })
	enc.Stop(func() { calls++ }) // stopped session: cb fires immediately
	if calls != 2 {
		t.Fatalf("expected onDone called once per Stop invocation, got %d", calls)
	}
}

func TestGzipEncoder_RoundTrips(t *testing.T) {
	var got bytes.Buffer
	enc := NewGzipEncoder(2, 44100, 32, func(b []byte) { got.Write(b) })
	enc.Start()

	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 4096)
	enc.Encode(payload)

	done := make(chan struct{})
	enc.Stop(func() { close(done) })
	<-done

	zr, err := gzip.NewReader(&got)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer zr.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(zr); err != nil {
		t.Fatalf("reading gzip stream: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", out.Len(), len(payload))
	}
}

func TestZstdEncoder_RoundTrips(t *testing.T) {
	var got bytes.Buffer
	enc := NewZstdEncoder(2, 48000, 16, func(b []byte) { got.Write(b) })
	enc.Start()

	payload := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 2048)
	enc.Encode(payload)

	done := make(chan struct{})
	enc.Stop(func() { close(done) })
	<-done

	zr, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer zr.Close()
	out, err := zr.DecodeAll(got.Bytes(), nil)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(out), len(payload))
	}
}
