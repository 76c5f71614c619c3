package discovery

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sam0402/slimstreamer/internal/buffer"
)

func TestNewHousekeeper_InvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	_, err := NewHousekeeper("not a schedule", logger)
	if err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

func TestHousekeeper_ReportsWatchedPools(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h, err := NewHousekeeper("@every 1s", logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool := buffer.New(4, 128)
	h.Watch("rate-44100", pool)

	h.Start()
	defer h.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "rate-44100") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected a housekeeping report mentioning the watched pool, got: %s", buf.String())
}
