// Package discovery advertises this service on the network and periodically
// logs its internal occupancy, generalising the teacher's cron-scheduled
// BackupJob machinery (internal/agent/scheduler.go) from calendar-triggered
// backup runs to fixed-interval service housekeeping.
package discovery

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/robfig/cron/v3"
)

// Beacon is the discovery payload the CORE exposes (§6: "CORE exposes
// (host, controlPort, streamingPort), consumes nothing").
type Beacon struct {
	Host          string
	ControlPort   int
	StreamingPort int
}

func (b Beacon) String() string {
	return fmt.Sprintf("SlimStreamer %s %d %d", b.Host, b.ControlPort, b.StreamingPort)
}

// Announcer periodically broadcasts a Beacon over UDP, cron-scheduled like
// the teacher's BackupJob entries rather than a bare time.Ticker, so its
// cadence can be configured with the same schedule syntax the rest of the
// ambient stack uses.
type Announcer struct {
	cron   *cron.Cron
	conn   *net.UDPConn
	addr   *net.UDPAddr
	beacon Beacon
	logger *slog.Logger
}

// NewAnnouncer builds an Announcer broadcasting beacon to broadcastAddr
// (e.g. "255.255.255.255:3483") on schedule (standard cron syntax, e.g.
// "@every 5s").
func NewAnnouncer(beacon Beacon, broadcastAddr, schedule string, logger *slog.Logger) (*Announcer, error) {
	addr, err := net.ResolveUDPAddr("udp", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolving broadcast address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: opening broadcast socket: %w", err)
	}

	a := &Announcer{
		cron:   cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
		conn:   conn,
		addr:   addr,
		beacon: beacon,
		logger: logger,
	}
	if _, err := a.cron.AddFunc(schedule, a.announce); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: scheduling announce job: %w", err)
	}
	return a, nil
}

func (a *Announcer) announce() {
	if _, err := a.conn.Write([]byte(a.beacon.String())); err != nil {
		a.logger.Warn("discovery announce failed", "error", err)
	}
}

// Start begins the cron-scheduled broadcast loop.
func (a *Announcer) Start() { a.cron.Start() }

// Stop halts broadcasting and closes the socket.
func (a *Announcer) Stop() {
	<-a.cron.Stop().Done()
	a.conn.Close()
}
