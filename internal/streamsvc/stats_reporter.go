package streamsvc

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats holds collected system metrics, sampled alongside service
// occupancy so operators can correlate host pressure with client/pipeline
// counts in one log line.
type HostStats struct {
	CPUPercent       float64
	MemoryPercent    float64
	DiskUsagePercent float64
	LoadAverage      float64
}

// StatsReporter periodically samples host resource usage and this
// Streamer's client/pipeline counts, logging both together.
type StatsReporter struct {
	st       *Streamer
	logger   *slog.Logger
	interval time.Duration

	close chan struct{}
	wg    sync.WaitGroup

	mu    sync.RWMutex
	stats HostStats
}

// NewStatsReporter builds a reporter sampling st every interval.
func NewStatsReporter(st *Streamer, interval time.Duration, logger *slog.Logger) *StatsReporter {
	return &StatsReporter{
		st:       st,
		logger:   logger.With("component", "stats_reporter"),
		interval: interval,
		close:    make(chan struct{}),
	}
}

// Start begins periodic sampling.
func (r *StatsReporter) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop halts sampling.
func (r *StatsReporter) Stop() {
	close(r.close)
	r.wg.Wait()
}

// Stats returns the most recently collected host metrics.
func (r *StatsReporter) Stats() HostStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *StatsReporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.collect()
	for {
		select {
		case <-r.close:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *StatsReporter) collect() {
	stats := HostStats{}

	if percentage, err := cpu.Percent(0, false); err == nil && len(percentage) > 0 {
		stats.CPUPercent = percentage[0]
	} else {
		r.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = v.UsedPercent
	} else {
		r.logger.Debug("failed to collect memory stats", "error", err)
	}

	if d, err := disk.Usage("/"); err == nil {
		stats.DiskUsagePercent = d.UsedPercent
	} else {
		r.logger.Debug("failed to collect disk stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		stats.LoadAverage = l.Load1
	} else {
		r.logger.Debug("failed to collect load stats", "error", err)
	}

	r.mu.Lock()
	r.stats = stats
	r.mu.Unlock()

	r.st.mu.Lock()
	clients := len(r.st.clients)
	pipelines := len(r.st.pipelines)
	r.st.mu.Unlock()

	r.logger.Info("host and service stats",
		"cpu_percent", stats.CPUPercent,
		"memory_percent", stats.MemoryPercent,
		"disk_percent", stats.DiskUsagePercent,
		"load1", stats.LoadAverage,
		"clients", clients,
		"pipelines", pipelines,
	)
}
