package discovery

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/sam0402/slimstreamer/internal/buffer"
)

// Housekeeper periodically logs BufferPool occupancy for every registered
// pool, cron-scheduled like Announcer so both share the same schedule
// syntax and the teacher's one-cron-per-job wiring style.
type Housekeeper struct {
	cron   *cron.Cron
	logger *slog.Logger
	pools  map[string]*buffer.Pool
}

// NewHousekeeper builds a Housekeeper reporting on schedule (standard cron
// syntax, e.g. "@every 30s").
func NewHousekeeper(schedule string, logger *slog.Logger) (*Housekeeper, error) {
	h := &Housekeeper{
		cron:   cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
		logger: logger,
		pools:  make(map[string]*buffer.Pool),
	}
	if _, err := h.cron.AddFunc(schedule, h.report); err != nil {
		return nil, err
	}
	return h, nil
}

// Watch registers a named pool to be reported on each tick.
func (h *Housekeeper) Watch(name string, p *buffer.Pool) {
	h.pools[name] = p
}

func (h *Housekeeper) report() {
	for name, p := range h.pools {
		h.logger.Info("buffer pool occupancy",
			"pool", name,
			"available", p.Available(),
			"capacity", p.Capacity(),
			"buffer_size", p.BufferSize(),
		)
	}
}

// Start begins the cron-scheduled reporting loop.
func (h *Housekeeper) Start() { h.cron.Start() }

// Stop halts reporting.
func (h *Housekeeper) Stop() { <-h.cron.Stop().Done() }
