package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Janitor periodically sweeps expired entries out of a MemoryStore so keys
// nobody reads again do not pile up.
type Janitor struct {
	cron *cron.Cron
}

// NewJanitor schedules Sweep using a cron spec such as "@every 1m".
func NewJanitor(mem *MemoryStore, schedule string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if n := mem.Sweep(); n > 0 {
			logger.Debug("swept expired keys", "count", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	return &Janitor{cron: c}, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
