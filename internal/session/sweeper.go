package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Registry.Sweep on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	registry *Registry
	logger   *slog.Logger
}

// NewSweeper schedules sweeps of registry. The schedule accepts standard cron
// expressions and descriptors such as "@every 10m".
func NewSweeper(registry *Registry, schedule string, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:     cron.New(),
		registry: registry,
		logger:   logger.With("component", "session_sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("session sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("sweeper stop timed out")
	}
}

func (s *Sweeper) run() {
	evicted := s.registry.Sweep(context.Background(), s.registry.now())
	if evicted > 0 {
		s.logger.Info("evicted expired sessions", "count", evicted)
	}
}
