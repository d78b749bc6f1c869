// Package supervisor periodically reconnects bridges whose frame is loaded
// but whose handshake failed or whose channel was dropped by the frame.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/crystaldolphin/busbridge/internal/bridge"
	"github.com/crystaldolphin/busbridge/internal/loop"
)

// DefaultSchedule is used when no schedule is configured.
const DefaultSchedule = "@every 30s"

// Target is a bridge the supervisor can reconnect.
type Target interface {
	Name() string
	State() bridge.State
	// WantsConnection is false for bridges disconnected on purpose.
	WantsConnection() bool
	Connect()
}

// Service runs the reconnect check on a cron schedule.
type Service struct {
	schedule string
	d        loop.Dispatcher
	logger   *slog.Logger
	robfig   *robfigcron.Cron

	mu      sync.Mutex
	targets []Target
}

// NewService creates a supervisor whose checks run on d.
// schedule is a standard cron expression or descriptor such as "@every 30s";
// empty means DefaultSchedule.
func NewService(schedule string, d loop.Dispatcher, logger *slog.Logger) *Service {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		schedule: schedule,
		d:        d,
		logger:   logger,
		robfig:   robfigcron.New(),
	}
}

// Register adds t to the set of supervised bridges.
func (s *Service) Register(t Target) {
	s.mu.Lock()
	s.targets = append(s.targets, t)
	s.mu.Unlock()
}

// Start schedules the check and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	sched, err := robfigcron.ParseStandard(s.schedule)
	if err != nil {
		return fmt.Errorf("supervisor: parse schedule %q: %w", s.schedule, err)
	}
	s.robfig.Schedule(sched, robfigcron.FuncJob(func() { s.d.Post(func() { s.Check() }) }))
	s.robfig.Start()
	s.logger.Info("supervisor: started", "schedule", s.schedule)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	s.logger.Info("supervisor: stopped")
	return ctx.Err()
}

// Check reconnects every registered bridge that is loaded and wants a
// connection but does not have one, and returns how many it retried.
// Bridges left disconnected by Disconnect are not touched. It must run on
// the loop.
func (s *Service) Check() int {
	s.mu.Lock()
	targets := make([]Target, len(s.targets))
	copy(targets, s.targets)
	s.mu.Unlock()

	n := 0
	for _, t := range targets {
		if t.State() != bridge.StateLoaded || !t.WantsConnection() {
			continue
		}
		s.logger.Info("supervisor: reconnecting bridge", "bridge", t.Name())
		t.Connect()
		n++
	}
	return n
}
