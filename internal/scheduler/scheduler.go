// Package scheduler runs periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/chris/whispr/internal/bridge"
)

// Sweeper is the part of bridge.Manager the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context, ttl time.Duration) (bridge.SweepResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	ttl     time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	lastRun time.Time
}

func New(sweeper Sweeper, ttl time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		ttl:     ttl,
		logger:  logger,
	}
}

// Start registers the sweep under cronExpr and starts the cron runner.
func (s *Scheduler) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(cronExpr, func() { s.Sweep(context.Background()) })
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cronExpr, err)
	}
	s.entryID = id
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", cronExpr, "session_ttl", s.ttl)
	return nil
}

// Stop stops the cron runner and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NextRun reports when the sweep fires next, or the zero time if it is not
// scheduled.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Sweep evicts sessions idle for longer than the TTL.
func (s *Scheduler) Sweep(ctx context.Context) {
	start := time.Now()
	res, err := s.sweeper.Sweep(ctx, s.ttl)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}

	s.mu.Lock()
	prev := s.lastRun
	s.lastRun = start
	s.mu.Unlock()

	attrs := []any{"evicted", res.Evicted, "deleted", res.Deleted, "ttl", s.ttl}
	if !prev.IsZero() {
		attrs = append(attrs, "previous_sweep", humanize.Time(prev))
	}
	s.logger.Info("session sweep", attrs...)
}
