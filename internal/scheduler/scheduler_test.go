package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chris/whispr/internal/bridge"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (f *fakeSweeper) Sweep(_ context.Context, ttl time.Duration) (bridge.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ttl)
	return bridge.SweepResult{Evicted: 1}, f.err
}

func TestSweep_PassesTTL(t *testing.T) {
	fs := &fakeSweeper{}
	s := New(fs, 6*time.Hour, nil)

	s.Sweep(context.Background())
	s.Sweep(context.Background())

	if len(fs.calls) != 2 || fs.calls[0] != 6*time.Hour {
		t.Errorf("unexpected sweep calls %v", fs.calls)
	}
	if s.lastRun.IsZero() {
		t.Error("expected last run recorded")
	}
}

func TestSweep_ErrorDoesNotRecordRun(t *testing.T) {
	fs := &fakeSweeper{err: errors.New("db locked")}
	s := New(fs, time.Hour, nil)
	s.Sweep(context.Background())
	if !s.lastRun.IsZero() {
		t.Error("failed sweep should not count as a run")
	}
}

func TestStart_InvalidCron(t *testing.T) {
	s := New(&fakeSweeper{}, time.Hour, nil)
	if err := s.Start("not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	if !s.NextRun().IsZero() {
		t.Error("expected no scheduled run")
	}
}

func TestStart_SchedulesSweep(t *testing.T) {
	s := New(&fakeSweeper{}, time.Hour, nil)
	if err := s.Start("*/15 * * * *"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	// The cron runner computes the next time asynchronously after Start.
	deadline := time.Now().Add(2 * time.Second)
	for s.NextRun().IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	next := s.NextRun()
	if next.IsZero() {
		t.Fatal("expected a scheduled run")
	}
	if until := time.Until(next); until > 15*time.Minute || until < 0 {
		t.Errorf("next run %v is not within 15 minutes", next)
	}
	if next.Minute()%15 != 0 {
		t.Errorf("expected a quarter-hour boundary, got %v", next)
	}
}
