// Package schedule runs the daily check-in on a cron expression. The loop
// polls once a minute instead of arming timers, so clock jumps and laptop
// sleep cannot silently drop a day.
package schedule

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the check-in run according to a cron expression
type Scheduler struct {
	expr    string
	parser  cron.Parser
	mu      sync.RWMutex
	lastRun time.Time
	running bool
}

// New creates a Scheduler and validates the expression up front
func New(expr string) (*Scheduler, error) {
	s := &Scheduler{
		expr:   expr,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
	if _, err := s.parser.Parse(expr); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseCron validates a cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled fire time
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, err := s.parser.Parse(s.expr)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// ShouldRun reports whether a fire time has passed since the last run
func (s *Scheduler) ShouldRun() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.running {
		return false
	}

	sched, err := s.parser.Parse(s.expr)
	if err != nil {
		return false
	}

	lastRun := s.lastRun
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(sched.Next(lastRun))
}

// MarkRunning flags a run in progress so the loop never overlaps runs
func (s *Scheduler) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// MarkComplete records the run and re-arms the schedule
func (s *Scheduler) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = time.Now()
}

// Start polls until ctx is cancelled, invoking runFunc when due. runFunc is
// called on the loop goroutine; a slow run simply delays the next poll.
func (s *Scheduler) Start(ctx context.Context, runFunc func(context.Context) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.ShouldRun() {
				continue
			}
			s.MarkRunning()
			if err := runFunc(ctx); err != nil {
				log.Printf("scheduled run failed: %v", err)
			}
			s.MarkComplete()
		}
	}
}
