// Package scheduler triggers duplicate scans on a cron schedule. It never
// deletes anything; resolving duplicates stays a user action.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/db"
)

// Settings keys used to persist schedule state
const (
	settingLastRun = "schedule_last_run"
	settingNextRun = "schedule_next_run"
)

// ScanStarter is the part of the scanner service the scheduler drives
type ScanStarter interface {
	StartScan(trigger db.ScanTrigger) (*db.ScanRun, error)
	ActiveRun() *db.ScanRun
}

// Scheduler starts scans when its cron expression comes due
type Scheduler struct {
	db       *db.DB
	scanner  ScanStarter
	parser   cron.Parser
	schedule cron.Schedule
	expr     string

	// tick is how often the due time is checked
	tick time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	nextRun  time.Time
	wg       sync.WaitGroup
}

// New creates a scheduler for a standard five field cron expression
func New(database *db.DB, scanner ScanStarter, expr string) (*Scheduler, error) {
	s := &Scheduler{
		db:      database,
		scanner: scanner,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		expr:    expr,
		tick:    time.Minute,
		now:     time.Now,
	}

	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	s.schedule = schedule
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.nextRun = s.schedule.Next(s.now())
	next := s.nextRun
	s.mu.Unlock()

	s.persist(settingNextRun, next)
	log.Info().Str("cron", s.expr).Time("next_run", next).Msg("scheduler started")

	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler and waits for its loop to exit. Scans it already
// started keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

// NextRun returns when the next scan is due, or the zero time when stopped
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.nextRun
}

// LastRun returns when the scheduler last started a scan
func (s *Scheduler) LastRun() (time.Time, bool) {
	value, err := s.db.GetSetting(settingLastRun, "")
	if err != nil || value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.mu.RLock()
	stop := s.stopChan
	s.mu.RUnlock()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.checkDue()
		}
	}
}

// checkDue starts a scan if the schedule has come due
func (s *Scheduler) checkDue() {
	s.mu.Lock()
	now := s.now()
	if now.Before(s.nextRun) {
		s.mu.Unlock()
		return
	}
	s.nextRun = s.schedule.Next(now)
	next := s.nextRun
	s.mu.Unlock()

	s.persist(settingNextRun, next)
	s.trigger(now)
	log.Debug().Time("next_run", next).Msg("scheduler: next run computed")
}

// trigger starts a scheduled scan unless one is already running
func (s *Scheduler) trigger(now time.Time) {
	if active := s.scanner.ActiveRun(); active != nil {
		log.Info().Str("run_id", active.RunID).Msg("scheduler: scan already running, skipping")
		return
	}

	run, err := s.scanner.StartScan(db.TriggerScheduled)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to start scan")
		return
	}

	s.persist(settingLastRun, now)
	log.Info().Str("run_id", run.RunID).Msg("scheduler: started scan")
}

func (s *Scheduler) persist(key string, t time.Time) {
	if err := s.db.SetSetting(key, t.UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("scheduler: failed to persist state")
	}
}
