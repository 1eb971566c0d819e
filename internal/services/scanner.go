// Package services ties the duplicate engine to scan history, metrics and
// progress subscribers.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
	"github.com/lyallcooper/mediadupes/internal/logger"
)

// Recorder receives scan and deletion outcomes for metrics.
type Recorder interface {
	RecordScan(status string, took time.Duration)
	RecordDeletes(deleted, failed int, freed int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordScan(string, time.Duration) {}
func (nopRecorder) RecordDeletes(int, int, int64)    {}

// Options configures a Scanner.
type Options struct {
	// Backend is the backend name stored with each scan run.
	Backend     string
	Paths       []string
	ScanTimeout time.Duration
}

// activeScan tracks the scan whose outcome has not been recorded yet
type activeScan struct {
	run       *db.ScanRun
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// Scanner orchestrates scan operations
type Scanner struct {
	db       *db.DB
	engine   *dupes.Engine
	opts     Options
	recorder Recorder

	mu        sync.Mutex
	active    *activeScan
	lastRunID *int64 // latest scan run whose result is on display
	wg        sync.WaitGroup

	// SSE subscribers
	subMu       sync.RWMutex
	subscribers []*subscriber
}

// NewScanner creates a scanner service around a fresh engine for backend
func NewScanner(database *db.DB, backend dupes.Backend, opts Options) *Scanner {
	s := &Scanner{
		db:       database,
		opts:     opts,
		recorder: nopRecorder{},
	}
	s.engine = dupes.New(backend,
		dupes.WithLogger(logger.Component("engine")),
		dupes.WithProgressListener(s.onProgress),
	)
	return s
}

// SetRecorder installs the metrics recorder. A nil recorder disables recording.
func (s *Scanner) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// Engine exposes the underlying engine
func (s *Scanner) Engine() *dupes.Engine {
	return s.engine
}

// Snapshot returns the engine state
func (s *Scanner) Snapshot() dupes.Snapshot {
	return s.engine.Snapshot()
}

// ActiveRun returns the scan run in progress, or nil
func (s *Scanner) ActiveRun() *db.ScanRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	run := *s.active.run
	return &run
}

// StartScan starts a new duplicate search in the background and records it.
// A scan already in flight is superseded.
func (s *Scanner) StartScan(trigger db.ScanTrigger) (*db.ScanRun, error) {
	a, err := s.start(trigger)
	if err != nil {
		return nil, err
	}
	return a.run, nil
}

func (s *Scanner) start(trigger db.ScanTrigger) (*activeScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ctx context.Context
	var cancel context.CancelFunc
	if s.opts.ScanTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.opts.ScanTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	prev := s.active
	gen, outcome := s.engine.Search(ctx)
	if prev != nil {
		prev.cancel()
	}

	run, err := s.db.CreateScanRun(uuid.NewString(), trigger, s.opts.Backend, gen, s.opts.Paths)
	if err != nil {
		cancel()
		s.engine.CancelSearch()
		return nil, fmt.Errorf("record scan run: %w", err)
	}

	a := &activeScan{run: run, cancel: cancel, done: make(chan struct{})}
	s.active = a

	log.Info().
		Str("run_id", run.RunID).
		Str("trigger", string(trigger)).
		Uint64("generation", gen).
		Strs("paths", s.opts.Paths).
		Msg("scan started")

	s.wg.Add(1)
	go s.watch(a, outcome)

	return a, nil
}

// Scan runs a search and blocks until its outcome is recorded. Cancelling
// ctx cancels the search.
func (s *Scanner) Scan(ctx context.Context, trigger db.ScanTrigger) (*db.ScanRun, error) {
	a, err := s.start(trigger)
	if err != nil {
		return nil, err
	}

	select {
	case <-a.done:
	case <-ctx.Done():
		s.CancelScan()
		<-a.done
	}
	return s.db.GetScanRun(a.run.ID)
}

// watch records the outcome of one search
func (s *Scanner) watch(a *activeScan, outcome <-chan dupes.SearchOutcome) {
	defer s.wg.Done()
	defer close(a.done)
	defer a.cancel()

	out := <-outcome

	s.mu.Lock()
	cancelled := a.cancelled
	if s.active == a {
		s.active = nil
	}
	recorder := s.recorder
	s.mu.Unlock()

	var status db.ScanRunStatus
	var errMsg *string
	switch {
	case !out.Applied && cancelled:
		status = db.ScanRunStatusCancelled
	case !out.Applied:
		status = db.ScanRunStatusSuperseded
	case out.Err != nil:
		status = db.ScanRunStatusFailed
		msg := out.Err.Error()
		errMsg = &msg
	default:
		status = db.ScanRunStatusCompleted
		s.mu.Lock()
		id := a.run.ID
		s.lastRunID = &id
		s.mu.Unlock()
	}

	stats := out.Stats
	if err := s.db.CompleteScanRun(a.run.ID, status, stats.TotalGroups, stats.TotalFiles, stats.WastedSpace, errMsg); err != nil {
		log.Error().Err(err).Str("run_id", a.run.RunID).Msg("failed to record scan outcome")
	}
	recorder.RecordScan(string(status), time.Since(a.run.StartedAt))

	ev := log.Info()
	if status == db.ScanRunStatusFailed {
		ev = log.Warn().Str("error", *errMsg)
	}
	ev.Str("run_id", a.run.RunID).
		Str("status", string(status)).
		Int("groups", stats.TotalGroups).
		Int64("wasted", stats.WastedSpace).
		Msg("scan finished")

	s.broadcast(&Event{
		Type:       EventScan,
		Generation: out.Generation,
		RunID:      a.run.RunID,
		Status:     string(status),
		Stats:      &stats,
	})
}

// CancelScan cancels the active scan. It reports whether one was running.
func (s *Scanner) CancelScan() bool {
	s.mu.Lock()
	a := s.active
	if a != nil {
		a.cancelled = true
	}
	s.mu.Unlock()

	if a == nil {
		return false
	}
	s.engine.CancelSearch()
	a.cancel()
	return true
}

// Reset drops the current results and selection. A scan in flight is
// recorded as superseded.
func (s *Scanner) Reset() {
	s.mu.Lock()
	a := s.active
	s.lastRunID = nil
	s.mu.Unlock()

	s.engine.Reset()
	if a != nil {
		a.cancel()
	}

	s.broadcast(&Event{Type: EventReset, Generation: s.engine.Snapshot().Generation})
}

// Wait blocks until every started scan has been recorded
func (s *Scanner) Wait() {
	s.wg.Wait()
}

// Shutdown cancels any scan and waits for its outcome to be recorded
func (s *Scanner) Shutdown() {
	s.CancelScan()
	s.Wait()
	s.closeSubscribers()
}

// onProgress forwards accepted engine progress to subscribers
func (s *Scanner) onProgress(ev dupes.ProgressEvent) {
	p := ev.Progress
	s.broadcast(&Event{
		Type:       EventProgress,
		Generation: ev.Generation,
		Progress:   &p,
	})
}

func (s *Scanner) currentRunID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRunID == nil {
		return nil
	}
	id := *s.lastRunID
	return &id
}
