package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// fakeBackend implements dupes.Backend for testing
type fakeBackend struct {
	mu sync.Mutex

	// Configurable responses
	result   *dupes.ScanResult
	scanErr  error
	block    bool // wait for the scan context instead of returning
	progress []dupes.ScanProgress
	failIDs  map[string]string
	started  chan uint64
	handler  func(dupes.ProgressEvent)

	// Track calls
	scanCalls int
	cancels   int
}

func (f *fakeBackend) FindDuplicates(ctx context.Context, generation uint64) (*dupes.ScanResult, error) {
	f.mu.Lock()
	f.scanCalls++
	res, err, block, progress, started, handler := f.result, f.scanErr, f.block, f.progress, f.started, f.handler
	f.mu.Unlock()

	for _, p := range progress {
		handler(dupes.ProgressEvent{Generation: generation, Progress: p})
	}
	if started != nil {
		started <- generation
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return res, err
}

func (f *fakeBackend) CancelDuplicateSearch() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

func (f *fakeBackend) DeleteDuplicateFiles(ctx context.Context, ids []string) ([]dupes.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]dupes.DeleteResult, 0, len(ids))
	for _, id := range ids {
		if msg, fail := f.failIDs[id]; fail {
			out = append(out, dupes.DeleteResult{ID: id, Error: msg})
			continue
		}
		out = append(out, dupes.DeleteResult{ID: id, Success: true})
	}
	return out, nil
}

func (f *fakeBackend) SetProgressHandler(fn func(dupes.ProgressEvent)) {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
}

// fakeRecorder captures metrics calls
type fakeRecorder struct {
	mu      sync.Mutex
	scans   []string
	deleted int
	failed  int
	freed   int64
}

func (r *fakeRecorder) RecordScan(status string, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, status)
}

func (r *fakeRecorder) RecordDeletes(deleted, failed int, freed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted += deleted
	r.failed += failed
	r.freed += freed
}

// testDB creates a test database in a temp directory
func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open test db")
	t.Cleanup(func() { database.Close() })
	return database
}

func i64(v int64) *int64 { return &v }

// photoGroup is one group of three identical 100 byte files with rising mtimes
func photoGroup() dupes.DuplicateGroup {
	return dupes.DuplicateGroup{
		Hash:  "h1",
		Size:  100,
		Count: 3,
		Files: []dupes.FileRef{
			{ID: "a", Path: "/media/a.jpg", Size: 100, MtimeMs: i64(1)},
			{ID: "b", Path: "/media/b.jpg", Size: 100, MtimeMs: i64(2)},
			{ID: "c", Path: "/media/c.jpg", Size: 100, MtimeMs: i64(3)},
		},
	}
}

func scanResult(groups ...dupes.DuplicateGroup) *dupes.ScanResult {
	return &dupes.ScanResult{Groups: groups, Stats: dupes.ComputeStats(groups)}
}

func newTestScanner(t *testing.T, backend *fakeBackend) (*Scanner, *fakeRecorder) {
	t.Helper()
	s := NewScanner(testDB(t), backend, Options{
		Backend:     "native",
		Paths:       []string{"/media"},
		ScanTimeout: time.Minute,
	})
	rec := &fakeRecorder{}
	s.SetRecorder(rec)
	t.Cleanup(s.Shutdown)
	return s, rec
}

func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// ============================================================================
// Subscriber Tests
// ============================================================================

func TestSubscribeUnsubscribe(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{})

	ch := s.Subscribe()
	require.NotNil(t, ch)

	s.subMu.RLock()
	assert.Len(t, s.subscribers, 1)
	s.subMu.RUnlock()

	s.Unsubscribe(ch)

	s.subMu.RLock()
	assert.Empty(t, s.subscribers)
	s.subMu.RUnlock()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestMultipleSubscribers(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{})

	ch1 := s.Subscribe()
	ch2 := s.Subscribe()
	ch3 := s.Subscribe()

	s.Unsubscribe(ch2)
	s.broadcast(&Event{Type: EventReset})

	assert.Equal(t, EventReset, nextEvent(t, ch1).Type)
	assert.Equal(t, EventReset, nextEvent(t, ch3).Type)

	s.Unsubscribe(ch1)
	s.Unsubscribe(ch3)
}

func TestBroadcast_SlowSubscriberDoesNotBlock(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{})
	ch := s.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.broadcast(&Event{Type: EventProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	assert.Equal(t, cap(s.subscribers[0].ch), len(ch))
}

func TestUnsubscribe_Twice(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{})
	ch := s.Subscribe()
	s.Unsubscribe(ch)
	assert.NotPanics(t, func() { s.Unsubscribe(ch) })
}

// ============================================================================
// Scan Tests
// ============================================================================

func TestScan_RecordsCompletedRun(t *testing.T) {
	backend := &fakeBackend{result: scanResult(photoGroup())}
	s, rec := newTestScanner(t, backend)

	run, err := s.Scan(context.Background(), db.TriggerCLI)
	require.NoError(t, err)

	assert.Equal(t, db.ScanRunStatusCompleted, run.Status)
	assert.Equal(t, db.TriggerCLI, run.Trigger)
	assert.Equal(t, "native", run.Backend)
	assert.Equal(t, uint64(1), run.Generation)
	assert.Equal(t, []string{"/media"}, run.Paths)
	assert.Equal(t, int64(1), run.DuplicateGroups)
	assert.Equal(t, int64(2), run.DuplicateFiles)
	assert.Equal(t, int64(200), run.WastedBytes)
	assert.NotEmpty(t, run.RunID)
	require.NotNil(t, run.CompletedAt)

	assert.Nil(t, s.ActiveRun())
	assert.Equal(t, []string{"completed"}, rec.scans)
	assert.Len(t, s.Snapshot().Groups, 1)
}

func TestStartScan_ReturnsRunningRecord(t *testing.T) {
	backend := &fakeBackend{block: true, started: make(chan uint64, 1)}
	s, _ := newTestScanner(t, backend)

	run, err := s.StartScan(db.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, db.ScanRunStatusRunning, run.Status)
	assert.NotZero(t, run.ID)

	<-backend.started
	active := s.ActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, run.RunID, active.RunID)
	assert.True(t, s.Snapshot().Searching)
}

func TestScan_BackendFailure(t *testing.T) {
	backend := &fakeBackend{scanErr: errors.New("permission denied")}
	s, rec := newTestScanner(t, backend)

	run, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, db.ScanRunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "permission denied")
	assert.Equal(t, []string{"failed"}, rec.scans)
	assert.Equal(t, dupes.StateError, s.Snapshot().State)
}

func TestCancelScan(t *testing.T) {
	backend := &fakeBackend{block: true, started: make(chan uint64, 1)}
	s, rec := newTestScanner(t, backend)

	assert.False(t, s.CancelScan(), "nothing to cancel yet")

	run, err := s.StartScan(db.TriggerManual)
	require.NoError(t, err)
	<-backend.started

	assert.True(t, s.CancelScan())
	s.Wait()

	got, err := s.db.GetScanRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanRunStatusCancelled, got.Status)
	assert.Equal(t, []string{"cancelled"}, rec.scans)

	snap := s.Snapshot()
	assert.False(t, snap.Searching)
	assert.Equal(t, dupes.StateCancelled, snap.State)
	assert.Equal(t, 1, backend.cancels)
}

func TestScan_ContextCancelled(t *testing.T) {
	backend := &fakeBackend{block: true}
	s, _ := newTestScanner(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	run, err := s.Scan(ctx, db.TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, db.ScanRunStatusCancelled, run.Status)
}

func TestStartScan_SupersedesRunningScan(t *testing.T) {
	backend := &fakeBackend{block: true, started: make(chan uint64, 2), result: scanResult(photoGroup())}
	s, rec := newTestScanner(t, backend)

	first, err := s.StartScan(db.TriggerScheduled)
	require.NoError(t, err)
	<-backend.started

	backend.mu.Lock()
	backend.block = false
	backend.mu.Unlock()

	second, err := s.StartScan(db.TriggerManual)
	require.NoError(t, err)
	<-backend.started
	s.Wait()

	got, err := s.db.GetScanRun(first.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanRunStatusSuperseded, got.Status)

	got, err = s.db.GetScanRun(second.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanRunStatusCompleted, got.Status)
	assert.Equal(t, uint64(2), got.Generation)

	assert.ElementsMatch(t, []string{"superseded", "completed"}, rec.scans)
	assert.Len(t, s.Snapshot().Groups, 1)
}

func TestReset_SupersedesRunningScan(t *testing.T) {
	backend := &fakeBackend{block: true, started: make(chan uint64, 1)}
	s, _ := newTestScanner(t, backend)

	run, err := s.StartScan(db.TriggerManual)
	require.NoError(t, err)
	<-backend.started

	s.Reset()
	s.Wait()

	got, err := s.db.GetScanRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanRunStatusSuperseded, got.Status)
	assert.Equal(t, dupes.StateIdle, s.Snapshot().State)
}

func TestScan_BroadcastsProgressAndOutcome(t *testing.T) {
	backend := &fakeBackend{
		result: scanResult(photoGroup()),
		progress: []dupes.ScanProgress{
			{Phase: dupes.PhaseAnalyzing, Current: 3, Total: 3},
			{Phase: dupes.PhaseHashing, Current: 1, Total: 3, CurrentFile: "/media/a.jpg"},
		},
	}
	s, _ := newTestScanner(t, backend)
	ch := s.Subscribe()

	run, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	ev := nextEvent(t, ch)
	assert.Equal(t, EventProgress, ev.Type)
	assert.Equal(t, uint64(1), ev.Generation)
	assert.Equal(t, dupes.PhaseAnalyzing, ev.Progress.Phase)

	ev = nextEvent(t, ch)
	assert.Equal(t, dupes.PhaseHashing, ev.Progress.Phase)
	assert.Equal(t, "/media/a.jpg", ev.Progress.CurrentFile)

	ev = nextEvent(t, ch)
	assert.Equal(t, EventScan, ev.Type)
	assert.Equal(t, run.RunID, ev.RunID)
	assert.Equal(t, "completed", ev.Status)
	require.NotNil(t, ev.Stats)
	assert.Equal(t, int64(200), ev.Stats.WastedSpace)
}

// ============================================================================
// Action Tests
// ============================================================================

func TestApplyStrategy_UnknownStrategy(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{result: scanResult(photoGroup())})
	_, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	assert.ErrorIs(t, s.ApplyStrategy("h1", "largest"), dupes.ErrUnknownStrategy)
	_, err = s.ApplyStrategyAll("largest")
	assert.ErrorIs(t, err, dupes.ErrUnknownStrategy)
}

func TestSelection(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{result: scanResult(photoGroup())})
	_, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	require.NoError(t, s.ApplyStrategy("h1", "oldest"))
	assert.Equal(t, []string{"b", "c"}, s.Engine().Selected())

	s.DeselectFiles("b")
	s.SelectFiles("a")
	assert.Equal(t, []string{"a", "c"}, s.Engine().Selected())

	s.SelectInGroup("h1", []string{"b"})
	assert.Equal(t, []string{"b"}, s.Engine().Selected())

	s.ClearSelection()
	assert.Empty(t, s.Engine().Selected())
}

func TestDeleteSelected_RecordsAction(t *testing.T) {
	s, rec := newTestScanner(t, &fakeBackend{result: scanResult(photoGroup())})
	run, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	n, err := s.ApplyStrategyAll("newest")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, err := s.DeleteSelected(context.Background(), "newest")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(200), report.BytesSaved)
	assert.Equal(t, dupes.Stats{}, report.Stats)

	action, err := s.db.GetAction(report.ActionID)
	require.NoError(t, err)
	assert.Equal(t, db.ActionStatusCompleted, action.Status)
	assert.Equal(t, 2, action.FilesRequested)
	assert.Equal(t, 2, action.FilesDeleted)
	assert.Equal(t, int64(200), action.BytesSaved)
	require.NotNil(t, action.ScanRunID)
	assert.Equal(t, run.ID, *action.ScanRunID)
	require.NotNil(t, action.Strategy)
	assert.Equal(t, "newest", *action.Strategy)

	assert.Equal(t, 2, rec.deleted)
	assert.Equal(t, int64(200), rec.freed)
	assert.Empty(t, s.Snapshot().Groups)
}

func TestDeleteSelected_Partial(t *testing.T) {
	backend := &fakeBackend{
		result:  scanResult(photoGroup()),
		failIDs: map[string]string{"a": "permission denied"},
	}
	s, rec := newTestScanner(t, backend)
	_, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	s.SelectFiles("a", "b")
	report, err := s.DeleteSelected(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int64(100), report.BytesSaved)

	action, err := s.db.GetAction(report.ActionID)
	require.NoError(t, err)
	assert.Equal(t, db.ActionStatusPartial, action.Status)
	assert.Nil(t, action.Strategy)
	require.NotNil(t, action.ErrorMessage)
	assert.Contains(t, *action.ErrorMessage, "a: permission denied")

	assert.Equal(t, 1, rec.failed)
	snap := s.Snapshot()
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, 2, snap.Groups[0].Count)
	assert.Empty(t, snap.Selected)
}

func TestDeleteSelected_AllFailed(t *testing.T) {
	backend := &fakeBackend{
		result:  scanResult(photoGroup()),
		failIDs: map[string]string{"a": "busy", "b": "busy"},
	}
	s, _ := newTestScanner(t, backend)
	_, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	s.SelectFiles("a", "b")
	report, err := s.DeleteSelected(context.Background(), "")
	require.NoError(t, err)

	action, err := s.db.GetAction(report.ActionID)
	require.NoError(t, err)
	assert.Equal(t, db.ActionStatusFailed, action.Status)
}

func TestDeleteSelected_NoSelection(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{})

	_, err := s.DeleteSelected(context.Background(), "")
	assert.ErrorIs(t, err, dupes.ErrNoSelection)

	actions, err := s.db.ListActions(10, 0)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

// ============================================================================
// Cleanup Tests
// ============================================================================

func TestRunCleanup(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{result: scanResult(photoGroup())})
	run, err := s.Scan(context.Background(), db.TriggerManual)
	require.NoError(t, err)

	past := time.Now().UTC().AddDate(0, 0, -90)
	_, err = s.db.Exec("UPDATE scan_runs SET started_at = ?, completed_at = ? WHERE id = ?", past, past, run.ID)
	require.NoError(t, err)

	removed, err := s.RunCleanup()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.db.GetScanRun(run.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestStartCleanup_StopsWithContext(t *testing.T) {
	s, _ := newTestScanner(t, &fakeBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	s.StartCleanup(ctx, time.Hour)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
