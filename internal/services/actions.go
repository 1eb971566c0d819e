package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// maxErrorDetails caps how many per-file errors go into an action record
const maxErrorDetails = 5

// SelectFiles adds ids to the selection
func (s *Scanner) SelectFiles(ids ...string) {
	for _, id := range ids {
		s.engine.SelectFile(id)
	}
}

// DeselectFiles removes ids from the selection
func (s *Scanner) DeselectFiles(ids ...string) {
	for _, id := range ids {
		s.engine.DeselectFile(id)
	}
}

// ClearSelection empties the selection
func (s *Scanner) ClearSelection() {
	s.engine.ClearSelection()
}

// SelectInGroup replaces the selection within one group with ids
func (s *Scanner) SelectInGroup(hash string, ids []string) {
	s.engine.SelectFilesInGroup(hash, ids)
}

// ApplyStrategy selects everything but the keeper of one group
func (s *Scanner) ApplyStrategy(hash, name string) error {
	strategy, err := dupes.ParseStrategy(name)
	if err != nil {
		return err
	}
	return s.engine.SelectByStrategy(hash, strategy)
}

// ApplyStrategyAll applies a strategy to every group and returns how many
// groups it touched
func (s *Scanner) ApplyStrategyAll(name string) (int, error) {
	strategy, err := dupes.ParseStrategy(name)
	if err != nil {
		return 0, err
	}
	n, err := s.engine.SelectAllByStrategy(strategy)
	if err != nil {
		return 0, err
	}
	log.Info().Str("strategy", string(strategy)).Int("groups", n).Msg("strategy applied to all groups")
	return n, nil
}

// DeleteReport summarizes one deletion batch
type DeleteReport struct {
	ActionID   int64                `json:"actionId"`
	Results    []dupes.DeleteResult `json:"results"`
	Deleted    int                  `json:"deleted"`
	Failed     int                  `json:"failed"`
	BytesSaved int64                `json:"bytesSaved"`
	Stats      dupes.Stats          `json:"stats"`
}

// DeleteSelected deletes the current selection and records the action.
// strategy is stored with the record when the selection came from one.
func (s *Scanner) DeleteSelected(ctx context.Context, strategy string) (*DeleteReport, error) {
	selected := s.engine.Selected()
	if len(selected) == 0 {
		return nil, dupes.ErrNoSelection
	}

	sizes := make(map[string]int64)
	for _, g := range s.engine.Groups() {
		for _, f := range g.Files {
			sizes[f.ID] = f.Size
		}
	}

	record := &db.Action{
		ScanRunID:      s.currentRunID(),
		ActionType:     db.ActionTypeDelete,
		FilesRequested: len(selected),
	}
	if strategy != "" {
		record.Strategy = &strategy
	}
	action, err := s.db.CreateAction(record)
	if err != nil {
		return nil, fmt.Errorf("record action: %w", err)
	}

	s.mu.Lock()
	recorder := s.recorder
	s.mu.Unlock()

	results, err := s.engine.DeleteSelected(ctx)
	if err != nil {
		msg := err.Error()
		if cerr := s.db.CompleteAction(action.ID, 0, len(selected), 0, db.ActionStatusFailed, &msg); cerr != nil {
			log.Error().Err(cerr).Int64("action_id", action.ID).Msg("failed to record action outcome")
		}
		recorder.RecordDeletes(0, len(selected), 0)
		return nil, err
	}

	report := &DeleteReport{ActionID: action.ID, Results: results}
	var failures []string
	for _, r := range results {
		if r.Success {
			report.Deleted++
			report.BytesSaved += sizes[r.ID]
			continue
		}
		report.Failed++
		if len(failures) < maxErrorDetails {
			failures = append(failures, r.ID+": "+r.Error)
		}
	}
	report.Stats = s.engine.Stats()

	status := db.ActionStatusCompleted
	var errMsg *string
	switch {
	case report.Failed > 0 && report.Deleted == 0:
		status = db.ActionStatusFailed
	case report.Failed > 0:
		status = db.ActionStatusPartial
	}
	if len(failures) > 0 {
		msg := fmt.Sprintf("%d files failed: %s", report.Failed, strings.Join(failures, "; "))
		errMsg = &msg
	}

	if err := s.db.CompleteAction(action.ID, report.Deleted, report.Failed, report.BytesSaved, status, errMsg); err != nil {
		log.Error().Err(err).Int64("action_id", action.ID).Msg("failed to record action outcome")
	}
	recorder.RecordDeletes(report.Deleted, report.Failed, report.BytesSaved)

	log.Info().
		Int64("action_id", action.ID).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Int64("bytes_saved", report.BytesSaved).
		Msg("deletion finished")

	stats := report.Stats
	s.broadcast(&Event{
		Type:       EventDelete,
		Generation: s.engine.Snapshot().Generation,
		Status:     string(status),
		Stats:      &stats,
	})

	return report, nil
}
