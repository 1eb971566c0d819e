package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/db"
)

// ScanRunView extends ScanRun with a readable duration
type ScanRunView struct {
	*db.ScanRun
	Duration string `json:"duration"`
}

// HistoryResponse is one page of scan runs
type HistoryResponse struct {
	Runs    []*ScanRunView `json:"runs"`
	Total   int            `json:"total"`
	HasMore bool           `json:"hasMore"`
}

// History handles GET /api/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)

	runs, err := h.db.ListScanRuns(limit+1, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list scan runs")
		RespondError(w, http.StatusInternalServerError, "Failed to list scan runs")
		return
	}
	total, err := h.db.CountScanRuns()
	if err != nil {
		log.Error().Err(err).Msg("failed to count scan runs")
		RespondError(w, http.StatusInternalServerError, "Failed to list scan runs")
		return
	}

	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}

	views := make([]*ScanRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toScanRunView(run))
	}

	RespondJSON(w, http.StatusOK, HistoryResponse{Runs: views, Total: total, HasMore: hasMore})
}

// GetScanRun handles GET /api/history/{runID}
func (h *Handler) GetScanRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.GetScanRunByRunID(chi.URLParam(r, "runID"))
	if errors.Is(err, db.ErrNotFound) {
		RespondError(w, http.StatusNotFound, "Scan run not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get scan run")
		RespondError(w, http.StatusInternalServerError, "Failed to get scan run")
		return
	}
	RespondJSON(w, http.StatusOK, toScanRunView(run))
}

// Actions handles GET /api/actions
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)

	actions, err := h.db.ListActions(limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list actions")
		RespondError(w, http.StatusInternalServerError, "Failed to list actions")
		return
	}
	if actions == nil {
		actions = []*db.Action{}
	}
	RespondJSON(w, http.StatusOK, actions)
}

func toScanRunView(run *db.ScanRun) *ScanRunView {
	view := &ScanRunView{ScanRun: run}
	switch {
	case run.CompletedAt != nil:
		view.Duration = formatDuration(run.CompletedAt.Sub(run.StartedAt))
	case run.Status == db.ScanRunStatusRunning:
		view.Duration = "running"
	default:
		view.Duration = "-"
	}
	return view
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
