package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// DashboardResponse summarizes current results and history
type DashboardResponse struct {
	State       dupes.SearchState `json:"state"`
	Stats       dupes.Stats       `json:"stats"`
	Selected    int               `json:"selected"`
	Summary     *db.Summary       `json:"summary"`
	RecentScans []*ScanRunView    `json:"recentScans"`
	NextScan    *time.Time        `json:"nextScan,omitempty"`
}

// Dashboard handles GET /api/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.db.GetSummary()
	if err != nil {
		log.Error().Err(err).Msg("failed to get summary")
		RespondError(w, http.StatusInternalServerError, "Failed to get summary")
		return
	}

	runs, err := h.db.ListScanRuns(5, 0)
	if err != nil {
		log.Error().Err(err).Msg("failed to list recent scans")
		RespondError(w, http.StatusInternalServerError, "Failed to list recent scans")
		return
	}

	snap := h.scanner.Snapshot()
	data := DashboardResponse{
		State:       snap.State,
		Stats:       snap.Stats,
		Selected:    len(snap.Selected),
		Summary:     summary,
		RecentScans: make([]*ScanRunView, 0, len(runs)),
	}
	for _, run := range runs {
		data.RecentScans = append(data.RecentScans, toScanRunView(run))
	}
	if h.opts.Schedule != nil {
		if next := h.opts.Schedule.NextRun(); !next.IsZero() {
			data.NextScan = &next
		}
	}

	RespondJSON(w, http.StatusOK, data)
}
