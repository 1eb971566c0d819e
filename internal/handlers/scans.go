package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// StateResponse is the engine snapshot plus the scan run in flight
type StateResponse struct {
	dupes.Snapshot
	ActiveRun *db.ScanRun `json:"activeRun,omitempty"`
}

// State handles GET /api/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, StateResponse{
		Snapshot:  h.scanner.Snapshot(),
		ActiveRun: h.scanner.ActiveRun(),
	})
}

// StartScan handles POST /api/scan
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.RequireScanPaths(); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.scanner.StartScan(db.TriggerManual)
	if err != nil {
		log.Error().Err(err).Msg("failed to start scan")
		RespondError(w, http.StatusInternalServerError, "Failed to start scan")
		return
	}

	RespondJSON(w, http.StatusAccepted, run)
}

// CancelScan handles DELETE /api/scan
func (h *Handler) CancelScan(w http.ResponseWriter, r *http.Request) {
	if !h.scanner.CancelScan() {
		RespondError(w, http.StatusConflict, "No scan is running")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.scanner.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// GroupsResponse is one page of duplicate groups
type GroupsResponse struct {
	Groups []dupes.DuplicateGroup `json:"groups"`
	Total  int                    `json:"total"`
	Stats  dupes.Stats            `json:"stats"`
}

// ListGroups handles GET /api/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)

	snap := h.scanner.Snapshot()
	groups := snap.Groups
	total := len(groups)

	if offset > total {
		offset = total
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}

	RespondJSON(w, http.StatusOK, GroupsResponse{
		Groups: groups[offset:end],
		Total:  total,
		Stats:  snap.Stats,
	})
}

// GetGroup handles GET /api/groups/{hash}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := h.scanner.Engine().Group(chi.URLParam(r, "hash"))
	if !ok {
		RespondError(w, http.StatusNotFound, "Group not found")
		return
	}
	RespondJSON(w, http.StatusOK, group)
}

// maxPageLimit caps the limit query parameter
const maxPageLimit = 1000

// pagination reads limit and offset query parameters
func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxPageLimit)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
