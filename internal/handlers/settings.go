package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// SettingsResponse describes the running configuration
type SettingsResponse struct {
	Version        string   `json:"version"`
	Backend        string   `json:"backend"`
	BackendVersion string   `json:"backendVersion,omitempty"`
	ScanPaths      []string `json:"scanPaths"`
	Schedule       string   `json:"schedule,omitempty"`
	TrashDir       string   `json:"trashDir,omitempty"`
	DBPath         string   `json:"dbPath"`
	RetentionDays  int      `json:"retentionDays"`
}

// SettingsUpdate holds the settings that can change at runtime
type SettingsUpdate struct {
	RetentionDays *int `json:"retentionDays"`
}

// Settings handles GET /api/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	retention, err := h.db.GetRetentionDays()
	if err != nil {
		log.Error().Err(err).Msg("failed to get retention days")
		RespondError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}

	data := SettingsResponse{
		Version:       h.opts.Version,
		Backend:       h.cfg.Scan.Backend,
		ScanPaths:     h.cfg.Scan.Paths,
		Schedule:      h.cfg.Schedule.Cron,
		TrashDir:      h.cfg.Delete.TrashDir,
		DBPath:        h.cfg.DB.Path,
		RetentionDays: retention,
	}
	if data.ScanPaths == nil {
		data.ScanPaths = []string{}
	}

	if h.opts.BackendVersion != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if version, err := h.opts.BackendVersion(ctx); err == nil {
			data.BackendVersion = version
		} else {
			data.BackendVersion = "not found"
		}
	}

	RespondJSON(w, http.StatusOK, data)
}

// UpdateSettings handles PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdate
	if !DecodeJSONOptional(w, r, &req) {
		return
	}

	if req.RetentionDays != nil {
		if *req.RetentionDays < 0 {
			RespondError(w, http.StatusBadRequest, "retentionDays must be non-negative")
			return
		}
		if err := h.db.SetSetting("retention_days", strconv.Itoa(*req.RetentionDays)); err != nil {
			log.Error().Err(err).Msg("failed to save retention days")
			RespondError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		log.Info().Int("retention_days", *req.RetentionDays).Msg("retention period updated")
	}

	h.Settings(w, r)
}
