package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/dupes"
)

// SelectionRequest names file ids to add or remove
type SelectionRequest struct {
	IDs []string `json:"ids"`
}

// StrategyRequest names a selection strategy
type StrategyRequest struct {
	Strategy string `json:"strategy"`
}

// SelectionResponse reports the selection after a change
type SelectionResponse struct {
	Selected []string `json:"selected"`
}

// ApplyAllResponse reports how many groups a strategy touched
type ApplyAllResponse struct {
	Groups   int      `json:"groups"`
	Selected []string `json:"selected"`
}

// Select handles POST /api/selection
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	h.scanner.SelectFiles(req.IDs...)
	h.respondSelection(w)
}

// Deselect handles DELETE /api/selection. An empty id list clears the
// whole selection.
func (h *Handler) Deselect(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		h.scanner.ClearSelection()
	} else {
		h.scanner.DeselectFiles(req.IDs...)
	}
	h.respondSelection(w)
}

// SelectInGroup handles PUT /api/groups/{hash}/selection
func (h *Handler) SelectInGroup(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, ok := h.scanner.Engine().Group(hash); !ok {
		RespondError(w, http.StatusNotFound, "Group not found")
		return
	}

	var req SelectionRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	h.scanner.SelectInGroup(hash, req.IDs)
	h.respondSelection(w)
}

// ApplyGroupStrategy handles POST /api/groups/{hash}/strategy
func (h *Handler) ApplyGroupStrategy(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, ok := h.scanner.Engine().Group(hash); !ok {
		RespondError(w, http.StatusNotFound, "Group not found")
		return
	}

	var req StrategyRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	if err := h.scanner.ApplyStrategy(hash, req.Strategy); err != nil {
		h.respondStrategyError(w, err)
		return
	}
	h.respondSelection(w)
}

// ApplyStrategyAll handles POST /api/strategy
func (h *Handler) ApplyStrategyAll(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	n, err := h.scanner.ApplyStrategyAll(req.Strategy)
	if err != nil {
		h.respondStrategyError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ApplyAllResponse{
		Groups:   n,
		Selected: h.scanner.Engine().Selected(),
	})
}

// DeleteRequest optionally names the strategy the selection came from
type DeleteRequest struct {
	Strategy string `json:"strategy"`
}

// DeleteSelected handles POST /api/delete
func (h *Handler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}

	report, err := h.scanner.DeleteSelected(r.Context(), req.Strategy)
	switch {
	case errors.Is(err, dupes.ErrNoSelection):
		RespondError(w, http.StatusBadRequest, "No files selected")
		return
	case errors.Is(err, dupes.ErrDeleteFailed):
		log.Error().Err(err).Msg("delete batch failed")
		RespondError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to delete selection")
		RespondError(w, http.StatusInternalServerError, "Failed to delete selection")
		return
	}

	RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) respondSelection(w http.ResponseWriter) {
	RespondJSON(w, http.StatusOK, SelectionResponse{Selected: h.scanner.Engine().Selected()})
}

func (h *Handler) respondStrategyError(w http.ResponseWriter, err error) {
	if errors.Is(err, dupes.ErrUnknownStrategy) {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Error().Err(err).Msg("failed to apply strategy")
	RespondError(w, http.StatusInternalServerError, "Failed to apply strategy")
}
