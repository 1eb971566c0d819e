package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval is how often an idle stream gets a comment line
const keepAliveInterval = 30 * time.Second

// Events handles GET /api/events. The stream opens with a state event
// holding the full snapshot, then relays scanner events as they happen.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Subscribe before reading state so nothing falls in between
	updates := h.scanner.Subscribe()
	defer h.scanner.Unsubscribe(updates)

	h.sendEvent(w, flusher, "state", StateResponse{
		Snapshot:  h.scanner.Snapshot(),
		ActiveRun: h.scanner.ActiveRun(),
	})

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-updates:
			if !ok {
				return
			}
			h.sendEvent(w, flusher, string(ev.Type), ev)
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

