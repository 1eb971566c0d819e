// Package handlers serves the JSON API, the progress event stream and
// metrics over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/config"
	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/services"
)

// Schedule reports when the next scheduled scan is due
type Schedule interface {
	NextRun() time.Time
}

// Options carries the optional collaborators of a Handler
type Options struct {
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
	// Schedule is nil when periodic scans are disabled
	Schedule Schedule
	// BackendVersion reports the external backend version, if any
	BackendVersion func(ctx context.Context) (string, error)
	Version        string
}

// Handler holds all HTTP handlers
type Handler struct {
	db      *db.DB
	cfg     *config.Config
	scanner *services.Scanner
	opts    Options
}

// New creates a new Handler
func New(database *db.DB, cfg *config.Config, scanner *services.Scanner, opts Options) *Handler {
	return &Handler{
		db:      database,
		cfg:     cfg,
		scanner: scanner,
		opts:    opts,
	}
}

// Routes builds the router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard)
		r.Get("/state", h.State)

		// Scans
		r.Post("/scan", h.StartScan)
		r.Delete("/scan", h.CancelScan)
		r.Post("/reset", h.Reset)

		// Groups and selection
		r.Get("/groups", h.ListGroups)
		r.Get("/groups/{hash}", h.GetGroup)
		r.Put("/groups/{hash}/selection", h.SelectInGroup)
		r.Post("/groups/{hash}/strategy", h.ApplyGroupStrategy)
		r.Post("/strategy", h.ApplyStrategyAll)
		r.Post("/selection", h.Select)
		r.Delete("/selection", h.Deselect)
		r.Post("/delete", h.DeleteSelected)

		// History
		r.Get("/history", h.History)
		r.Get("/history/{runID}", h.GetScanRun)
		r.Get("/actions", h.Actions)

		// Settings
		r.Get("/settings", h.Settings)
		r.Put("/settings", h.UpdateSettings)

		// SSE
		r.Get("/events", h.Events)
	})

	return r
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// DecodeJSONOptional decodes the request body into dest. An empty body is
// fine. Returns false if decoding fails (error already sent).
func DecodeJSONOptional[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && err != io.EOF {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// requestLogger logs each request once it completes
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
