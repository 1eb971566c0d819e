// Package app wires configuration, storage, the duplicate engine and the
// HTTP server together for the command line entry points.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/mediadupes/internal/config"
	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
	"github.com/lyallcooper/mediadupes/internal/fclones"
	"github.com/lyallcooper/mediadupes/internal/fsops"
	"github.com/lyallcooper/mediadupes/internal/handlers"
	"github.com/lyallcooper/mediadupes/internal/hasher"
	"github.com/lyallcooper/mediadupes/internal/metrics"
	"github.com/lyallcooper/mediadupes/internal/scheduler"
	"github.com/lyallcooper/mediadupes/internal/services"
)

// App holds the components shared by every command.
type App struct {
	Config   *config.Config
	Database *db.DB
	Scanner  *services.Scanner
	Metrics  *metrics.Manager

	// executor is set only for the fclones backend
	executor *fclones.Executor
}

// New opens the database and builds the configured backend and scanner.
// Call Close when done.
func New(cfg *config.Config) (*App, error) {
	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if n, err := database.FailInterruptedRuns(); err != nil {
		log.Warn().Err(err).Msg("failed to close out interrupted scan runs")
	} else if n > 0 {
		log.Warn().Int64("runs", n).Msg("marked scan runs interrupted by a previous shutdown as failed")
	}

	if err := database.SetSetting("retention_days", strconv.Itoa(cfg.RetentionDays)); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to store retention setting: %w", err)
	}

	backend, executor, err := NewBackend(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	scanner := services.NewScanner(database, backend, services.Options{
		Backend:     cfg.Scan.Backend,
		Paths:       cfg.Scan.Paths,
		ScanTimeout: cfg.Scan.Timeout,
	})
	manager := metrics.NewManager(scanner)
	scanner.SetRecorder(manager)

	return &App{
		Config:   cfg,
		Database: database,
		Scanner:  scanner,
		Metrics:  manager,
		executor: executor,
	}, nil
}

// NewBackend builds the backend named by scan.backend. The executor is
// returned for the fclones backend so callers can query its version.
func NewBackend(cfg *config.Config) (dupes.Backend, *fclones.Executor, error) {
	minSize, err := cfg.MinSizeBytes()
	if err != nil {
		return nil, nil, err
	}
	maxSize, err := cfg.MaxSizeBytes()
	if err != nil {
		return nil, nil, err
	}

	remover := &fsops.Remover{
		Index:    fsops.NewIndex(),
		TrashDir: cfg.Delete.TrashDir,
		Workers:  cfg.Delete.Workers,
	}

	switch cfg.Scan.Backend {
	case config.BackendFclones:
		executor := fclones.NewExecutor()
		executor.SetBinaryPath(cfg.Fclones.Binary)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := executor.CheckInstalled(ctx); err != nil {
			log.Warn().Err(err).Msg("fclones not found, scans will fail until it is installed: https://github.com/pkolaczk/fclones")
		}
		cancel()

		opts := fclones.ScanOptions{
			Paths:           cfg.Scan.Paths,
			MinSize:         minSize,
			IncludePatterns: fclonesIncludes(cfg.Scan.Include, cfg.Scan.Extensions),
			ExcludePatterns: cfg.Scan.Exclude,
			HashFunction:    cfg.Fclones.HashFunction,
			Threads:         cfg.Scan.Workers,
		}
		if maxSize > 0 {
			opts.MaxSize = &maxSize
		}
		return fclones.NewBackend(executor, opts, remover), executor, nil

	case config.BackendNative:
		prefix, err := cfg.PrefixSizeBytes()
		if err != nil {
			return nil, nil, err
		}
		return hasher.New(hasher.Options{
			Roots: cfg.Scan.Paths,
			Filter: hasher.Filter{
				Include:    cfg.Scan.Include,
				Exclude:    cfg.Scan.Exclude,
				Extensions: cfg.Scan.Extensions,
				MinSize:    minSize,
				MaxSize:    maxSize,
			},
			Workers:    cfg.Scan.Workers,
			PrefixSize: prefix,
		}, remover), nil, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Scan.Backend)
}

// fclonesIncludes turns the extension filter into name patterns when no
// explicit include patterns are configured.
func fclonesIncludes(include, extensions []string) []string {
	if len(include) > 0 {
		return include
	}
	patterns := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		patterns = append(patterns, "*."+ext)
	}
	return patterns
}

// BackendVersion reports the external backend version. It is nil for the
// native backend.
func (a *App) BackendVersion() func(ctx context.Context) (string, error) {
	if a.executor == nil {
		return nil
	}
	return a.executor.Version
}

// Close waits for scans to be recorded and closes the database.
func (a *App) Close() {
	a.Scanner.Shutdown()
	if err := a.Database.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// ServerOptions contains options for creating the application server.
type ServerOptions struct {
	Version string
	Commit  string
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	*App
	HTTP      *http.Server
	Scheduler *scheduler.Scheduler

	cancelCleanup context.CancelFunc
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg *config.Config, opts ServerOptions) (*Server, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("db", cfg.DB.Path).
		Str("addr", cfg.Server.Addr()).
		Str("backend", cfg.Scan.Backend).
		Strs("paths", cfg.Scan.Paths).
		Int("retention_days", cfg.RetentionDays).
		Msg("mediadupes starting")

	var sched *scheduler.Scheduler
	handlerOpts := handlers.Options{
		Metrics:        a.Metrics.Handler(),
		BackendVersion: a.BackendVersion(),
		Version:        BuildVersionString(opts.Version, opts.Commit),
	}
	if cfg.Schedule.Cron != "" {
		sched, err = scheduler.New(a.Database, a.Scanner, cfg.Schedule.Cron)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
		sched.Start()
		handlerOpts.Schedule = sched
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.Scanner.StartCleanup(ctx, services.DefaultCleanupInterval)

	h := handlers.New(a.Database, cfg, a.Scanner, handlerOpts)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		App:           a,
		HTTP:          server,
		Scheduler:     sched,
		cancelCleanup: cancel,
	}, nil
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.HTTP.Addr).Msg("server listening")
		if err := s.HTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.HTTP.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.cancelCleanup != nil {
		s.cancelCleanup()
	}
	s.App.Close()
}

// BuildVersionString combines a version and commit for display
func BuildVersionString(version, commit string) string {
	if version == "" {
		version = "dev"
	}
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
