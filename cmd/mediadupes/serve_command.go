package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/mediadupes/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduled scans and history cleanup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if port != 0 {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			lockPath := cfg.DB.Path + ".lock"
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another mediadupes server holds %s", lockPath)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.Warn().Err(err).Msg("failed to release server lock")
				}
			}()

			server, err := app.CreateServer(&cfg, app.ServerOptions{Version: version, Commit: commit})
			if err != nil {
				return err
			}
			defer server.Cleanup()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := server.Run(sigCtx); err != nil {
				return err
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Override server.port")
	return cmd
}
