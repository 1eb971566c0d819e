package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/mediadupes/internal/app"
	"github.com/lyallcooper/mediadupes/internal/config"
	"github.com/lyallcooper/mediadupes/internal/db"
	"github.com/lyallcooper/mediadupes/internal/dupes"
	"github.com/lyallcooper/mediadupes/internal/services"
)

type scanReport struct {
	RunID    string                 `json:"runId" yaml:"run_id"`
	Status   db.ScanRunStatus       `json:"status" yaml:"status"`
	Duration string                 `json:"duration" yaml:"duration"`
	Stats    dupes.Stats            `json:"stats" yaml:"stats"`
	Groups   []dupes.DuplicateGroup `json:"groups" yaml:"groups"`
	Selected []string               `json:"selected" yaml:"selected"`
	Deletion *deletionReport        `json:"deletion,omitempty" yaml:"deletion,omitempty"`
}

type deletionReport struct {
	Deleted    int                  `json:"deleted" yaml:"deleted"`
	Failed     int                  `json:"failed" yaml:"failed"`
	BytesSaved int64                `json:"bytesSaved" yaml:"bytes_saved"`
	Failures   []dupes.DeleteResult `json:"failures,omitempty" yaml:"failures,omitempty"`
}

type scanFlags struct {
	paths    []string
	backend  string
	strategy string
	delete   bool
	yes      bool
	format   string
}

var errAborted = errors.New("deletion aborted")

func newScanCommand(ctx *commandContext) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan for duplicate files and optionally delete the redundant copies",
		Long: `Scan the configured paths (or the paths given as arguments) for duplicate files.

With --strategy, every group gets one keeper chosen by the strategy and the
other copies are selected. With --delete the selection is then deleted, after
a confirmation prompt unless --yes is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags.paths = append(flags.paths, args...)
			return runScan(cmd, cfg, flags)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.paths, "path", "p", nil, "Directory to scan, repeatable (overrides scan.paths)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Override scan.backend (native or fclones)")
	cmd.Flags().StringVarP(&flags.strategy, "strategy", "s", "", "Select copies to delete: newest, oldest or shortest_path keeps one file per group")
	cmd.Flags().BoolVar(&flags.delete, "delete", false, "Delete the selected copies after scanning (requires --strategy)")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Skip the deletion confirmation prompt")
	cmd.Flags().StringVarP(&flags.format, "format", "o", "table", "Output format: table, json or yaml")

	return cmd
}

func runScan(cmd *cobra.Command, base *config.Config, flags scanFlags) error {
	format, err := parseFormat(flags.format)
	if err != nil {
		return err
	}
	if flags.strategy != "" {
		if _, err := dupes.ParseStrategy(flags.strategy); err != nil {
			return err
		}
	}
	if flags.delete && flags.strategy == "" {
		return errors.New("--delete requires --strategy")
	}

	cfg := *base
	if len(flags.paths) > 0 {
		cfg.Scan.Paths = config.NormalizePaths(flags.paths)
	}
	if flags.backend != "" {
		cfg.Scan.Backend = strings.ToLower(flags.backend)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireScanPaths(); err != nil {
		return err
	}

	a, err := app.New(&cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := a.Scanner.Scan(sigCtx, db.TriggerCLI)
	if err != nil {
		return err
	}
	if run.Status != db.ScanRunStatusCompleted {
		if run.ErrorMessage != nil {
			return fmt.Errorf("scan %s: %s", run.Status, *run.ErrorMessage)
		}
		if run.Status == db.ScanRunStatusCancelled {
			return context.Canceled
		}
		return fmt.Errorf("scan %s", run.Status)
	}

	if flags.strategy != "" {
		if _, err := a.Scanner.ApplyStrategyAll(flags.strategy); err != nil {
			return err
		}
	}

	snap := a.Scanner.Snapshot()
	report := &scanReport{
		RunID:    run.RunID,
		Status:   run.Status,
		Duration: formatDuration(run.Duration()),
		Stats:    snap.Stats,
		Groups:   snap.Groups,
		Selected: snap.Selected,
	}

	if flags.delete && len(snap.Selected) > 0 {
		if !flags.yes {
			ok, err := confirmDelete(cmd.InOrStdin(), cmd.ErrOrStderr(), snap)
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
		}
		result, err := a.Scanner.DeleteSelected(sigCtx, flags.strategy)
		if err != nil {
			return err
		}
		report.Deletion = newDeletionReport(result)
		report.Stats = result.Stats
	}

	if done, err := writeStructured(cmd, format, report); done {
		return err
	}
	return printScanReport(cmd.OutOrStdout(), report)
}

func newDeletionReport(r *services.DeleteReport) *deletionReport {
	d := &deletionReport{Deleted: r.Deleted, Failed: r.Failed, BytesSaved: r.BytesSaved}
	for _, res := range r.Results {
		if !res.Success {
			d.Failures = append(d.Failures, res)
		}
	}
	return d
}

// confirmDelete asks on out and reads a yes/no answer from in.
func confirmDelete(in io.Reader, out io.Writer, snap dupes.Snapshot) (bool, error) {
	var bytes int64
	selected := make(map[string]struct{}, len(snap.Selected))
	for _, id := range snap.Selected {
		selected[id] = struct{}{}
	}
	for _, g := range snap.Groups {
		for _, f := range g.Files {
			if _, ok := selected[f.ID]; ok {
				bytes += f.Size
			}
		}
	}

	fmt.Fprintf(out, "Delete %d files (%s)? [y/N] ", len(snap.Selected), formatBytes(bytes))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printScanReport(w io.Writer, r *scanReport) error {
	if len(r.Groups) == 0 && r.Deletion == nil {
		_, err := fmt.Fprintf(w, "No duplicates found (%s)\n", r.Duration)
		return err
	}

	if len(r.Groups) > 0 {
		selected := make(map[string]struct{}, len(r.Selected))
		for _, id := range r.Selected {
			selected[id] = struct{}{}
		}

		var rows [][]string
		for i, g := range r.Groups {
			for j, f := range g.Files {
				group, size := "", ""
				if j == 0 {
					group = fmt.Sprintf("%d  %s", i+1, shortHash(g.Hash))
					size = formatBytes(g.Size)
				}
				action := ""
				if len(r.Selected) > 0 {
					action = "keep"
					if _, ok := selected[f.ID]; ok {
						action = "delete"
					}
				}
				rows = append(rows, []string{group, size, formatMillis(f.MtimeMs), action, f.Path})
			}
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Group", "Size", "Modified", "Action", "Path"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
		))
	}

	fmt.Fprintf(w, "%d groups, %d redundant files, %s reclaimable (%s)\n",
		r.Stats.TotalGroups, r.Stats.TotalFiles, formatBytes(r.Stats.WastedSpace), r.Duration)

	if d := r.Deletion; d != nil {
		fmt.Fprintf(w, "Deleted %d files, freed %s", d.Deleted, formatBytes(d.BytesSaved))
		if d.Failed > 0 {
			fmt.Fprintf(w, ", %d failed", d.Failed)
		}
		fmt.Fprintln(w)
		for _, f := range d.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.ID, f.Error)
		}
	}
	return nil
}
