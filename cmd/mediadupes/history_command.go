package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/mediadupes/internal/db"
)

type historyRun struct {
	RunID    string   `json:"runId" yaml:"run_id"`
	Started  string   `json:"startedAt" yaml:"started_at"`
	Trigger  string   `json:"trigger" yaml:"trigger"`
	Backend  string   `json:"backend" yaml:"backend"`
	Status   string   `json:"status" yaml:"status"`
	Paths    []string `json:"paths" yaml:"paths"`
	Groups   int64    `json:"duplicateGroups" yaml:"duplicate_groups"`
	Files    int64    `json:"duplicateFiles" yaml:"duplicate_files"`
	Wasted   int64    `json:"wastedBytes" yaml:"wasted_bytes"`
	Duration string   `json:"duration" yaml:"duration"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type historyAction struct {
	ID         int64  `json:"id" yaml:"id"`
	Started    string `json:"startedAt" yaml:"started_at"`
	Strategy   string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Status     string `json:"status" yaml:"status"`
	Requested  int    `json:"filesRequested" yaml:"files_requested"`
	Deleted    int    `json:"filesDeleted" yaml:"files_deleted"`
	Failed     int    `json:"filesFailed" yaml:"files_failed"`
	BytesSaved int64  `json:"bytesSaved" yaml:"bytes_saved"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

const timeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var actions bool
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scans or deletions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			format, err := parseFormat(formatFlag)
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			database, err := db.Open(cfg.DB.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			if actions {
				list, err := database.ListActions(limit, 0)
				if err != nil {
					return err
				}
				views := toHistoryActions(list)
				if done, err := writeStructured(cmd, format, views); done {
					return err
				}
				return printActions(cmd.OutOrStdout(), views)
			}

			runs, err := database.ListScanRuns(limit, 0)
			if err != nil {
				return err
			}
			views := toHistoryRuns(runs)
			if done, err := writeStructured(cmd, format, views); done {
				return err
			}
			return printRuns(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&actions, "actions", false, "Show deletions instead of scans")
	cmd.Flags().StringVarP(&formatFlag, "format", "o", "table", "Output format: table, json or yaml")
	return cmd
}

func toHistoryRuns(runs []*db.ScanRun) []historyRun {
	views := make([]historyRun, 0, len(runs))
	for _, r := range runs {
		v := historyRun{
			RunID:    r.RunID,
			Started:  r.StartedAt.Local().Format(timeLayout),
			Trigger:  string(r.Trigger),
			Backend:  r.Backend,
			Status:   string(r.Status),
			Paths:    r.Paths,
			Groups:   r.DuplicateGroups,
			Files:    r.DuplicateFiles,
			Wasted:   r.WastedBytes,
			Duration: formatDuration(r.Duration()),
		}
		if r.ErrorMessage != nil {
			v.Error = *r.ErrorMessage
		}
		views = append(views, v)
	}
	return views
}

func toHistoryActions(list []*db.Action) []historyAction {
	views := make([]historyAction, 0, len(list))
	for _, a := range list {
		v := historyAction{
			ID:         a.ID,
			Started:    a.StartedAt.Local().Format(timeLayout),
			Status:     string(a.Status),
			Requested:  a.FilesRequested,
			Deleted:    a.FilesDeleted,
			Failed:     a.FilesFailed,
			BytesSaved: a.BytesSaved,
		}
		if a.Strategy != nil {
			v.Strategy = *a.Strategy
		}
		if a.ErrorMessage != nil {
			v.Error = *a.ErrorMessage
		}
		views = append(views, v)
	}
	return views
}

func printRuns(w io.Writer, runs []historyRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded")
		return err
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortHash(r.RunID), r.Started, r.Trigger, r.Backend, r.Status,
			strconv.FormatInt(r.Groups, 10), strconv.FormatInt(r.Files, 10), formatBytes(r.Wasted), r.Duration,
		})
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"Run", "Started", "Trigger", "Backend", "Status", "Groups", "Files", "Wasted", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	return err
}

func printActions(w io.Writer, actions []historyAction) error {
	if len(actions) == 0 {
		_, err := fmt.Fprintln(w, "No deletions recorded")
		return err
	}
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		strategy := a.Strategy
		if strategy == "" {
			strategy = "manual"
		}
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10), a.Started, strategy, a.Status,
			strconv.Itoa(a.Deleted), strconv.Itoa(a.Failed), formatBytes(a.BytesSaved),
		})
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"ID", "Started", "Strategy", "Status", "Deleted", "Failed", "Freed"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return err
}
