package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetsync/internal/preflight"
	"assetsync/internal/runstore"
)

type checkJSON struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Advisory bool   `json:"advisory,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type runJSON struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	SnapshotVersion string `json:"snapshot_version,omitempty"`
	StartedAt       string `json:"started_at"`
	FinishedAt      string `json:"finished_at,omitempty"`
	Total           int    `json:"total"`
	Done            int    `json:"done"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
	Bytes           int64  `json:"bytes"`
	Error           string `json:"error,omitempty"`
}

type statusJSON struct {
	Checks []checkJSON `json:"checks"`
	Runs   []runJSON   `json:"runs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		checkRemote bool
		limit       int
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			if checkRemote {
				results = append(results, preflight.CheckRemote(cmd.Context(), cfg.Remote, cfg.Remote.IndexType))
			}

			store, err := runstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, buildStatusJSON(results, runs))
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				fmt.Fprintln(out, renderStatusLine(result.Name, checkKind(result), result.Detail, colorize))
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Recent runs", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Kind", "Status", "Done", "Failed", "Skipped", "Downloaded"},
				runRows(runs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkRemote, "check-remote", false, "Also check that the asset host answers")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func checkKind(result preflight.Result) statusKind {
	switch {
	case result.Passed:
		return statusOK
	case result.Advisory:
		return statusWarn
	default:
		return statusError
	}
}

func runRows(runs []runstore.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			humanize.Time(run.StartedAt),
			run.Kind,
			string(run.Status),
			strconv.Itoa(run.Done),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Skipped),
			humanize.Bytes(uint64(run.Bytes)),
		})
	}
	return rows
}

func buildStatusJSON(results []preflight.Result, runs []runstore.Run) statusJSON {
	out := statusJSON{Checks: []checkJSON{}, Runs: []runJSON{}}
	for _, result := range results {
		out.Checks = append(out.Checks, checkJSON(result))
	}
	for _, run := range runs {
		entry := runJSON{
			ID:              run.ID,
			Kind:            run.Kind,
			Status:          string(run.Status),
			SnapshotVersion: run.SnapshotVersion,
			StartedAt:       run.StartedAt.UTC().Format(time.RFC3339),
			Total:           run.Total,
			Done:            run.Done,
			Failed:          run.Failed,
			Skipped:         run.Skipped,
			Bytes:           run.Bytes,
			Error:           run.Error,
		}
		if !run.FinishedAt.IsZero() {
			entry.FinishedAt = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		out.Runs = append(out.Runs, entry)
	}
	return out
}
