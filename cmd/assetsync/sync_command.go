package main

import (
	"github.com/spf13/cobra"

	"assetsync/internal/config"
	"assetsync/internal/runner"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		snapshotPath  string
		commitPartial bool
		force         bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the catalog index, diff it, and download new bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(_ *config.Config, r *runner.Runner) error {
				opts := runner.Options{
					SnapshotPath:  snapshotPath,
					CommitPartial: commitPartial,
					Force:         force,
				}
				finishBar := func() {}
				if !jsonOutput {
					finishBar = attachProgress(cmd, &opts, "sync")
				}
				report, err := r.Sync(cmd.Context(), opts)
				finishBar()
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSON(cmd, buildReportJSON(report)); err != nil {
						return err
					}
				} else {
					printReport(cmd, report)
				}
				return reportError(report)
			})
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Use a local snapshot file instead of the remote index")
	cmd.Flags().BoolVar(&commitPartial, "commit-partial", false, "Promote the snapshot even when some targets fail")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess bundles that are already placed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
