package main

import (
	"github.com/spf13/cobra"

	"assetsync/internal/config"
	"assetsync/internal/runner"
)

func newBustCommand(ctx *commandContext) *cobra.Command {
	var (
		snapshotPath string
		force        bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "bust",
		Short: "Download preview images for every catalog entry into the gallery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(_ *config.Config, r *runner.Runner) error {
				opts := runner.Options{SnapshotPath: snapshotPath, Force: force}
				finishBar := func() {}
				if !jsonOutput {
					finishBar = attachProgress(cmd, &opts, "bust")
				}
				report, err := r.Bust(cmd.Context(), opts)
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

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Use a local snapshot file instead of the stored one")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess bundles that are already placed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
