package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"assetsync/internal/config"
	"assetsync/internal/runner"
	"assetsync/internal/targets"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		cardList   string
		force      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download the bundles named in a card list",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(cardList)
			if path == "" {
				return fmt.Errorf("--card-list is required")
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open card list: %w", err)
			}
			list, rejected, err := targets.ParseCardList(file)
			_ = file.Close()
			if err != nil {
				return err
			}
			for _, line := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "Ignoring line without an entity id: %s\n", line)
			}

			return ctx.withRunner(func(_ *config.Config, r *runner.Runner) error {
				opts := runner.Options{Force: force}
				finishBar := func() {}
				if !jsonOutput {
					finishBar = attachProgress(cmd, &opts, "run")
				}
				report, err := r.Process(cmd.Context(), list, opts)
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

	cmd.Flags().StringVar(&cardList, "card-list", "", "File with one bundle name per line")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess bundles that are already placed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
