package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"assetsync/internal/config"
	"assetsync/internal/runner"
)

type planJSON struct {
	IndexType       string       `json:"index_type"`
	SnapshotVersion string       `json:"snapshot_version"`
	Considered      int          `json:"considered"`
	Skipped         int          `json:"skipped_records"`
	Added           []string     `json:"added"`
	Targets         []targetJSON `json:"targets,omitempty"`
	Artifacts       artifactJSON `json:"artifacts"`
}

type targetJSON struct {
	Bundle   string `json:"bundle"`
	Owner    string `json:"owner"`
	Category string `json:"category"`
}

type artifactJSON struct {
	NewIDs     string `json:"new_ids"`
	NewTargets string `json:"new_targets"`
	CardList   string `json:"card_list"`
}

func buildPlanJSON(plan *runner.Plan, withTargets bool) planJSON {
	out := planJSON{
		IndexType:       plan.IndexType,
		SnapshotVersion: plan.Current.Version,
		Considered:      plan.Diff.ConsideredTotal,
		Skipped:         len(plan.Current.Skipped),
		Added:           plan.Diff.RawIDs(),
		Artifacts: artifactJSON{
			NewIDs:     plan.Artifacts.NewIDs,
			NewTargets: plan.Artifacts.NewTargets,
			CardList:   plan.Artifacts.CardList,
		},
	}
	if out.Added == nil {
		out.Added = []string{}
	}
	if withTargets {
		out.Targets = make([]targetJSON, 0, len(plan.Targets))
		for _, target := range plan.Targets {
			out.Targets = append(out.Targets, targetJSON{
				Bundle:   target.Bundle,
				Owner:    target.Owner.String(),
				Category: string(target.Category),
			})
		}
	}
	return out
}

func newDiffCommand(ctx *commandContext) *cobra.Command {
	var (
		snapshotPath string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show entries that are new since the committed baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(_ *config.Config, r *runner.Runner) error {
				plan, err := r.Plan(cmd.Context(), runner.Options{SnapshotPath: snapshotPath})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, buildPlanJSON(plan, false))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Index type: %s\n", plan.IndexType)
				fmt.Fprintf(out, "Considered: %d  Skipped: %d  New: %d\n",
					plan.Diff.ConsideredTotal, len(plan.Current.Skipped), len(plan.Diff.Added))
				for _, id := range plan.Diff.RawIDs() {
					fmt.Fprintln(out, id)
				}
				fmt.Fprintf(out, "Wrote %s\n", plan.Artifacts.NewIDs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Use a local snapshot file instead of the remote index")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newTargetsCommand(ctx *commandContext) *cobra.Command {
	var (
		snapshotPath string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List the bundles a sync would download",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(_ *config.Config, r *runner.Runner) error {
				plan, err := r.Plan(cmd.Context(), runner.Options{SnapshotPath: snapshotPath})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, buildPlanJSON(plan, true))
				}
				out := cmd.OutOrStdout()
				if len(plan.Targets) == 0 {
					fmt.Fprintln(out, "No targets")
					return nil
				}
				rows := make([][]string, 0, len(plan.Targets))
				for i, target := range plan.Targets {
					rows = append(rows, []string{strconv.Itoa(i + 1), target.Bundle, target.Owner.String(), target.Category.Label()})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Bundle", "Owner", "Category"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
				fmt.Fprintf(out, "Wrote %s and %s\n", plan.Artifacts.NewTargets, plan.Artifacts.CardList)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Use a local snapshot file instead of the remote index")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
