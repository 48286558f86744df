package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetsync/internal/pipeline"
	"assetsync/internal/runner"
	"assetsync/internal/services"
)

type targetResultJSON struct {
	Bundle      string   `json:"bundle"`
	Owner       string   `json:"owner"`
	Category    string   `json:"category"`
	State       string   `json:"state"`
	FailedStage string   `json:"failed_stage,omitempty"`
	SkipReason  string   `json:"skip_reason,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	Error       string   `json:"error,omitempty"`
	Files       []string `json:"files,omitempty"`
	NewFiles    int      `json:"new_files"`
	Conflicts   []string `json:"conflicts,omitempty"`
	Bytes       int64    `json:"bytes"`
}

type reportJSON struct {
	RunID           string             `json:"run_id"`
	Kind            string             `json:"kind"`
	Status          string             `json:"status"`
	Committed       bool               `json:"committed"`
	SnapshotVersion string             `json:"snapshot_version,omitempty"`
	Added           []string           `json:"added,omitempty"`
	Counts          map[string]int     `json:"counts"`
	Bytes           int64              `json:"bytes"`
	NewFiles        int                `json:"new_files"`
	DurationMS      int64              `json:"duration_ms"`
	Targets         []targetResultJSON `json:"targets"`
}

var reportStates = []pipeline.State{pipeline.StateDone, pipeline.StateFailed, pipeline.StateSkipped}

func buildReportJSON(report *runner.Report) reportJSON {
	out := reportJSON{
		RunID:      report.RunID,
		Kind:       report.Kind,
		Status:     string(report.Status),
		Committed:  report.Committed,
		Counts:     map[string]int{},
		DurationMS: report.Finished.Sub(report.Started).Milliseconds(),
		Targets:    []targetResultJSON{},
	}
	if report.Plan != nil {
		out.SnapshotVersion = report.Plan.Current.Version
		out.Added = report.Plan.Diff.RawIDs()
	}
	summary := report.Summary
	if summary == nil {
		return out
	}
	for _, state := range reportStates {
		out.Counts[string(state)] = summary.Count(state)
	}
	out.Bytes = summary.Bytes()
	out.NewFiles = summary.NewFiles()
	for _, result := range summary.Results {
		entry := targetResultJSON{
			Bundle:      result.Target.Bundle,
			Owner:       result.Target.Owner.String(),
			Category:    string(result.Target.Category),
			State:       string(result.State),
			FailedStage: string(result.FailedStage),
			SkipReason:  result.SkipReason,
			Files:       result.Files,
			NewFiles:    result.NewFiles,
			Conflicts:   result.Conflicts,
			Bytes:       result.Bytes,
		}
		if result.Err != nil {
			entry.ErrorKind = services.Classify(result.Err)
			entry.Error = result.Err.Error()
		}
		out.Targets = append(out.Targets, entry)
	}
	return out
}

func printReport(cmd *cobra.Command, report *runner.Report) {
	out := cmd.OutOrStdout()
	colorize := isTerminal(out)
	for _, line := range renderSectionHeader(fmt.Sprintf("%s %s", report.Kind, report.RunID), colorize) {
		fmt.Fprintln(out, line)
	}
	if report.Plan != nil {
		fmt.Fprintf(out, "New entries: %d of %d\n", len(report.Plan.Diff.Added), report.Plan.Diff.ConsideredTotal)
	}
	summary := report.Summary
	if summary == nil || len(summary.Results) == 0 {
		fmt.Fprintln(out, "No targets to process")
		fmt.Fprintf(out, "Baseline committed: %s\n", yesNo(report.Committed))
		return
	}

	rows := make([][]string, 0, len(reportStates))
	for _, state := range reportStates {
		rows = append(rows, []string{string(state), strconv.Itoa(summary.Count(state))})
	}
	fmt.Fprintln(out, renderTable([]string{"State", "Targets"}, rows, []columnAlignment{alignLeft, alignRight},
		"total", strconv.Itoa(len(summary.Results))))
	fmt.Fprintf(out, "Downloaded: %s  New files: %d  Duration: %s\n",
		humanize.Bytes(uint64(summary.Bytes())), summary.NewFiles(),
		report.Finished.Sub(report.Started).Round(time.Millisecond))

	if failed := summary.Failed(); len(failed) > 0 {
		failRows := make([][]string, 0, len(failed))
		for _, result := range failed {
			failRows = append(failRows, []string{result.Target.Bundle, string(result.FailedStage), firstLine(result.Err)})
		}
		fmt.Fprintln(out, renderTable([]string{"Failed target", "Stage", "Error"}, failRows, nil))
	}
	if conflicts := summary.Conflicts(); len(conflicts) > 0 {
		fmt.Fprintf(out, "Conflicts (existing files kept): %d\n", len(conflicts))
		for _, path := range conflicts {
			fmt.Fprintf(out, "  %s\n", path)
		}
	}
	if summary.Cancelled {
		fmt.Fprintln(out, "Run cancelled; remaining targets were skipped")
	}
	if report.Kind == "sync" {
		fmt.Fprintf(out, "Baseline committed: %s\n", yesNo(report.Committed))
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}

// reportError turns a run with failed targets into a non-zero exit.
func reportError(report *runner.Report) error {
	if report == nil || report.Summary == nil {
		return nil
	}
	if n := report.Summary.Count(pipeline.StateFailed); n > 0 {
		return fmt.Errorf("%d target(s) failed", n)
	}
	return nil
}
