package main

import (
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"assetsync/internal/pipeline"
	"assetsync/internal/runner"
)

// attachProgress wires a progress bar to opts when stderr is a terminal and
// returns a func that finishes it.
func attachProgress(cmd *cobra.Command, opts *runner.Options, description string) func() {
	w := cmd.ErrOrStderr()
	if !isTerminal(w) {
		return func() {}
	}
	var bar *progressbar.ProgressBar
	opts.OnStart = func(total int) {
		if total == 0 {
			return
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	opts.Progress = func(pipeline.Result) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
}
