package runner

import (
	"time"

	"assetsync/internal/artifacts"
	"assetsync/internal/catalog"
	"assetsync/internal/diff"
	"assetsync/internal/pipeline"
	"assetsync/internal/runstore"
	"assetsync/internal/targets"
)

// Plan is what a sync would do: the staged snapshot, its diff against the
// baseline, and the targets built for the added ids.
type Plan struct {
	IndexType string
	Current   *catalog.Snapshot
	Previous  *catalog.Snapshot
	Diff      diff.Result
	Targets   targets.List
	Artifacts artifacts.Paths
}

// Report is the outcome of one run.
type Report struct {
	RunID     string
	Kind      string
	Plan      *Plan
	Targets   targets.List
	Summary   *pipeline.Summary
	Status    runstore.RunStatus
	Committed bool
	Started   time.Time
	Finished  time.Time
}

// Failed returns the failed target results.
func (r *Report) Failed() []pipeline.Result {
	if r == nil || r.Summary == nil {
		return nil
	}
	return r.Summary.Failed()
}

func statusFor(summary *pipeline.Summary) runstore.RunStatus {
	switch {
	case summary == nil:
		return runstore.RunCompleted
	case summary.Cancelled:
		return runstore.RunCancelled
	case summary.HasFailures():
		return runstore.RunPartial
	default:
		return runstore.RunCompleted
	}
}
