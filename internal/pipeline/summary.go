package pipeline

import (
	"time"

	"assetsync/internal/assetstudio"
	"assetsync/internal/targets"
)

// Result is the outcome of one target.
type Result struct {
	Target      targets.Target
	State       State
	FailedStage Stage
	SkipReason  string
	Err         error
	// Files are every destination path the target owns, new or pre-existing.
	Files        []string
	NewFiles     int
	Conflicts    []string
	Unclassified int
	Grouping     assetstudio.Grouping
	Bytes        int64
	Duration     time.Duration
}

func (r *Result) advance(to State) error {
	if err := Transition(r.State, to); err != nil {
		return err
	}
	r.State = to
	return nil
}

// Summary aggregates a run.
type Summary struct {
	RunID     string
	Results   []Result
	Started   time.Time
	Finished  time.Time
	Cancelled bool
}

// Count returns how many targets ended in state.
func (s *Summary) Count(state State) int {
	n := 0
	for _, result := range s.Results {
		if result.State == state {
			n++
		}
	}
	return n
}

// Failed returns the failed results in list order.
func (s *Summary) Failed() []Result {
	var failed []Result
	for _, result := range s.Results {
		if result.State == StateFailed {
			failed = append(failed, result)
		}
	}
	return failed
}

// Bytes is the total downloaded during the run.
func (s *Summary) Bytes() int64 {
	var total int64
	for _, result := range s.Results {
		total += result.Bytes
	}
	return total
}

// NewFiles is the number of files written to the output tree.
func (s *Summary) NewFiles() int {
	total := 0
	for _, result := range s.Results {
		total += result.NewFiles
	}
	return total
}

// Conflicts returns every conflicting destination, in list order.
func (s *Summary) Conflicts() []string {
	var conflicts []string
	for _, result := range s.Results {
		conflicts = append(conflicts, result.Conflicts...)
	}
	return conflicts
}

// HasFailures reports whether any target failed.
func (s *Summary) HasFailures() bool {
	return s.Count(StateFailed) > 0
}
