package runstore

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one invocation of sync, bust, or run.
type Run struct {
	ID              string
	Kind            string
	IndexType       string
	SnapshotVersion string
	Status          RunStatus
	StartedAt       time.Time
	FinishedAt      time.Time
	Total           int
	Done            int
	Failed          int
	Skipped         int
	Bytes           int64
	Error           string
}

// Target is the persisted state of one bundle within a run. Root is the
// output root the run places into; placements are scoped to it.
type Target struct {
	RunID        string
	Position     int
	Bundle       string
	Root         string
	Owner        string
	Category     string
	State        string
	FailedStage  string
	ErrorKind    string
	ErrorMessage string
	Bytes        int64
	UpdatedAt    time.Time
	// Files are recorded as placements when non-empty.
	Files []string
}
