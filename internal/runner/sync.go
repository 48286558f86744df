package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"assetsync/internal/artifacts"
	"assetsync/internal/diff"
	"assetsync/internal/logging"
	"assetsync/internal/notifications"
	"assetsync/internal/organizer"
	"assetsync/internal/pipeline"
	"assetsync/internal/runstore"
	"assetsync/internal/services"
	"assetsync/internal/targets"
)

// Options tune a run.
type Options struct {
	// SnapshotPath loads the current snapshot from a local file instead of
	// the remote index.
	SnapshotPath string
	// CommitPartial promotes the snapshot even when some targets failed.
	CommitPartial bool
	// Force reprocesses bundles an earlier run already placed.
	Force bool
	// OnStart is called once with the number of targets before any work.
	OnStart func(total int)
	// Progress is called once per finished target.
	Progress func(pipeline.Result)
}

// Plan stages the current snapshot, diffs it against the committed baseline,
// writes the diff artifacts, and builds targets for the added ids. The
// baseline is not modified.
func (r *Runner) Plan(ctx context.Context, opts Options) (*Plan, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.plan(ctx, opts)
}

func (r *Runner) plan(ctx context.Context, opts Options) (*Plan, error) {
	current, err := r.currentSnapshot(ctx, opts.SnapshotPath)
	if err != nil {
		return nil, err
	}
	if err := r.snapshots.StageCurrent(ctx, current); err != nil {
		return nil, err
	}
	previous, err := r.snapshots.LoadPrevious(ctx)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		IndexType: r.cfg.Remote.IndexType,
		Current:   current,
		Previous:  previous,
		Diff:      diff.Compute(previous, current),
		Artifacts: artifacts.PathsFor(r.cfg.IndexStoreDir(), r.cfg.Remote.IndexType),
	}
	if err := artifacts.WriteDiff(plan.Artifacts, plan.Diff, current); err != nil {
		return nil, err
	}

	builder := targets.NewBuilder(r.cfg.Targets)
	plan.Targets, err = builder.Build(current, plan.Diff.Added, targets.Categories(r.cfg.Targets.Categories))
	if err != nil {
		return nil, err
	}
	if err := artifacts.WriteCardList(plan.Artifacts.CardList, plan.Targets); err != nil {
		return nil, err
	}

	r.logger.Info("diff computed",
		logging.String("index_type", plan.IndexType),
		logging.String("snapshot_version", current.Version),
		logging.Int("considered", plan.Diff.ConsideredTotal),
		logging.Int("added", len(plan.Diff.Added)),
		logging.Int("targets", len(plan.Targets)),
	)
	if len(current.Skipped) > 0 {
		logging.WarnWithContext(r.logger, "snapshot records skipped", "snapshot_records_skipped",
			logging.Int("count", len(current.Skipped)),
			logging.String(logging.FieldErrorHint, "check index.id_pattern against the malformed ids in the log"),
			logging.String(logging.FieldImpact, "skipped records are never diffed or downloaded"),
		)
	}
	return plan, nil
}

// Sync runs a full cycle: plan, download and place every target, then promote
// the staged snapshot to the baseline when no target failed (or CommitPartial
// is set and the run was not cancelled).
func (r *Runner) Sync(ctx context.Context, opts Options) (*Report, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	report := &Report{RunID: uuid.NewString(), Kind: "sync", Started: time.Now()}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, r.logger)
	run := runstore.Run{ID: report.RunID, Kind: report.Kind, IndexType: r.cfg.Remote.IndexType, StartedAt: report.Started}
	if err := r.ledger.BeginRun(ctx, run); err != nil {
		return nil, err
	}

	plan, err := r.plan(ctx, opts)
	if err != nil {
		r.abort(ctx, run, err)
		return nil, err
	}
	report.Plan = plan
	report.Targets = plan.Targets
	run.SnapshotVersion = plan.Current.Version
	run.Total = len(plan.Targets)

	r.notify(ctx, notifications.EventNewEntities, notifications.Payload{
		"indexType": plan.IndexType,
		"count":     len(plan.Diff.Added),
		"ids":       plan.Diff.RawIDs(),
	})

	summary, err := r.execute(ctx, report, plan.Targets, pipeline.ModeFull, organizer.New(r.cfg.Paths.OutputDir, logging.NewComponentLogger(r.base, "organizer")), opts)
	if err != nil {
		r.abort(ctx, run, err)
		return nil, err
	}

	if !summary.Cancelled && (!summary.HasFailures() || opts.CommitPartial || r.cfg.Workflow.CommitPartial) {
		if err := r.snapshots.CommitCurrent(ctx); err != nil {
			r.abort(ctx, run, err)
			return nil, err
		}
		report.Committed = true
	} else {
		logging.WarnWithContext(logger, "baseline not promoted", "baseline_kept",
			logging.Int("failed", summary.Count(pipeline.StateFailed)),
			logging.Bool("cancelled", summary.Cancelled),
			logging.String(logging.FieldErrorHint, "rerun sync, or pass --commit-partial to accept the failures"),
			logging.String(logging.FieldImpact, "the next sync reports the same entries as new"),
		)
	}
	r.finish(ctx, run, report)
	return report, nil
}

// execute drives list through the pipeline and fills report.
func (r *Runner) execute(ctx context.Context, report *Report, list targets.List, mode pipeline.Mode, placer pipeline.Placer, opts Options) (*pipeline.Summary, error) {
	if opts.OnStart != nil {
		opts.OnStart(len(list))
	}
	r.notify(ctx, notifications.EventRunStarted, notifications.Payload{
		"indexType": r.cfg.Remote.IndexType,
		"targets":   len(list),
	})

	pipelineOpts := pipeline.Options{
		RunID:       report.RunID,
		Concurrency: r.cfg.Workflow.ConcurrencyLimit,
		DownloadDir: r.cfg.DownloadDir(),
		ExportDir:   r.cfg.ExportDir(),
		Mode:        mode,
		Force:       opts.Force,
		Progress:    opts.Progress,
	}
	if mode == pipeline.ModeBust {
		pipelineOpts.TypeAttempts = typeAttempts(r.cfg.Bust.TypeAttempts)
		pipelineOpts.Containers = bustContainers
	}
	summary, err := r.orchestrator(placer).Run(ctx, list, pipelineOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrate: %w", err)
	}
	report.Summary = summary
	report.Status = statusFor(summary)
	return summary, nil
}

func (r *Runner) finish(ctx context.Context, run runstore.Run, report *Report) {
	report.Finished = time.Now()
	summary := report.Summary
	run.Status = report.Status
	run.FinishedAt = report.Finished
	run.Total = len(report.Targets)
	if summary != nil {
		run.Done = summary.Count(pipeline.StateDone)
		run.Failed = summary.Count(pipeline.StateFailed)
		run.Skipped = summary.Count(pipeline.StateSkipped)
		run.Bytes = summary.Bytes()
	}
	ledgerCtx := context.WithoutCancel(ctx)
	if err := r.ledger.FinishRun(ledgerCtx, run); err != nil {
		r.logger.Warn("failed to record run result",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_record_failed"),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
		)
	}

	logging.WithContext(ctx, r.logger).Info("run finished",
		logging.String("kind", report.Kind),
		logging.String("status", string(report.Status)),
		logging.Int("targets", run.Total),
		logging.Int("done", run.Done),
		logging.Int("failed", run.Failed),
		logging.Int("skipped", run.Skipped),
		logging.Int64("bytes", run.Bytes),
		logging.Bool("committed", report.Committed),
		logging.Duration("duration", report.Finished.Sub(report.Started)),
	)
	r.notify(ledgerCtx, notifications.EventRunCompleted, notifications.Payload{
		"done":     run.Done,
		"failed":   run.Failed,
		"bytes":    run.Bytes,
		"duration": report.Finished.Sub(report.Started),
	})
}

func (r *Runner) abort(ctx context.Context, run runstore.Run, cause error) {
	ledgerCtx := context.WithoutCancel(ctx)
	run.Status = runstore.RunFailed
	run.FinishedAt = time.Now()
	run.Error = cause.Error()
	if err := r.ledger.FinishRun(ledgerCtx, run); err != nil {
		r.logger.Warn("failed to record run failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_record_failed"),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
		)
	}
	logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "run aborted", "run_aborted",
		logging.Error(cause),
		logging.String("error_kind", services.Classify(cause)),
		logging.String(logging.FieldErrorHint, abortHint(cause)),
	)
	r.notify(ledgerCtx, notifications.EventError, notifications.Payload{
		"context": run.Kind,
		"error":   cause,
	})
}

func abortHint(err error) string {
	switch services.Classify(err) {
	case "configuration":
		return "fix the configuration and rerun; assetsync config validate shows details"
	case "validation":
		return "the snapshot is malformed; inspect the file named in the error"
	case "external_tool":
		return "check the extractor binary and its output"
	default:
		return "check network connectivity and remote.base_url, then rerun"
	}
}
