package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"assetsync/internal/assetstudio"
	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
	"assetsync/internal/fetch"
	"assetsync/internal/logging"
	"assetsync/internal/organizer"
	"assetsync/internal/runstore"
	"assetsync/internal/services"
	"assetsync/internal/targets"
)

// Fetcher retrieves one bundle into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, bundle, dir string) (fetch.Result, error)
}

// Placer moves a file into the output tree under Root.
type Placer interface {
	Root() string
	Place(src string, owner entityid.ID, category catalog.Category) (organizer.Placement, error)
}

// Ledger persists target transitions and answers whether a bundle is already
// placed under a given output root.
type Ledger interface {
	RecordTarget(ctx context.Context, target runstore.Target) error
	PlacedFiles(ctx context.Context, root, bundle string) ([]string, bool, error)
}

// Mode selects how exports are filtered and organized.
type Mode int

const (
	// ModeFull places every exported file under its classified category.
	ModeFull Mode = iota
	// ModeBust places only the single preview image per target.
	ModeBust
)

// Options tune one orchestration run.
type Options struct {
	RunID       string
	Concurrency int
	DownloadDir string
	ExportDir   string
	Mode        Mode
	// TypeAttempts are the --types filters tried in order in bust mode.
	TypeAttempts [][]string
	// Containers returns an optional --containers filter for a target.
	Containers func(targets.Target) string
	// Force ignores the ledger and reprocesses already placed bundles.
	Force bool
	// Progress is called once per finished target. Calls are serialised.
	Progress func(Result)
}

// Orchestrator runs target lists.
type Orchestrator struct {
	fetcher   Fetcher
	extractor assetstudio.Extractor
	placer    Placer
	ledger    Ledger
	logger    *slog.Logger
}

// New constructs an orchestrator. ledger may be nil.
func New(fetcher Fetcher, extractor assetstudio.Extractor, placer Placer, ledger Ledger, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		placer:    placer,
		ledger:    ledger,
		logger:    logger,
	}
}

// Run processes list and returns a summary with one result per target in list
// order. Target failures are reported in the summary, never as an error.
func (o *Orchestrator) Run(ctx context.Context, list targets.List, opts Options) (*Summary, error) {
	if o.fetcher == nil || o.extractor == nil || o.placer == nil {
		return nil, errors.New("orchestrator requires fetcher, extractor, and placer")
	}
	if opts.DownloadDir == "" || opts.ExportDir == "" {
		return nil, errors.New("download and export directories required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Mode == ModeBust && len(opts.TypeAttempts) == 0 {
		opts.TypeAttempts = [][]string{nil}
	}
	if opts.RunID != "" {
		ctx = services.WithRunID(ctx, opts.RunID)
	}

	summary := &Summary{RunID: opts.RunID, Started: time.Now(), Results: make([]Result, len(list))}
	detached := context.WithoutCancel(ctx)
	for i, target := range list {
		summary.Results[i] = Result{Target: target, State: StatePending}
		o.record(detached, opts.RunID, i, summary.Results[i])
	}

	var progressMu sync.Mutex
	finish := func(i int, result Result) {
		summary.Results[i] = result
		o.record(detached, opts.RunID, i, result)
		if opts.Progress != nil {
			progressMu.Lock()
			opts.Progress(result)
			progressMu.Unlock()
		}
	}

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, target := range list {
		if ctx.Err() != nil {
			finish(i, skipped(target, SkipCancelled))
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				finish(i, skipped(target, SkipCancelled))
				return nil
			}
			finish(i, o.process(detached, i, target, opts))
			return nil
		})
	}
	_ = g.Wait()

	summary.Finished = time.Now()
	summary.Cancelled = ctx.Err() != nil
	return summary, nil
}

func skipped(target targets.Target, reason string) Result {
	return Result{Target: target, State: StateSkipped, SkipReason: reason}
}

func (o *Orchestrator) process(ctx context.Context, position int, target targets.Target, opts Options) Result {
	started := time.Now()
	ctx = services.WithTarget(ctx, target.Bundle)
	ctx = services.WithEntityID(ctx, target.Owner.String())
	result := Result{Target: target, State: StatePending}

	if err := catalog.CheckBundleName(target.Bundle); err != nil {
		result.State = StateFailed
		result.FailedStage = StageFetch
		result.Err = err
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "target rejected", "target_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "bundle names must not contain path separators or \"..\""),
			logging.String(logging.FieldImpact, "target skipped; run continues"),
		)
		return result
	}

	if !opts.Force && o.alreadyPlaced(ctx, target.Bundle) {
		result.State = StateSkipped
		result.SkipReason = SkipAlreadyPlaced
		return result
	}

	fail := func(stage Stage, err error) Result {
		if terr := result.advance(StateFailed); terr != nil {
			err = errors.Join(err, terr)
		}
		result.State = StateFailed
		result.FailedStage = stage
		result.Err = err
		result.Duration = time.Since(started)
		logger := logging.WithContext(services.WithStage(ctx, string(stage)), o.logger)
		logging.WarnWithContext(logger, "target failed", "target_failed",
			logging.Error(err),
			logging.String("error_kind", services.Classify(err)),
			logging.String(logging.FieldErrorHint, failureHint(stage)),
			logging.String(logging.FieldImpact, "target skipped; run continues"),
		)
		return result
	}

	fetched, err := o.fetcher.Fetch(services.WithStage(ctx, string(StageFetch)), target.Bundle, opts.DownloadDir)
	if err != nil {
		return fail(StageFetch, err)
	}
	if !fetched.Skipped {
		result.Bytes = fetched.Bytes
	}
	if err := result.advance(StateFetched); err != nil {
		return fail(StageFetch, err)
	}
	o.record(ctx, opts.RunID, position, result)

	exportDir := filepath.Join(opts.ExportDir, target.Bundle)
	defer func() { _ = os.RemoveAll(exportDir) }()
	export, files, err := o.unpack(services.WithStage(ctx, string(StageUnpack)), target, fetched.Path, exportDir, opts)
	if err != nil {
		return fail(StageUnpack, err)
	}
	result.Grouping = export.Grouping
	if export.Grouping == assetstudio.GroupingByType {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "export grouped by type", "grouping_by_type",
			logging.String(logging.FieldErrorHint, "set extractor.group_assets = \"BySource\""),
			logging.String(logging.FieldImpact, "files are classified by extension and type folder only"),
		)
	}
	if err := result.advance(StateUnpacked); err != nil {
		return fail(StageUnpack, err)
	}
	o.record(ctx, opts.RunID, position, result)

	type classified struct {
		path     string
		category catalog.Category
	}
	var plan []classified
	for _, file := range files {
		rel, relErr := filepath.Rel(exportDir, file)
		if relErr != nil {
			rel = file
		}
		category := organizer.Classify(rel, target.Bundle)
		if opts.Mode == ModeBust {
			category = catalog.CategoryImage
		}
		if category == catalog.CategoryUnclassified {
			result.Unclassified++
		}
		plan = append(plan, classified{path: file, category: category})
	}
	if len(plan) == 0 {
		return fail(StageOrganize, errors.New("nothing to organize"))
	}
	if err := result.advance(StateOrganized); err != nil {
		return fail(StageOrganize, err)
	}
	o.record(ctx, opts.RunID, position, result)

	for _, item := range plan {
		placement, err := o.placer.Place(item.path, target.Owner, item.category)
		var conflict *organizer.ConflictError
		switch {
		case errors.As(err, &conflict):
			result.Conflicts = append(result.Conflicts, conflict.Destination)
			logging.WarnWithContext(logging.WithContext(ctx, o.logger), "destination holds different content", "place_conflict",
				logging.String("path", conflict.Destination),
				logging.String(logging.FieldErrorHint, "remove the existing file to accept the new export"),
				logging.String(logging.FieldImpact, "existing file kept"),
			)
		case err != nil:
			return fail(StagePlace, err)
		default:
			result.Files = append(result.Files, placement.Path)
			if !placement.Existing {
				result.NewFiles++
			}
		}
	}
	if err := result.advance(StateDone); err != nil {
		return fail(StagePlace, err)
	}
	result.Duration = time.Since(started)
	logging.WithContext(ctx, o.logger).Debug("target done",
		logging.Int("files", len(result.Files)),
		logging.Int("new_files", result.NewFiles),
		logging.Duration("duration", result.Duration),
	)
	return result
}

// unpack exports the bundle and returns the files to organize. Bust mode tries
// each type filter until an image appears and keeps only the shortest image path.
func (o *Orchestrator) unpack(ctx context.Context, target targets.Target, input, exportDir string, opts Options) (*assetstudio.Result, []string, error) {
	req := assetstudio.Request{}
	if opts.Containers != nil {
		req.Containers = opts.Containers(target)
	}
	if opts.Mode != ModeBust {
		export, err := o.extractor.Extract(ctx, input, exportDir, req)
		if err != nil {
			return nil, nil, err
		}
		return export, export.Files, nil
	}

	var lastErr error
	for _, types := range opts.TypeAttempts {
		req.Types = types
		export, err := o.extractor.Extract(ctx, input, exportDir, req)
		if err != nil {
			lastErr = err
			continue
		}
		if image, ok := export.Find(isImage); ok {
			return export, []string{image}, nil
		}
		lastErr = fmt.Errorf("no image exported with types %q", strings.Join(types, ","))
	}
	return nil, nil, &assetstudio.UnpackError{Input: input, Reason: "no preview image exported", Err: lastErr}
}

func isImage(path string) bool {
	return organizer.Classify(path, "") == catalog.CategoryImage && filepath.Ext(path) != ""
}

func (o *Orchestrator) alreadyPlaced(ctx context.Context, bundle string) bool {
	if o.ledger == nil {
		return false
	}
	files, done, err := o.ledger.PlacedFiles(ctx, o.placer.Root(), bundle)
	if err != nil {
		o.logger.Debug("ledger lookup failed", logging.String("bundle", bundle), logging.Error(err))
		return false
	}
	if !done {
		return false
	}
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func (o *Orchestrator) record(ctx context.Context, runID string, position int, result Result) {
	if o.ledger == nil || runID == "" {
		return
	}
	entry := runstore.Target{
		RunID:       runID,
		Root:        o.placer.Root(),
		Position:    position,
		Bundle:      result.Target.Bundle,
		Owner:       result.Target.Owner.String(),
		Category:    string(result.Target.Category),
		State:       string(result.State),
		FailedStage: string(result.FailedStage),
		Bytes:       result.Bytes,
	}
	if result.Err != nil {
		entry.ErrorKind = services.Classify(result.Err)
		entry.ErrorMessage = result.Err.Error()
	}
	if result.State == StateDone {
		entry.Files = result.Files
	}
	if err := o.ledger.RecordTarget(ctx, entry); err != nil {
		logging.WarnWithContext(o.logger, "run ledger write failed", "ledger_write_failed",
			logging.String("bundle", result.Target.Bundle),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "status history is incomplete for this run"),
		)
	}
}

func failureHint(stage Stage) string {
	switch stage {
	case StageFetch:
		return "check remote.base_url and network connectivity"
	case StageUnpack:
		return "check the extractor binary and its output"
	case StagePlace:
		return "check the output directory is writable"
	default:
		return "inspect the export directory for this bundle"
	}
}
