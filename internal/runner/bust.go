package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"assetsync/internal/bust"
	"assetsync/internal/catalog"
	"assetsync/internal/logging"
	"assetsync/internal/organizer"
	"assetsync/internal/pipeline"
	"assetsync/internal/runstore"
	"assetsync/internal/services"
	"assetsync/internal/targets"
)

func bustContainers(target targets.Target) string {
	return bust.ContainerPattern(target.Bundle)
}

// Bust exports one preview image per entity into the gallery root. The
// snapshot comes from SnapshotPath, else the staged snapshot, else the
// committed baseline. Neither snapshot file is modified.
func (r *Runner) Bust(ctx context.Context, opts Options) (*Report, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	extractor, err := bust.New(r.cfg.Bust.Template, r.cfg.Bust.KeyRegex)
	if err != nil {
		return nil, err
	}
	snap, err := r.bustSnapshot(ctx, opts.SnapshotPath)
	if err != nil {
		return nil, err
	}
	list := extractor.Extract(snap)
	gallery := organizer.New(r.cfg.Paths.GalleryDir, logging.NewComponentLogger(r.base, "gallery"))
	return r.runList(ctx, "bust", snap.Version, list, pipeline.ModeBust, gallery, opts)
}

func (r *Runner) bustSnapshot(ctx context.Context, path string) (*catalog.Snapshot, error) {
	if path != "" {
		return catalog.LoadFile(path, catalog.Options{Logger: logging.NewComponentLogger(r.base, "catalog"), Source: path})
	}
	snap, err := r.snapshots.LoadCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Len() > 0 {
		return snap, nil
	}
	snap, err = r.snapshots.LoadPrevious(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, services.Wrap(services.ErrNotFound, "bust", "load snapshot",
			"no snapshot available; run sync first or pass --snapshot", nil)
	}
	return snap, nil
}

// Process runs an explicit target list, typically read from a card list file,
// into the output root. Snapshots are not touched.
func (r *Runner) Process(ctx context.Context, list targets.List, opts Options) (*Report, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	organize := organizer.New(r.cfg.Paths.OutputDir, logging.NewComponentLogger(r.base, "organizer"))
	return r.runList(ctx, "run", "", list, pipeline.ModeFull, organize, opts)
}

func (r *Runner) runList(ctx context.Context, kind, version string, list targets.List, mode pipeline.Mode, placer pipeline.Placer, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Kind: kind, Targets: list, Started: time.Now()}
	ctx = services.WithRunID(ctx, report.RunID)
	run := runstore.Run{
		ID:              report.RunID,
		Kind:            kind,
		IndexType:       r.cfg.Remote.IndexType,
		SnapshotVersion: version,
		StartedAt:       report.Started,
		Total:           len(list),
	}
	if err := r.ledger.BeginRun(ctx, run); err != nil {
		return nil, err
	}
	if _, err := r.execute(ctx, report, list, mode, placer, opts); err != nil {
		r.abort(ctx, run, err)
		return nil, err
	}
	r.finish(ctx, run, report)
	return report, nil
}
