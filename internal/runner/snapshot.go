package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"assetsync/internal/assetstudio"
	"assetsync/internal/catalog"
	"assetsync/internal/logging"
	"assetsync/internal/services"
)

// indexTypes are the TextAsset types exported from the index bundle.
var indexTypes = []string{"TextAsset"}

// currentSnapshot loads the snapshot from a local file when path is set and
// otherwise builds it from the remote index bundle.
func (r *Runner) currentSnapshot(ctx context.Context, path string) (*catalog.Snapshot, error) {
	opts := catalog.Options{Logger: logging.NewComponentLogger(r.base, "catalog")}
	if path != "" {
		opts.Source = path
		snap, err := catalog.LoadFile(path, opts)
		if err != nil {
			return nil, err
		}
		return snap, nil
	}

	indexType := r.cfg.Remote.IndexType
	fetched, err := r.fetcher.FetchIndex(services.WithStage(ctx, "index"), indexType, r.cfg.DownloadDir())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "index", "fetch index bundle", indexType, err)
	}

	exportDir := filepath.Join(r.cfg.ExportDir(), "_index_"+indexType)
	defer func() { _ = os.RemoveAll(exportDir) }()
	export, err := r.extractor.Extract(ctx, fetched.Path, exportDir, assetstudio.Request{Types: indexTypes})
	if err != nil {
		return nil, err
	}
	dump, ok := findIndexDump(export, indexType)
	if !ok {
		return nil, services.Wrap(services.ErrExternalTool, "index", "locate index dump",
			fmt.Sprintf("%s.dat not found among %d exported files", indexType, len(export.Files)), nil)
	}

	file, err := os.Open(dump)
	if err != nil {
		return nil, fmt.Errorf("open index dump: %w", err)
	}
	defer file.Close()
	index, err := catalog.ParseIndex(file)
	if err != nil {
		return nil, err
	}
	pattern, err := catalog.CompileIDPattern(r.cfg.Index.IDPattern)
	if err != nil {
		return nil, err
	}
	opts.Source = dump
	snap, err := catalog.FromIndex(index, pattern, opts)
	if err != nil {
		return nil, err
	}
	r.logger.Info("index ingested",
		logging.String("index_type", indexType),
		logging.Int("entries", len(index.Entries)),
		logging.Int("records", snap.Len()),
		logging.Int("skipped", len(snap.Skipped)),
	)
	return snap, nil
}

// findIndexDump prefers the exact <Type>.dat name and falls back to any file
// whose stem is the index type.
func findIndexDump(export *assetstudio.Result, indexType string) (string, bool) {
	if path, ok := export.FindNamed(indexType + ".dat"); ok {
		return path, true
	}
	return export.Find(func(path string) bool {
		base := filepath.Base(path)
		return strings.EqualFold(strings.TrimSuffix(base, filepath.Ext(base)), indexType)
	})
}
