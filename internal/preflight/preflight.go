package preflight

import (
	"context"

	"assetsync/internal/config"
)

// Result reports the outcome of a single preflight check. Advisory results
// never block a run.
type Result struct {
	Name     string
	Passed   bool
	Advisory bool
	Detail   string
}

// RunAll executes the local preflight checks for the given config. The remote
// host is not contacted; use CheckRemote for that.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.GalleryDir != "" {
		results = append(results, CheckDirectoryAccess("Gallery directory", cfg.Paths.GalleryDir))
	}
	results = append(results, CheckExtractor(cfg.Extractor))
	results = append(results, CheckGrouping(cfg.Extractor))
	return results
}

// Blocking returns the failed results that are not advisory.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed && !result.Advisory {
			failed = append(failed, result)
		}
	}
	return failed
}
