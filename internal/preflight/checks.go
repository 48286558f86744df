package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"assetsync/internal/config"
	"assetsync/internal/deps"
	"assetsync/internal/fetch"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckExtractor verifies the exporter binary resolves.
func CheckExtractor(cfg config.Extractor) Result {
	status := deps.ResolveExtractor(cfg.Binary)
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	return Result{Name: status.Name, Passed: true, Detail: status.Command}
}

// CheckGrouping reports whether exports will be grouped by source bundle.
func CheckGrouping(cfg config.Extractor) Result {
	const name = "Export grouping"
	mode := strings.TrimSpace(cfg.GroupAssets)
	if mode == config.GroupBySource {
		return Result{Name: name, Passed: true, Advisory: true, Detail: mode}
	}
	if mode == "" {
		mode = "(unset)"
	}
	return Result{
		Name:     name,
		Advisory: true,
		Detail:   fmt.Sprintf("%s; set extractor.group_assets = %q for per-bundle folders", mode, config.GroupBySource),
	}
}

// CheckRemote verifies the asset host answers for the configured index bundle.
func CheckRemote(ctx context.Context, remote config.Remote, indexType string) Result {
	const name = "Asset host"

	base := strings.TrimSpace(remote.BaseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	target := fetch.New(fetch.ConfigFromSettings(remote)).BundleURL(fetch.IndexBundleName(indexType))
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	if remote.UserAgent != "" {
		req.Header.Set("User-Agent", remote.UserAgent)
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusNotFound:
		return Result{Name: name, Detail: fmt.Sprintf("index bundle for %s not found", indexType)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "host unreachable (timeout)"
	}
	return err.Error()
}
