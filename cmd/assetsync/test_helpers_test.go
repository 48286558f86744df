package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"assetsync/internal/assetstudio"
	"assetsync/internal/config"
	"assetsync/internal/fetch"
	"assetsync/internal/runner"
	"assetsync/internal/testsupport"
)

type stubFetcher struct {
	mu      sync.Mutex
	bundles []string
}

func (f *stubFetcher) Fetch(_ context.Context, bundle, dir string) (fetch.Result, error) {
	f.mu.Lock()
	f.bundles = append(f.bundles, bundle)
	f.mu.Unlock()
	return writeBundle(dir, bundle)
}

func (f *stubFetcher) FetchIndex(_ context.Context, indexType, dir string) (fetch.Result, error) {
	return writeBundle(dir, fetch.IndexBundleName(indexType))
}

func writeBundle(dir, bundle string) (fetch.Result, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fetch.Result{}, err
	}
	path := fetch.BundlePath(dir, bundle)
	payload := testsupport.BundlePayload(bundle)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Bundle: bundle, Path: path, Bytes: int64(len(payload)), Attempts: 1}, nil
}

type stubExtractor struct {
	fail map[string]bool
}

func (e *stubExtractor) Extract(_ context.Context, input, outputDir string, _ assetstudio.Request) (*assetstudio.Result, error) {
	bundle := strings.TrimSuffix(filepath.Base(input), ".unity3d")
	if e.fail[bundle] {
		return nil, &assetstudio.UnpackError{Input: input, ExitCode: 2, Reason: "exporter failed"}
	}
	root := filepath.Join(outputDir, bundle+".unity3d_export")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, bundle+".png"), []byte("pixels:"+bundle), 0o644); err != nil {
		return nil, err
	}
	return assetstudio.Inventory(outputDir)
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	fetcher    *stubFetcher
	extractor  *stubExtractor
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Targets.Categories = []string{"image"}
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "assetsync", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		fetcher:    &stubFetcher{},
		extractor:  &stubExtractor{},
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath,
		runner.WithFetcher(e.fetcher),
		runner.WithExtractor(e.extractor),
	)
}

func runCLI(t *testing.T, args []string, configPath string, opts ...runner.Option) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	testsupport.WriteText(t, path, string(data))
}

func writeSnapshot(t *testing.T, ids ...string) string {
	t.Helper()
	var records []string
	for _, id := range ids {
		records = append(records, fmt.Sprintf(`{"id": %q, "assets": {"image": "Card_1_card_%s_1_png"}}`, id, id))
	}
	path := filepath.Join(t.TempDir(), "snapshot.json")
	testsupport.WriteText(t, path, "["+strings.Join(records, ",")+"]")
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
