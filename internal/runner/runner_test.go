package runner_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"assetsync/internal/assetstudio"
	"assetsync/internal/catalog"
	"assetsync/internal/config"
	"assetsync/internal/fetch"
	"assetsync/internal/notifications"
	"assetsync/internal/pipeline"
	"assetsync/internal/runner"
	"assetsync/internal/runstore"
	"assetsync/internal/services"
	"assetsync/internal/targets"
	"assetsync/internal/testsupport"
)

type stubFetcher struct {
	mu      sync.Mutex
	bundles []string
	index   int
}

func (f *stubFetcher) Fetch(_ context.Context, bundle, dir string) (fetch.Result, error) {
	f.mu.Lock()
	f.bundles = append(f.bundles, bundle)
	f.mu.Unlock()
	return writeBundle(dir, bundle)
}

func (f *stubFetcher) FetchIndex(_ context.Context, indexType, dir string) (fetch.Result, error) {
	f.mu.Lock()
	f.index++
	f.mu.Unlock()
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

// stubExtractor dumps indexText for the index bundle and one png per target
// bundle.
type stubExtractor struct {
	mu        sync.Mutex
	indexText string
	fail      map[string]bool
	requests  []assetstudio.Request
}

func (e *stubExtractor) Extract(_ context.Context, input, outputDir string, req assetstudio.Request) (*assetstudio.Result, error) {
	bundle := strings.TrimSuffix(filepath.Base(input), ".unity3d")
	e.mu.Lock()
	e.requests = append(e.requests, req)
	failing := e.fail[bundle]
	e.mu.Unlock()
	if failing {
		return nil, &assetstudio.UnpackError{Input: input, ExitCode: 2, Reason: "exporter failed"}
	}
	root := filepath.Join(outputDir, bundle+".unity3d_export")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	name, content := bundle+".png", "pixels:"+bundle
	if strings.HasPrefix(bundle, "_Version_a_") {
		name, content = "Card.dat", e.indexText
	}
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		return nil, err
	}
	return assetstudio.Inventory(outputDir)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type fixture struct {
	cfg       *config.Config
	fetcher   *stubFetcher
	extractor *stubExtractor
	notifier  *recordingNotifier
	runner    *runner.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(2))
	cfg.Targets.Categories = []string{"image"}
	f := &fixture{
		cfg:       cfg,
		fetcher:   &stubFetcher{},
		extractor: &stubExtractor{},
		notifier:  &recordingNotifier{},
	}
	r, err := runner.New(cfg, nil,
		runner.WithFetcher(f.fetcher),
		runner.WithExtractor(f.extractor),
		runner.WithNotifier(f.notifier),
	)
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	f.runner = r
	return f
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

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Fields(string(data))
}

func TestSyncPlacesAddedEntriesAndCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: writeSnapshot(t, "10101001", "20202002")})
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if !first.Committed || first.Status != runstore.RunCompleted {
		t.Fatalf("expected committed completed run, got status=%s committed=%v", first.Status, first.Committed)
	}
	if first.Summary.NewFiles() != 2 {
		t.Fatalf("expected 2 new files, got %d", first.Summary.NewFiles())
	}
	placed := filepath.Join(f.cfg.Paths.OutputDir, "10101001", "image", "Card_1_card_10101001_1_png.png")
	if _, err := os.Stat(placed); err != nil {
		t.Fatalf("expected placed file: %v", err)
	}
	if got := readLines(t, first.Plan.Artifacts.NewIDs); strings.Join(got, ",") != "10101001,20202002" {
		t.Fatalf("unexpected new ids artifact: %v", got)
	}
	if got := readLines(t, first.Plan.Artifacts.CardList); len(got) != 2 {
		t.Fatalf("unexpected card list: %v", got)
	}
	store := catalog.NewFileStore(f.cfg.IndexStoreDir(), f.cfg.Remote.IndexType, nil)
	if _, err := os.Stat(store.PreviousPath()); err != nil {
		t.Fatalf("expected baseline to be committed: %v", err)
	}

	second, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: writeSnapshot(t, "10101001", "20202002", "30303003")})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if got := second.Plan.Diff.RawIDs(); len(got) != 1 || got[0] != "30303003" {
		t.Fatalf("expected only the new id, got %v", got)
	}
	if second.Summary.NewFiles() != 1 {
		t.Fatalf("expected 1 new file, got %d", second.Summary.NewFiles())
	}

	runs, err := f.runner.Ledger().ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.RunID || runs[0].Done != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestSyncKeepsBaselineOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.extractor.fail = map[string]bool{"Card_1_card_20202002_1_png": true}
	snapshot := writeSnapshot(t, "10101001", "20202002")

	report, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: snapshot})
	if err != nil {
		t.Fatalf("Sync returned error for a target failure: %v", err)
	}
	if report.Committed || report.Status != runstore.RunPartial {
		t.Fatalf("expected uncommitted partial run, got status=%s committed=%v", report.Status, report.Committed)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].FailedStage != pipeline.StageUnpack {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	f.extractor.fail = nil
	retry, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: snapshot})
	if err != nil {
		t.Fatalf("retry Sync: %v", err)
	}
	if len(retry.Plan.Diff.Added) != 2 {
		t.Fatalf("expected both ids to be reported again, got %v", retry.Plan.Diff.RawIDs())
	}
	if retry.Summary.Count(pipeline.StateSkipped) != 1 || retry.Summary.NewFiles() != 1 {
		t.Fatalf("expected placed target skipped and failed one retried, got skipped=%d new=%d",
			retry.Summary.Count(pipeline.StateSkipped), retry.Summary.NewFiles())
	}
	if !retry.Committed {
		t.Fatal("expected retry to commit")
	}
}

func TestSyncCommitPartial(t *testing.T) {
	f := newFixture(t)
	f.extractor.fail = map[string]bool{"Card_1_card_20202002_1_png": true}
	report, err := f.runner.Sync(context.Background(), runner.Options{
		SnapshotPath:  writeSnapshot(t, "10101001", "20202002"),
		CommitPartial: true,
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !report.Committed {
		t.Fatal("expected partial run to commit with CommitPartial")
	}
}

func TestSyncFromRemoteIndex(t *testing.T) {
	f := newFixture(t)
	f.extractor.indexText = strings.Join([]string{
		"card_10101001_1_png,aaa",
		"card_10101001_2_png,bbb",
		"card_20202002_1_png,ccc",
		"card_123_1_png,ddd",
		"Sound_Common_bgm,eee",
	}, "\n")

	plan, err := f.runner.Plan(context.Background(), runner.Options{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if f.fetcher.index != 1 {
		t.Fatalf("expected one index fetch, got %d", f.fetcher.index)
	}
	if plan.Current.Len() != 2 || len(plan.Current.Skipped) != 1 {
		t.Fatalf("unexpected snapshot: len=%d skipped=%d", plan.Current.Len(), len(plan.Current.Skipped))
	}
	want := []string{"card_10101001_1_png", "card_10101001_2_png", "card_20202002_1_png"}
	if got := plan.Targets.Bundles(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("targets = %v, want %v", got, want)
	}
	if types := f.extractor.requests[0].Types; len(types) != 1 || types[0] != "TextAsset" {
		t.Fatalf("expected TextAsset export for the index, got %v", types)
	}
	store := catalog.NewFileStore(f.cfg.IndexStoreDir(), f.cfg.Remote.IndexType, nil)
	if _, err := os.Stat(store.PreviousPath()); !os.IsNotExist(err) {
		t.Fatalf("Plan must not promote the baseline, stat err=%v", err)
	}
	if len(f.fetcher.bundles) != 0 {
		t.Fatalf("Plan must not download targets, fetched %v", f.fetcher.bundles)
	}
}

func TestSyncAbortsOnMalformedSnapshot(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "broken.json")
	testsupport.WriteText(t, path, `[{"id": "10101001"}, {"id": "10101001"}]`)

	_, err := f.runner.Sync(context.Background(), runner.Options{SnapshotPath: path})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	runs, err := f.runner.Ledger().ListRuns(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != runstore.RunFailed || runs[0].Error == "" {
		t.Fatalf("expected failed run recorded, got %+v", runs)
	}
	if f.notifier.events[len(f.notifier.events)-1] != notifications.EventError {
		t.Fatalf("expected error notification, got %v", f.notifier.events)
	}
}

func TestSyncRefusesConcurrentRun(t *testing.T) {
	f := newFixture(t)
	lock := flock.New(f.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	_, err = f.runner.Sync(context.Background(), runner.Options{SnapshotPath: writeSnapshot(t, "10101001")})
	if !errors.Is(err, runner.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestBustPlacesPreviewIntoGallery(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	testsupport.WriteText(t, path, `[
		{"id": "10101001", "assets": {"image": ["Card_1_bust_card_10101001_1_png", "Card_1_card_10101001_1_png"]}},
		{"id": "20202002"}
	]`)

	report, err := f.runner.Bust(context.Background(), runner.Options{SnapshotPath: path})
	if err != nil {
		t.Fatalf("Bust: %v", err)
	}
	want := []string{"Card_1_bust_card_10101001_1_png", "Card_1_bust_card_20202002_1_png"}
	if got := report.Targets.Bundles(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("bust targets = %v, want %v", got, want)
	}
	if report.Summary.Count(pipeline.StateDone) != 2 {
		t.Fatalf("expected both previews placed, got %+v", report.Summary.Results)
	}
	preview := filepath.Join(f.cfg.Paths.GalleryDir, "20202002", "image", "Card_1_bust_card_20202002_1_png.png")
	if _, err := os.Stat(preview); err != nil {
		t.Fatalf("expected gallery file: %v", err)
	}
	for _, req := range f.extractor.requests {
		if !strings.HasPrefix(req.Containers, "^Card_1_bust_card_") {
			t.Fatalf("expected anchored container filter, got %q", req.Containers)
		}
	}
}

func TestBustAfterSyncStillFillsGallery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	testsupport.WriteText(t, path, `[{"id": "10101001", "assets": {"image": "Card_1_bust_card_10101001_1_png"}}]`)

	if _, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: path}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	synced := filepath.Join(f.cfg.Paths.OutputDir, "10101001", "image", "Card_1_bust_card_10101001_1_png.png")
	if _, err := os.Stat(synced); err != nil {
		t.Fatalf("expected output file: %v", err)
	}

	report, err := f.runner.Bust(ctx, runner.Options{SnapshotPath: path})
	if err != nil {
		t.Fatalf("Bust: %v", err)
	}
	if len(report.Summary.Results) != 1 {
		t.Fatalf("expected one bust target, got %d", len(report.Summary.Results))
	}
	if got := report.Summary.Results[0]; got.State != pipeline.StateDone {
		t.Fatalf("bust must not skip a bundle placed only in the output root: state=%s skip=%q", got.State, got.SkipReason)
	}
	preview := filepath.Join(f.cfg.Paths.GalleryDir, "10101001", "image", "Card_1_bust_card_10101001_1_png.png")
	if _, err := os.Stat(preview); err != nil {
		t.Fatalf("expected gallery preview after sync and bust: %v", err)
	}
}

func TestSyncTwiceOverUnchangedCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snapshot := writeSnapshot(t, "10101001", "20202002")

	first, err := f.runner.Plan(ctx, runner.Options{SnapshotPath: snapshot})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	planned := readFile(t, first.Artifacts.CardList)
	second, err := f.runner.Plan(ctx, runner.Options{SnapshotPath: snapshot})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := readFile(t, second.Artifacts.CardList); got != planned {
		t.Fatalf("card list not byte-identical across plans:\n%q\n%q", planned, got)
	}

	if _, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: snapshot}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	before := listFiles(t, f.cfg.Paths.OutputDir)
	fetched := len(f.fetcher.bundles)

	rerun, err := f.runner.Sync(ctx, runner.Options{SnapshotPath: snapshot})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !rerun.Plan.Diff.Empty() || len(rerun.Targets) != 0 {
		t.Fatalf("expected nothing new, got added=%v targets=%v", rerun.Plan.Diff.RawIDs(), rerun.Targets.Bundles())
	}
	if got := readFile(t, rerun.Plan.Artifacts.CardList); got != "" {
		t.Fatalf("expected empty card list after commit, got %q", got)
	}
	if rerun.Summary.NewFiles() != 0 || len(f.fetcher.bundles) != fetched {
		t.Fatalf("rerun placed or fetched: new=%d fetched=%v", rerun.Summary.NewFiles(), f.fetcher.bundles[fetched:])
	}
	if after := listFiles(t, f.cfg.Paths.OutputDir); strings.Join(after, ",") != strings.Join(before, ",") {
		t.Fatalf("output tree changed:\nbefore %v\nafter  %v", before, after)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

func TestBustWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Bust(context.Background(), runner.Options{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestProcessCardList(t *testing.T) {
	f := newFixture(t)
	list, rejected, err := targets.ParseCardList(strings.NewReader("# manual\nCard_1_card_10101001_1_png\nbogus\n"))
	if err != nil {
		t.Fatalf("ParseCardList: %v", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("expected one rejected line, got %v", rejected)
	}

	report, err := f.runner.Process(context.Background(), list, runner.Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Kind != "run" || report.Summary.NewFiles() != 1 {
		t.Fatalf("unexpected report: kind=%s new=%d", report.Kind, report.Summary.NewFiles())
	}
	store := catalog.NewFileStore(f.cfg.IndexStoreDir(), f.cfg.Remote.IndexType, nil)
	if _, err := os.Stat(store.CurrentPath()); !os.IsNotExist(err) {
		t.Fatalf("Process must not stage snapshots, stat err=%v", err)
	}
}

func TestNewRequiresExtractorBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Extractor.Binary = filepath.Join(t.TempDir(), "missing-exporter")
	_, err := runner.New(cfg, nil, runner.WithFetcher(&stubFetcher{}))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
