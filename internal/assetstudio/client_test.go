package assetstudio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"assetsync/internal/assetstudio"
	"assetsync/internal/config"
	"assetsync/internal/services"
)

type stubExecutor struct {
	files []string
	lines []string
	err   error
	calls int
	args  [][]string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	s.calls++
	s.args = append(s.args, append([]string(nil), args...))
	out := args[1]
	for _, rel := range s.files {
		path := filepath.Join(out, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(rel), 0o644); err != nil {
			return err
		}
	}
	for _, line := range s.lines {
		onOutput(line)
	}
	return s.err
}

func newClient(t *testing.T, exec assetstudio.Executor) *assetstudio.Client {
	t.Helper()
	client, err := assetstudio.NewFromConfig(config.Default().Extractor, assetstudio.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	return client
}

func TestArgsPassGroupingThrough(t *testing.T) {
	client := newClient(t, &stubExecutor{})
	args := client.Args("in.unity3d", "out", assetstudio.Request{
		Types:      []string{"Texture2D", "Sprite:Both"},
		Containers: "^Card_1$",
	})
	want := []string{
		"in.unity3d", "out",
		"--game", "Normal",
		"--export_type", "Convert",
		"--group_assets", "BySource",
		"--types", "Texture2D",
		"--types", "Sprite:Both",
		"--containers", "^Card_1$",
		"--silent",
	}
	if !slices.Equal(args, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", args, want)
	}
}

func TestExtractInventoriesBySourceExport(t *testing.T) {
	exec := &stubExecutor{files: []string{
		"Card_1_bust_card_20413550_1_png.unity3d_export/Texture2D/card_20413550_1.png",
		"Card_1_bust_card_20413550_1_png.unity3d_export/card_20413550_1.png",
	}}
	client := newClient(t, exec)
	out := filepath.Join(t.TempDir(), "export")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, "stale.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := client.Extract(context.Background(), "bundle.unity3d", out, assetstudio.Request{})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if result.Grouping != assetstudio.GroupingBySource {
		t.Fatalf("expected BySource grouping, got %s", result.Grouping)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected stale files cleared and 2 exports, got %v", result.Files)
	}
	png, ok := result.FindExt(".PNG")
	if !ok || !strings.HasSuffix(png, filepath.Join("Card_1_bust_card_20413550_1_png.unity3d_export", "card_20413550_1.png")) {
		t.Fatalf("expected shortest png, got %q", png)
	}
}

func TestExtractDiagnosesByTypeExport(t *testing.T) {
	client := newClient(t, &stubExecutor{files: []string{"Texture2D/a.png", "AudioClip/b.wav"}})
	result, err := client.Extract(context.Background(), "bundle.unity3d", filepath.Join(t.TempDir(), "out"), assetstudio.Request{})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if result.Grouping != assetstudio.GroupingByType {
		t.Fatalf("expected ByType grouping, got %s", result.Grouping)
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		exec   *stubExecutor
		reason string
	}{
		{"non-zero exit", &stubExecutor{err: errors.New("exit status 3"), lines: []string{"boom"}}, "exporter failed"},
		{"empty output", &stubExecutor{}, "no files exported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, tt.exec)
			_, err := client.Extract(context.Background(), "bundle.unity3d", filepath.Join(t.TempDir(), "out"), assetstudio.Request{})
			var unpackErr *assetstudio.UnpackError
			if !errors.As(err, &unpackErr) {
				t.Fatalf("expected UnpackError, got %v", err)
			}
			if unpackErr.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, unpackErr.Reason)
			}
			if !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected external tool marker")
			}
			if len(tt.exec.lines) > 0 && !slices.Equal(unpackErr.Output, tt.exec.lines) {
				t.Fatalf("expected captured output, got %v", unpackErr.Output)
			}
		})
	}
}

type blockingExecutor struct{}

func (blockingExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestExtractTimesOut(t *testing.T) {
	client, err := assetstudio.New("AssetStudioModCLI", assetstudio.Settings{}, 1, assetstudio.WithExecutor(blockingExecutor{}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	start := time.Now()
	_, err = client.Extract(context.Background(), "bundle.unity3d", filepath.Join(t.TempDir(), "out"), assetstudio.Request{})
	var unpackErr *assetstudio.UnpackError
	if !errors.As(err, &unpackErr) || !strings.Contains(unpackErr.Reason, "timed out") {
		t.Fatalf("expected timeout UnpackError, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := assetstudio.New("  ", assetstudio.Settings{}, 0); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
