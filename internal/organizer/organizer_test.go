package organizer_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
	"assetsync/internal/organizer"
	"assetsync/internal/services"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestPlaceIsIdempotent(t *testing.T) {
	root := t.TempDir()
	src := writeSource(t, t.TempDir(), "card.png", "pixels")
	org := organizer.New(root, nil)
	id := entityid.MustParse("20413550")

	first, err := org.Place(src, id, catalog.CategoryImage)
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	want := filepath.Join(root, "20413550", "image", "card.png")
	if first.Path != want || first.Existing {
		t.Fatalf("unexpected first placement: %+v", first)
	}

	second, err := org.Place(src, id, catalog.CategoryImage)
	if err != nil {
		t.Fatalf("second Place returned error: %v", err)
	}
	if !second.Existing || second.Path != want {
		t.Fatalf("expected no-op placement, got %+v", second)
	}
	entries, err := os.ReadDir(filepath.Dir(want))
	if err != nil {
		t.Fatalf("read dest dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, found %d", len(entries))
	}
}

func TestPlaceReportsConflict(t *testing.T) {
	root := t.TempDir()
	id := entityid.MustParse("20413550")
	org := organizer.New(root, nil)
	if _, err := org.Place(writeSource(t, t.TempDir(), "voice.wav", "one"), id, catalog.CategoryAudio); err != nil {
		t.Fatalf("Place returned error: %v", err)
	}

	_, err := org.Place(writeSource(t, t.TempDir(), "voice.wav", "two"), id, catalog.CategoryAudio)
	var conflict *organizer.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker")
	}
	data, _ := os.ReadFile(conflict.Destination)
	if string(data) != "one" {
		t.Fatalf("existing file was modified: %q", data)
	}
}

func TestPlaceConcurrentSameDestination(t *testing.T) {
	root := t.TempDir()
	org := organizer.New(root, nil)
	id := entityid.MustParse("20413550")
	src := writeSource(t, t.TempDir(), "model.prefab", "mesh")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := org.Place(src, id, catalog.CategoryModel); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Place returned error: %v", err)
	}
	entries, _ := os.ReadDir(org.Dir(id, catalog.CategoryModel))
	if len(entries) != 1 {
		t.Fatalf("expected one file and no temp leftovers, found %d", len(entries))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path   string
		bundle string
		want   catalog.Category
	}{
		{"x/card_20413550_1.PNG", "Sound_Voice_Player_20413550_00_wav", catalog.CategoryImage},
		{"x/voice.wav", "Card_1", catalog.CategoryAudio},
		{"x/ply.prefab", "Card_1", catalog.CategoryModel},
		{"export/Texture2D/blob", "Misc", catalog.CategoryImage},
		{"export/AudioClip/blob", "Misc", catalog.CategoryAudio},
		{"export/Mesh/blob", "Misc", catalog.CategoryModel},
		{"export/blob.bytes", "Card_1_bust_card_20413550_1_png", catalog.CategoryImage},
		{"export/blob.bytes", "Sound_Voice_Player_20413550_00_wav", catalog.CategoryAudio},
		{"export/blob.bytes", "Character_Prefabs_Player_ply_20413550_prefab", catalog.CategoryModel},
		{"export/blob.bytes", "Misc_20413550", catalog.CategoryUnclassified},
	}
	for _, tt := range tests {
		if got := organizer.Classify(tt.path, tt.bundle); got != tt.want {
			t.Fatalf("Classify(%q, %q) = %s, want %s", tt.path, tt.bundle, got, tt.want)
		}
	}
}
