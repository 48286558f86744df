package assetstudio

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Grouping is the layout the exporter produced.
type Grouping string

const (
	GroupingBySource Grouping = "BySource"
	GroupingByType   Grouping = "ByType"
	GroupingUnknown  Grouping = "Unknown"
)

const sourceExportSuffix = ".unity3d_export"

// typeDirectories are the top-level folders a ByType export creates.
var typeDirectories = []string{
	"Texture2D", "Sprite", "AudioClip", "Mesh", "Material",
	"Shader", "MonoBehaviour", "TextAsset", "Animator", "AnimationClip",
}

// Result lists the files an export produced.
type Result struct {
	OutputDir string
	// Files are absolute paths, sorted.
	Files    []string
	Grouping Grouping
}

// Inventory collects the regular files under dir and diagnoses the grouping.
func Inventory(dir string) (*Result, error) {
	result := &Result{OutputDir: dir, Grouping: DiagnoseGrouping(dir)}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			result.Files = append(result.Files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(result.Files)
	return result, nil
}

// DiagnoseGrouping inspects the top level of an export directory. A
// "*.unity3d_export" folder means BySource; type-named folders without one
// mean ByType.
func DiagnoseGrouping(dir string) Grouping {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return GroupingUnknown
	}
	byType := false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), sourceExportSuffix) {
			return GroupingBySource
		}
		if slices.Contains(typeDirectories, entry.Name()) {
			byType = true
		}
	}
	if byType {
		return GroupingByType
	}
	return GroupingUnknown
}

// Find returns the shortest file path accepted by match; ties resolve
// lexicographically.
func (r *Result) Find(match func(path string) bool) (string, bool) {
	best := ""
	for _, path := range r.Files {
		if !match(path) {
			continue
		}
		if best == "" || len(path) < len(best) || (len(path) == len(best) && path < best) {
			best = path
		}
	}
	return best, best != ""
}

// FindNamed returns the shortest file whose base name equals name, ignoring case.
func (r *Result) FindNamed(name string) (string, bool) {
	return r.Find(func(path string) bool {
		return strings.EqualFold(filepath.Base(path), name)
	})
}

// FindExt returns the shortest file with the given extension, ignoring case.
func (r *Result) FindExt(ext string) (string, bool) {
	return r.Find(func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ext)
	})
}
