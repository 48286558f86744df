// Package artifacts writes the plain-text outputs of a sync: the added ids,
// their catalog asset names, and the card list handed to the pipeline.
//
// Every file is byte-deterministic for the same inputs and ends with a newline
// unless empty. Files are replaced atomically.
package artifacts

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"assetsync/internal/catalog"
	"assetsync/internal/diff"
	"assetsync/internal/fileutil"
	"assetsync/internal/targets"
)

// CardListName is the file name of the target list.
const CardListName = "card.txt"

// Paths are the files written for one sync.
type Paths struct {
	NewIDs     string
	NewTargets string
	CardList   string
}

// PathsFor returns the artifact paths for indexType under dir.
func PathsFor(dir, indexType string) Paths {
	return Paths{
		NewIDs:     filepath.Join(dir, fmt.Sprintf("new_%s.txt", indexType)),
		NewTargets: filepath.Join(dir, fmt.Sprintf("new_%s_targets.txt", indexType)),
		CardList:   filepath.Join(dir, CardListName),
	}
}

// WriteDiff writes the added ids and the asset names they own.
func WriteDiff(paths Paths, result diff.Result, current *catalog.Snapshot) error {
	if err := writeLines(paths.NewIDs, result.RawIDs()); err != nil {
		return err
	}
	return writeLines(paths.NewTargets, result.TargetNames(current))
}

// WriteCardList writes list in its order.
func WriteCardList(path string, list targets.List) error {
	var buf bytes.Buffer
	if err := targets.WriteCardList(&buf, list); err != nil {
		return fmt.Errorf("render card list: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeLines(path string, lines []string) error {
	var data []byte
	if len(lines) > 0 {
		data = []byte(strings.Join(lines, "\n") + "\n")
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
