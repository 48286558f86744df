package organizer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
	"assetsync/internal/fileutil"
	"assetsync/internal/logging"
	"assetsync/internal/services"
)

// ConflictError reports a destination already occupied by different content.
type ConflictError struct {
	Source      string
	Destination string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("destination %s already holds different content than %s", e.Destination, e.Source)
}

func (e *ConflictError) Is(target error) bool {
	return target == services.ErrValidation
}

// Placement is the outcome of one Place call.
type Placement struct {
	Path string
	// Existing is true when identical content was already in place.
	Existing bool
}

// Organizer owns one output root.
type Organizer struct {
	root   string
	locks  *keyedMutex
	logger *slog.Logger
}

// New returns an organizer rooted at root.
func New(root string, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Organizer{root: root, locks: newKeyedMutex(), logger: logger}
}

// Root returns the output root.
func (o *Organizer) Root() string { return o.root }

// Dir is the destination directory for an id and category.
func (o *Organizer) Dir(owner entityid.ID, category catalog.Category) string {
	return filepath.Join(o.root, owner.String(), string(category))
}

// Place copies src to <root>/<owner>/<category>/<base(src)>.
func (o *Organizer) Place(src string, owner entityid.ID, category catalog.Category) (Placement, error) {
	dir := o.Dir(owner, category)
	dest := filepath.Join(dir, filepath.Base(src))

	unlock := o.locks.lock(dir)
	defer unlock()

	info, err := os.Stat(dest)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return Placement{}, &ConflictError{Source: src, Destination: dest}
		}
		same, err := fileutil.SameContent(src, dest)
		if err != nil {
			return Placement{}, fmt.Errorf("compare %s: %w", dest, err)
		}
		if !same {
			return Placement{}, &ConflictError{Source: src, Destination: dest}
		}
		return Placement{Path: dest, Existing: true}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return Placement{}, fmt.Errorf("stat %s: %w", dest, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Placement{}, fmt.Errorf("create %s: %w", dir, err)
	}
	if err := fileutil.CopyFileAtomic(src, dest, 0o644); err != nil {
		return Placement{}, fmt.Errorf("copy %s: %w", src, err)
	}
	o.logger.Debug("file placed",
		logging.String("path", dest),
		logging.String(logging.FieldEntityID, owner.String()),
		logging.String("category", string(category)),
	)
	return Placement{Path: dest}, nil
}

// keyedMutex serialises work per key and frees idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
