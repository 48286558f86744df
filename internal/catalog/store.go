package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"assetsync/internal/fileutil"
	"assetsync/internal/logging"
)

// Store persists the previous and current snapshots of one index type.
type Store interface {
	LoadPrevious(ctx context.Context) (*Snapshot, error)
	LoadCurrent(ctx context.Context) (*Snapshot, error)
	StageCurrent(ctx context.Context, snap *Snapshot) error
	CommitCurrent(ctx context.Context) error
}

// FileStore keeps now_<Type>.json and last_<Type>.json in one directory.
type FileStore struct {
	dir       string
	indexType string
	logger    *slog.Logger
}

// NewFileStore returns a store rooted at dir for the given index type.
func NewFileStore(dir, indexType string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileStore{dir: dir, indexType: indexType, logger: logger}
}

// CurrentPath is the staged snapshot for the run in progress.
func (s *FileStore) CurrentPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("now_%s.json", s.indexType))
}

// PreviousPath is the baseline committed by the last successful run.
func (s *FileStore) PreviousPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("last_%s.json", s.indexType))
}

// LoadPrevious returns the committed baseline. A missing file yields an empty
// snapshot so the first run treats every entry as new.
func (s *FileStore) LoadPrevious(ctx context.Context) (*Snapshot, error) {
	return s.load(ctx, s.PreviousPath())
}

// LoadCurrent returns the most recently staged snapshot, or an empty one.
func (s *FileStore) LoadCurrent(ctx context.Context) (*Snapshot, error) {
	return s.load(ctx, s.CurrentPath())
}

func (s *FileStore) load(ctx context.Context, path string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := LoadFile(path, Options{Logger: s.logger, Source: path})
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("snapshot not found; starting from empty baseline", logging.String("path", path))
		return NewSnapshot(""), nil
	}
	return snap, err
}

// StageCurrent writes snap as the current snapshot. The previous file content
// stays intact until the rename completes.
func (s *FileStore) StageCurrent(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Save(&buf, snap); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.CurrentPath(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("stage snapshot: %w", err)
	}
	s.logger.Debug("snapshot staged",
		logging.String("path", s.CurrentPath()),
		logging.Int("records", snap.Len()),
	)
	return nil
}

// CommitCurrent promotes the staged snapshot to the baseline atomically. The
// staged file is kept so later commands can read the latest catalog.
func (s *FileStore) CommitCurrent(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(s.CurrentPath())
	if err != nil {
		return fmt.Errorf("read staged snapshot: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.PreviousPath(), data, 0o644); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Info("snapshot committed", logging.String("path", s.PreviousPath()))
	return nil
}
