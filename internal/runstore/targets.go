package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordTarget upserts the state of one target and, when it carries files,
// records them as placements of its bundle.
func (s *Store) RecordTarget(ctx context.Context, target Target) error {
	if target.UpdatedAt.IsZero() {
		target.UpdatedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin target tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `INSERT INTO targets
			(run_id, position, bundle, root, owner, category, state, failed_stage, error_kind, error_message, bytes, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, bundle) DO UPDATE SET
				state = excluded.state,
				failed_stage = excluded.failed_stage,
				error_kind = excluded.error_kind,
				error_message = excluded.error_message,
				bytes = excluded.bytes,
				updated_at = excluded.updated_at`,
			target.RunID, target.Position, target.Bundle, target.Root, target.Owner, target.Category, target.State,
			target.FailedStage, target.ErrorKind, target.ErrorMessage, target.Bytes, formatTime(target.UpdatedAt))
		if err != nil {
			return fmt.Errorf("record target %s: %w", target.Bundle, err)
		}
		for _, path := range target.Files {
			_, err = tx.ExecContext(ctx, `INSERT INTO placements (root, bundle, path, run_id, placed_at) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(root, bundle, path) DO UPDATE SET run_id = excluded.run_id, placed_at = excluded.placed_at`,
				target.Root, target.Bundle, path, target.RunID, formatTime(target.UpdatedAt))
			if err != nil {
				return fmt.Errorf("record placement %s: %w", path, err)
			}
		}
		return tx.Commit()
	})
}

// RunTargets returns the targets of a run in list order.
func (s *Store) RunTargets(ctx context.Context, runID string) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, position, bundle, root, owner, category, state, failed_stage,
		error_kind, error_message, bytes, updated_at FROM targets WHERE run_id = ? ORDER BY position, bundle`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var (
			target  Target
			updated sql.NullString
		)
		if err := rows.Scan(&target.RunID, &target.Position, &target.Bundle, &target.Root, &target.Owner, &target.Category,
			&target.State, &target.FailedStage, &target.ErrorKind, &target.ErrorMessage, &target.Bytes, &updated); err != nil {
			return nil, err
		}
		target.UpdatedAt = parseTime(updated)
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// PlacedFiles reports the files recorded for bundle under root and whether
// any run finished it there. A bundle that completed without producing new
// files still reports done. Runs against other roots are ignored.
func (s *Store) PlacedFiles(ctx context.Context, root, bundle string) ([]string, bool, error) {
	var done int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM targets WHERE root = ? AND bundle = ? AND state = 'done'", root, bundle,
	).Scan(&done); err != nil {
		return nil, false, fmt.Errorf("query bundle state: %w", err)
	}
	if done == 0 {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT path FROM placements WHERE root = ? AND bundle = ? ORDER BY path", root, bundle)
	if err != nil {
		return nil, false, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, false, err
		}
		paths = append(paths, path)
	}
	return paths, true, rows.Err()
}
