package store

import (
	"context"
	"fmt"
	"time"
)

// CreateExperiment inserts a new experiment row and materializes its run
// folder in a single transaction.
//
// The row is inserted first so SQLite assigns the id, then folder is called
// with that id and its returned path is recorded on the row. If folder
// fails the transaction is rolled back and no row is visible. completed
// starts at 0 and end_timestamp and logs start NULL.
func (s *Store) CreateExperiment(ctx context.Context, exp NewExperiment, folder FolderFunc) (id int64, path string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("create experiment: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO experiments
		(name, notes, run_config, folder, start_timestamp, completed, vc_hash, vc_msg, source_code)
		VALUES (?, ?, ?, '', ?, 0, ?, ?, ?)
	`,
		exp.Name,
		exp.Notes,
		exp.RunConfig,
		formatTime(exp.StartTimestamp),
		nullString(exp.VCHash),
		nullString(exp.VCMsg),
		nullString(exp.SourceCode),
	)
	if err != nil {
		return 0, "", fmt.Errorf("create experiment: insert: %w", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, "", fmt.Errorf("create experiment: last insert id: %w", err)
	}

	path, err = folder(id)
	if err != nil {
		return 0, "", fmt.Errorf("create experiment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE experiments SET folder = ? WHERE id = ?`, path, id); err != nil {
		return 0, "", fmt.Errorf("create experiment: set folder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("create experiment: commit: %w", err)
	}

	return id, path, nil
}

// WriteLogs replaces the logs column of an experiment with the given JSON
// text. Previous contents are discarded, never merged.
//
// Returns false without error when no row has the id.
func (s *Store) WriteLogs(ctx context.Context, id int64, logs string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE experiments SET logs = ? WHERE id = ?`, logs, id)
	if err != nil {
		return false, fmt.Errorf("write logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write logs: rows affected: %w", err)
	}
	return n > 0, nil
}

// CompleteExperiment marks an experiment completed with end_timestamp at.
//
// The update only matches rows with completed = 0, so a completed row keeps
// its original end_timestamp. Returns true only when a row changed.
func (s *Store) CompleteExperiment(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE experiments
		SET completed = 1, end_timestamp = ?
		WHERE id = ? AND completed = 0
	`, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("complete experiment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete experiment: rows affected: %w", err)
	}
	return n > 0, nil
}
