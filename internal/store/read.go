package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const experimentColumns = `id, name, notes, run_config, folder, start_timestamp,
	end_timestamp, completed, logs, vc_hash, vc_msg, source_code`

// ReadExperiment retrieves a single experiment by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadExperiment(ctx context.Context, id int64) (Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+experimentColumns+" FROM experiments WHERE id = ?", id)
	return scanExperiment(row)
}

// FindByName returns every experiment whose name contains fragment.
// Matching is a case-sensitive literal substring test; % and _ in fragment
// carry no wildcard meaning. Results are ordered by id.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) FindByName(ctx context.Context, fragment string) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+experimentColumns+" FROM experiments WHERE instr(name, ?) > 0 ORDER BY id ASC",
		fragment)
	if err != nil {
		return nil, fmt.Errorf("query experiments by name: %w", err)
	}
	defer rows.Close()

	experiments := []Experiment{}
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiments: %w", err)
	}

	return experiments, nil
}

// ReadLatest returns the most recently started experiment, ties on
// start_timestamp broken by the higher id.
// Returns sql.ErrNoRows if the table is empty.
func (s *Store) ReadLatest(ctx context.Context) (Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+experimentColumns+" FROM experiments ORDER BY start_timestamp DESC, id DESC LIMIT 1")
	return scanExperiment(row)
}

// ListNames returns the name of every experiment in id order, duplicates
// included.
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM experiments ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query experiment names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan experiment name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiment names: %w", err)
	}

	return names, nil
}

// CountExperiments returns the number of rows in the experiments table.
func (s *Store) CountExperiments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count experiments: %w", err)
	}
	return n, nil
}

// IsNotFound reports whether err means a lookup matched no row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
