package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the ISO-8601 form used for start_timestamp and
// end_timestamp. Fixed-width fractional seconds keep lexicographic order
// equal to chronological order, which the latest-experiment query relies on.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp column value.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// scanExperiment scans a row selected with experimentColumns.
func scanExperiment(row interface{ Scan(...any) error }) (Experiment, error) {
	var exp Experiment
	var start string
	var end, logs, vcHash, vcMsg, source sql.NullString
	var completed int64

	if err := row.Scan(
		&exp.ID, &exp.Name, &exp.Notes, &exp.RunConfig, &exp.Folder,
		&start, &end, &completed, &logs, &vcHash, &vcMsg, &source,
	); err != nil {
		return Experiment{}, err
	}

	var err error
	exp.StartTimestamp, err = ParseTime(start)
	if err != nil {
		return Experiment{}, fmt.Errorf("parse start_timestamp: %w", err)
	}
	exp.EndTimestamp, err = parseTimePtr(end)
	if err != nil {
		return Experiment{}, fmt.Errorf("parse end_timestamp: %w", err)
	}
	exp.Completed = completed != 0
	exp.Logs = stringPtr(logs)
	exp.VCHash = stringPtr(vcHash)
	exp.VCMsg = stringPtr(vcMsg)
	exp.SourceCode = stringPtr(source)

	return exp, nil
}
