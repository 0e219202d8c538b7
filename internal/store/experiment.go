package store

import "time"

// Experiment is one row of the experiments table.
//
// RunConfig and Logs hold JSON text exactly as written; the store never
// decodes them.
type Experiment struct {
	ID             int64
	Name           string
	Notes          string
	RunConfig      string
	Folder         string
	StartTimestamp time.Time
	EndTimestamp   *time.Time
	Completed      bool
	Logs           *string
	VCHash         *string
	VCMsg          *string
	SourceCode     *string
}

// NewExperiment carries the fields supplied when a row is created.
// Empty VCHash, VCMsg and SourceCode are stored as NULL.
type NewExperiment struct {
	Name           string
	Notes          string
	RunConfig      string
	StartTimestamp time.Time
	VCHash         string
	VCMsg          string
	SourceCode     string
}

// FolderFunc materializes the run folder for a freshly assigned id and
// returns its path. It runs inside the insert transaction; an error rolls
// the row back.
type FolderFunc func(id int64) (string, error)
