package registry

import (
	"context"
	"fmt"

	"github.com/roach88/ariadne/internal/store"
)

// Start records a new experiment and creates its run folder.
//
// The folder holds config.json (runConfig as JSON) and an empty figures
// directory. The revision of the working copy and the source of the
// function calling Start are captured best-effort. Returns the assigned id
// and the absolute folder path.
//
// On error nothing is left behind: the row is rolled back if the folder
// cannot be created, and the folder is removed if the row cannot be
// committed.
func (r *Registry) Start(ctx context.Context, name, notes string, runConfig Payload) (int64, string, error) {
	// Must run directly in Start: skip 1 is Start's caller.
	source := r.source.CallerSource(1)

	cfg, err := encodePayload(runConfig)
	if err != nil {
		return 0, "", fmt.Errorf("start %q: run config: %w", name, err)
	}

	exp := store.NewExperiment{
		Name:           name,
		Notes:          notes,
		RunConfig:      string(cfg),
		StartTimestamp: r.now(),
		SourceCode:     source,
	}
	if rev, ok := r.vcs.Revision(ctx); ok {
		exp.VCHash = rev.Hash
		exp.VCMsg = rev.Message
	}

	var created string
	id, folder, err := r.store.CreateExperiment(ctx, exp, func(id int64) (string, error) {
		dir, err := r.dirs.Create(name, id, cfg)
		created = dir
		return dir, err
	})
	if err != nil {
		if created != "" {
			if rmErr := r.dirs.Remove(created); rmErr != nil {
				r.logger.Warn("failed to remove run folder after aborted start",
					"folder", created, "error", rmErr)
			}
		}
		return 0, "", fmt.Errorf("start %q: %w", name, err)
	}

	r.logger.Info("experiment started",
		"id", id,
		"name", name,
		"folder", folder,
		"vc_hash", exp.VCHash,
		"source_captured", source != "",
	)
	return id, folder, nil
}

// Log replaces the metrics of experiment id with logs. Earlier payloads
// are discarded, not merged.
//
// An unknown id is not an error; nothing is written.
func (r *Registry) Log(ctx context.Context, id int64, logs Payload) error {
	b, err := encodePayload(logs)
	if err != nil {
		return fmt.Errorf("log experiment %d: %w", id, err)
	}

	ok, err := r.store.WriteLogs(ctx, id, string(b))
	if err != nil {
		return fmt.Errorf("log experiment %d: %w", id, err)
	}
	if !ok {
		r.logger.Debug("log ignored: no such experiment", "id", id)
		return nil
	}

	r.logger.Debug("experiment logged", "id", id, "keys", len(logs))
	return nil
}

// Mark is Log under another name.
func (r *Registry) Mark(ctx context.Context, id int64, logs Payload) error {
	return r.Log(ctx, id, logs)
}

// Get returns every experiment whose name contains name (case-sensitive,
// literal). No match yields an empty slice.
func (r *Registry) Get(ctx context.Context, name string) ([]Record, error) {
	exps, err := r.store.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}

	records := make([]Record, 0, len(exps))
	for _, exp := range exps {
		rec, err := toRecord(exp)
		if err != nil {
			return nil, fmt.Errorf("get %q: %w", name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Peek returns the most recently started experiment, or nil if there are
// none.
func (r *Registry) Peek(ctx context.Context) (*Record, error) {
	exp, err := r.store.ReadLatest(ctx)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}

	rec, err := toRecord(exp)
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	return &rec, nil
}

// Lookup returns experiment id, or nil if it does not exist.
func (r *Registry) Lookup(ctx context.Context, id int64) (*Record, error) {
	exp, err := r.store.ReadExperiment(ctx, id)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %d: %w", id, err)
	}

	rec, err := toRecord(exp)
	if err != nil {
		return nil, fmt.Errorf("lookup %d: %w", id, err)
	}
	return &rec, nil
}

// List returns the name of every experiment in creation order, duplicates
// included.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	names, err := r.store.ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return names, nil
}

// Cleanup marks experiment id completed and stamps its end time.
//
// Only the first call changes the row; later calls, and calls with an
// unknown id, do nothing.
func (r *Registry) Cleanup(ctx context.Context, id int64) error {
	ok, err := r.store.CompleteExperiment(ctx, id, r.now())
	if err != nil {
		return fmt.Errorf("cleanup %d: %w", id, err)
	}
	if !ok {
		r.logger.Debug("cleanup ignored: unknown or already completed", "id", id)
		return nil
	}

	r.logger.Info("experiment completed", "id", id)
	return nil
}
