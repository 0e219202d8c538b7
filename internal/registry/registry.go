package registry

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/ariadne/internal/provenance"
	"github.com/roach88/ariadne/internal/rundir"
	"github.com/roach88/ariadne/internal/store"
)

// Registry tracks experiments in one database file and one base directory.
//
// A Registry is meant to be driven from a single goroutine. Every method
// maps to one SQLite statement or one transaction, so concurrent readers
// only ever see committed rows.
type Registry struct {
	store   *store.Store
	dirs    *rundir.Manager
	vcs     provenance.VCS
	source  provenance.SourceProvider
	now     func() time.Time
	logger  *slog.Logger
	session string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock replaces time.Now for start and end timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithVCS sets the revision probe. Defaults to jj then git in the working
// directory.
func WithVCS(v provenance.VCS) Option {
	return func(r *Registry) {
		r.vcs = v
	}
}

// WithSourceProvider sets how caller source is captured. Defaults to
// provenance.RuntimeSource.
func WithSourceProvider(p provenance.SourceProvider) Option {
	return func(r *Registry) {
		r.source = p
	}
}

// New opens (creating if needed) the database at dbPath and the base
// directory baseDir.
func New(dbPath, baseDir string, opts ...Option) (*Registry, error) {
	dirs, err := rundir.NewManager(baseDir)
	if err != nil {
		return nil, fmt.Errorf("new registry: %w", err)
	}
	if err := dirs.EnsureBase(); err != nil {
		return nil, fmt.Errorf("new registry: %w", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("new registry: %w", err)
	}

	r := &Registry{
		store:   st,
		dirs:    dirs,
		vcs:     provenance.DefaultChain("", provenance.DefaultTimeout),
		source:  provenance.RuntimeSource{},
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		session: uuid.Must(uuid.NewV7()).String(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With("session", r.session)
	r.logger.Debug("registry opened",
		"db", dbPath,
		"base_dir", dirs.BaseDir(),
		"vcs", r.vcs.Name(),
	)

	return r, nil
}

// Close releases the database handle.
func (r *Registry) Close() error {
	return r.store.Close()
}

// Session returns the UUIDv7 identifying this Registry in log output.
func (r *Registry) Session() string {
	return r.session
}

// DatabasePath returns the database file path.
func (r *Registry) DatabasePath() string {
	return r.store.Path()
}

// BaseDir returns the absolute base directory for run folders.
func (r *Registry) BaseDir() string {
	return r.dirs.BaseDir()
}
