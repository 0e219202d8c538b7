package provenance

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds each external VCS invocation.
const DefaultTimeout = 2 * time.Second

// Revision identifies the code state an experiment was started from.
type Revision struct {
	Hash    string
	Message string
}

// VCS reports the current revision of a working copy.
//
// Implementations are best-effort: any failure (missing binary, not a
// repository, timeout, unexpected output) is reported as ok=false, never
// as an error.
type VCS interface {
	Name() string
	Revision(ctx context.Context) (rev Revision, ok bool)
}

// CommandFunc runs an external program in dir and returns its stdout.
type CommandFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecCommand runs programs with os/exec. Stderr is discarded.
func ExecCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s: timeout", name)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

var revisionPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// tool holds what Git and Jujutsu share: where to run, how long to wait,
// and how to execute.
type tool struct {
	Dir     string
	Timeout time.Duration
	Run     CommandFunc
}

func (t tool) output(ctx context.Context, name string, args ...string) (string, bool) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := t.Run
	if run == nil {
		run = ExecCommand
	}
	out, err := run(ctx, t.Dir, name, args...)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// revision runs the hash and message commands and validates the result.
// An unrecognizable hash discards the whole result.
func (t tool) revision(ctx context.Context, name string, hashArgs, msgArgs []string) (Revision, bool) {
	hash, ok := t.output(ctx, name, hashArgs...)
	if !ok || !revisionPattern.MatchString(hash) {
		return Revision{}, false
	}
	msg, ok := t.output(ctx, name, msgArgs...)
	if !ok {
		return Revision{}, false
	}
	return Revision{Hash: hash, Message: msg}, true
}

// Git reads the checked out commit with git.
type Git tool

// NewGit returns a Git probe for the working copy at dir.
func NewGit(dir string, timeout time.Duration) *Git {
	return &Git{Dir: dir, Timeout: timeout}
}

func (g *Git) Name() string { return "git" }

// Revision returns HEAD's commit hash and full message.
func (g *Git) Revision(ctx context.Context) (Revision, bool) {
	return tool(*g).revision(ctx, "git",
		[]string{"rev-parse", "HEAD"},
		[]string{"log", "-1", "--pretty=%B"},
	)
}

// Jujutsu reads the working-copy commit with jj.
type Jujutsu tool

// NewJujutsu returns a jj probe for the working copy at dir.
func NewJujutsu(dir string, timeout time.Duration) *Jujutsu {
	return &Jujutsu{Dir: dir, Timeout: timeout}
}

func (j *Jujutsu) Name() string { return "jj" }

// Revision returns the commit id and description of @.
// --ignore-working-copy keeps the probe from snapshotting the tree.
func (j *Jujutsu) Revision(ctx context.Context) (Revision, bool) {
	base := []string{"log", "--no-graph", "--ignore-working-copy", "-r", "@", "-T"}
	return tool(*j).revision(ctx, "jj",
		append(append([]string{}, base...), "commit_id"),
		append(append([]string{}, base...), "description"),
	)
}

// Chain tries each VCS in order and returns the first success.
type Chain []VCS

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, v := range c {
		names[i] = v.Name()
	}
	return strings.Join(names, ",")
}

func (c Chain) Revision(ctx context.Context) (Revision, bool) {
	for _, v := range c {
		if rev, ok := v.Revision(ctx); ok {
			return rev, true
		}
	}
	return Revision{}, false
}

// None never reports a revision.
type None struct{}

func (None) Name() string { return "none" }

func (None) Revision(context.Context) (Revision, bool) { return Revision{}, false }

// DefaultTools is the probe order used when none is configured.
var DefaultTools = []string{"jj", "git"}

// DefaultChain probes jj, then git, in dir.
func DefaultChain(dir string, timeout time.Duration) Chain {
	return Chain{NewJujutsu(dir, timeout), NewGit(dir, timeout)}
}

// FromNames builds a Chain from tool names ("jj", "git", "none").
// An empty list yields the DefaultTools chain; "none" disables capture.
func FromNames(names []string, dir string, timeout time.Duration) (VCS, error) {
	if len(names) == 0 {
		names = DefaultTools
	}
	var chain Chain
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "jj", "jujutsu":
			chain = append(chain, NewJujutsu(dir, timeout))
		case "git":
			chain = append(chain, NewGit(dir, timeout))
		case "none":
			return None{}, nil
		default:
			return nil, fmt.Errorf("unknown vcs tool %q", name)
		}
	}
	return chain, nil
}
