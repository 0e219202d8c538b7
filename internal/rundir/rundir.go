// Package rundir manages per-experiment working directories.
//
// Directory layout:
//
//	<base>/<slug>_<id>/config.json
//	<base>/<slug>_<id>/figures/
//
// slug is derived from the experiment name; the id suffix keeps runs with
// identical names apart.
package rundir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// ConfigFile is the run configuration snapshot written into each folder.
	ConfigFile = "config.json"
	// FiguresDir is the empty artifact directory created in each folder.
	FiguresDir = "figures"

	fallbackSlug = "experiment"
)

// Manager creates and locates run folders under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a manager rooted at baseDir. Relative paths are
// resolved against the working directory so recorded folders are absolute.
func NewManager(baseDir string) (*Manager, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is empty")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &Manager{baseDir: abs}, nil
}

// BaseDir returns the absolute base directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// EnsureBase creates the base directory if it does not exist.
func (m *Manager) EnsureBase() error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create base directory: %w", err)
	}
	return nil
}

// FolderName returns the folder name for an experiment.
func FolderName(name string, id int64) string {
	return Slug(name) + "_" + strconv.FormatInt(id, 10)
}

// Path returns the absolute folder path for an experiment.
func (m *Manager) Path(name string, id int64) string {
	return filepath.Join(m.baseDir, FolderName(name, id))
}

// Create materializes the folder for an experiment: the folder itself, its
// figures subdirectory and config.json holding runConfig.
//
// runConfig must already be JSON; it is re-indented before writing.
// Existing directories are reused. A non-directory in the way is an error.
func (m *Manager) Create(name string, id int64, runConfig []byte) (string, error) {
	dir := m.Path(name, id)

	if err := os.MkdirAll(filepath.Join(dir, FiguresDir), 0o755); err != nil {
		return "", fmt.Errorf("create run folder: %w", err)
	}

	if err := writeConfig(dir, runConfig); err != nil {
		return "", err
	}

	return dir, nil
}

// Remove deletes a run folder. Missing folders are not an error.
func (m *Manager) Remove(dir string) error {
	if !strings.HasPrefix(dir, m.baseDir+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to remove %q outside %q", dir, m.baseDir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove run folder: %w", err)
	}
	return nil
}

// ReadConfig loads config.json from a run folder.
func ReadConfig(dir string) (map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// writeConfig writes config.json through a temp file and rename so readers
// never observe a partial file.
func writeConfig(dir string, runConfig []byte) error {
	var raw json.RawMessage = runConfig
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("format %s: %w", ConfigFile, err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, ConfigFile+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("rename config file: %w", err)
	}
	return nil
}

// Slug reduces an experiment name to a filesystem-safe segment.
// Accented letters are folded to their base letter; anything outside
// [A-Za-z0-9-_.] becomes an underscore.
func Slug(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, ch := range folded {
		isLower := ch >= 'a' && ch <= 'z'
		isUpper := ch >= 'A' && ch <= 'Z'
		isDigit := ch >= '0' && ch <= '9'
		if isLower || isUpper || isDigit || ch == '-' || ch == '_' || ch == '.' {
			b.WriteRune(ch)
			continue
		}
		b.WriteByte('_')
	}
	result := strings.Trim(b.String(), "._")
	if result == "" {
		return fallbackSlug
	}
	return result
}
