// Package config loads ariadne.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ariadne/internal/provenance"
)

// DefaultFile is the config file looked up in the working directory when
// none is given explicitly.
const DefaultFile = "ariadne.yaml"

// Environment variables that override the file.
const (
	EnvDatabase = "ARIADNE_DB"
	EnvBaseDir  = "ARIADNE_DIR"
)

// VCSConfig selects the revision probes.
type VCSConfig struct {
	Tools   []string `yaml:"tools"`
	Timeout string   `yaml:"timeout"`
}

// Config is the registry configuration.
type Config struct {
	Database string    `yaml:"database"`
	BaseDir  string    `yaml:"base_dir"`
	LogLevel string    `yaml:"log_level"`
	VCS      VCSConfig `yaml:"vcs"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(c *Config) {
	if c.Database == "" {
		c.Database = "./ariadne.db"
	}
	c.Database = expandPath(c.Database)
	if c.BaseDir == "" {
		c.BaseDir = "./experiments"
	}
	c.BaseDir = expandPath(c.BaseDir)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.VCS.Tools) == 0 {
		c.VCS.Tools = append([]string(nil), provenance.DefaultTools...)
	}
	if c.VCS.Timeout == "" {
		c.VCS.Timeout = provenance.DefaultTimeout.String()
	}
}

func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDatabase)); v != "" {
		c.Database = expandPath(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseDir)); v != "" {
		c.BaseDir = expandPath(v)
	}
}

func expandPath(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	v = os.ExpandEnv(v)

	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return v
	}

	if v == "~" {
		return home
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	return v
}

// LoadConfig reads a YAML configuration file from path and returns a
// Config with defaults and environment overrides applied.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve loads path, or DefaultFile when path is empty. A missing
// DefaultFile yields the defaults; a missing explicit path is an error.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}

	cfg, err := LoadConfig(DefaultFile)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnv(cfg)
		return cfg, nil
	}
	return cfg, err
}

// Validate checks fields that have no safe fallback.
func (c *Config) Validate() error {
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.NewVCS(""); err != nil {
		return err
	}
	return nil
}

// Timeout parses vcs.timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.VCS.Timeout)
	if err != nil {
		return 0, fmt.Errorf("vcs.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("vcs.timeout: must be positive, got %s", c.VCS.Timeout)
	}
	return d, nil
}

// Level parses log_level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewVCS builds the configured probe chain rooted at dir.
func (c *Config) NewVCS(dir string) (provenance.VCS, error) {
	timeout, err := c.Timeout()
	if err != nil {
		return nil, err
	}
	v, err := provenance.FromNames(c.VCS.Tools, dir, timeout)
	if err != nil {
		return nil, fmt.Errorf("vcs.tools: %w", err)
	}
	return v, nil
}
