package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ariadne/internal/config"
	"github.com/roach88/ariadne/internal/provenance"
	"github.com/roach88/ariadne/internal/registry"
)

// openRegistry resolves configuration (file, then environment, then
// flags) and opens the registry. Logs go to the command's stderr.
func openRegistry(cmd *cobra.Command, opts *RootOptions) (*registry.Registry, error) {
	cfg, err := config.Resolve(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.BaseDir != "" {
		cfg.BaseDir = opts.BaseDir
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	vcs, err := cfg.NewVCS("")
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	// The CLI has no user function to capture; only library callers
	// get source provenance.
	regOpts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithVCS(vcs),
		registry.WithSourceProvider(provenance.NoSource{}),
	}
	regOpts = append(regOpts, opts.registryOptions...)

	logger.Debug("opening registry", "db", cfg.Database, "base_dir", cfg.BaseDir, "vcs", vcs.Name())
	reg, err := registry.New(cfg.Database, cfg.BaseDir, regOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	return reg, nil
}

// closeRegistry closes reg, logging rather than returning failures.
func closeRegistry(reg *registry.Registry) {
	if err := reg.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// parseID parses an experiment id argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid experiment id %q", arg))
	}
	return id, nil
}

// payloadError classifies a registry error: unencodable payloads are the
// caller's fault, anything else is an operation failure.
func payloadError(message string, err error) error {
	if errors.Is(err, registry.ErrEncode) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// parsePayloadJSON decodes a JSON object.
func parsePayloadJSON(data []byte) (registry.Payload, error) {
	var p registry.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	return p, nil
}

// loadPayloadFile reads a JSON (.json) or YAML (.yaml, .yml) object.
func loadPayloadFile(path string) (registry.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parsePayloadJSON(data)
	case ".yaml", ".yml":
		var p registry.Payload
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode YAML object: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// applySets merges key=value assignments into p. Values that parse as
// JSON keep their type; anything else is stored as a string.
func applySets(p registry.Payload, sets []string) (registry.Payload, error) {
	if len(sets) == 0 {
		return p, nil
	}
	if p == nil {
		p = registry.Payload{}
	}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		p[key] = v
	}
	return p, nil
}
