package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ariadne/internal/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Database   string
	BaseDir    string

	// registryOptions are appended when a command opens the registry.
	// Tests use them to pin the clock and VCS.
	registryOptions []registry.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ariadne CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ariadne",
		Short: "ariadne - lightweight experiment tracking",
		Long: `Record experiments in a local SQLite registry.

Each experiment gets a row in the database and a run folder holding its
configuration and a figures directory. Metrics are attached with log,
and cleanup marks a run completed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./ariadne.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config and $ARIADNE_DB)")
	cmd.PersistentFlags().StringVar(&opts.BaseDir, "dir", "", "base directory for run folders (overrides config and $ARIADNE_DIR)")

	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPeekCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Run executes the CLI with args and returns the process exit code.
// Failures are reported on stdout as a JSON error response in json mode,
// and on stderr otherwise.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return run(ctx, &RootOptions{}, args, stdout, stderr)
}

func run(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	// Anything cobra rejects before a command runs is a usage problem.
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitCommandError, "invalid command", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: stderr}
	if opts.Format == "json" {
		formatter.Writer = stdout
	}
	_ = formatter.Error(errorCode(exitErr.Code), exitErr.Error(), nil)
	return exitErr.Code
}

// exactArgs is cobra.ExactArgs reporting ExitCommandError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}
