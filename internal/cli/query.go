package cli

import (
	"fmt"
	"io"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Find experiments by name",
		Long: `List every experiment whose name contains the given text.

Matching is case-sensitive and literal: % and _ have no special meaning.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], cmd)
		},
	}
}

func runGet(opts *RootOptions, name string, cmd *cobra.Command) error {
	reg, err := openRegistry(cmd, opts)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	recs, err := reg.Get(cmd.Context(), name)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to query experiments", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(recs, func(w io.Writer) error {
		if len(recs) == 0 {
			_, err := fmt.Fprintf(w, "No experiments matching %q.\n", name)
			return err
		}
		return writeTable(w, recs)
	})
}

// NewPeekCommand creates the peek command.
func NewPeekCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peek",
		Short: "Show the most recently started experiment",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeek(rootOpts, cmd)
		},
	}
}

func runPeek(opts *RootOptions, cmd *cobra.Command) error {
	reg, err := openRegistry(cmd, opts)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	rec, err := reg.Peek(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read latest experiment", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(rec, func(w io.Writer) error {
		if rec == nil {
			_, err := fmt.Fprintln(w, "No experiments recorded.")
			return err
		}
		return writeRecord(w, rec)
	})
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Source bool
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one experiment",
		Long: `Show one experiment by id.

With --source, print only the captured source of the function that
started it.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Source, "source", false, "print the captured source code")

	return cmd
}

func runShow(opts *ShowOptions, idArg string, cmd *cobra.Command) error {
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	reg, err := openRegistry(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	rec, err := reg.Lookup(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read experiment", err)
	}
	if rec == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("experiment %d not found", id))
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Source {
		if rec.SourceCode == nil {
			return NewExitError(ExitFailure, fmt.Sprintf("experiment %d has no captured source", id))
		}
		return formatter.Success(map[string]string{"source_code": *rec.SourceCode}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, *rec.SourceCode)
			return err
		})
	}
	return formatter.Success(rec, func(w io.Writer) error {
		return writeRecord(w, rec)
	})
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Match string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiment names",
		Long: `List the name of every experiment in creation order, one per line.

--match keeps only names matching a glob pattern (*, ?, [...], {a,b}).

Examples:
  ariadne list
  ariadne list --match 'resnet-{18,50}*'`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Match, "match", "", "glob pattern names must match")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	if opts.Match != "" && !doublestar.ValidatePattern(opts.Match) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid glob pattern: %s", opts.Match))
	}

	reg, err := openRegistry(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	names, err := reg.List(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list experiments", err)
	}
	if opts.Match != "" {
		names, err = filterNames(names, opts.Match)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to match names", err)
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(names, func(w io.Writer) error {
		for _, n := range names {
			if _, err := fmt.Fprintln(w, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// filterNames keeps the names matching pattern, in order.
func filterNames(names []string, pattern string) ([]string, error) {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		matched, err := doublestar.Match(pattern, n)
		if err != nil {
			return nil, fmt.Errorf("match pattern: %w", err)
		}
		if matched {
			kept = append(kept, n)
		}
	}
	return kept, nil
}
