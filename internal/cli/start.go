package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ariadne/internal/registry"
)

// StartOptions holds flags for the start command.
type StartOptions struct {
	*RootOptions
	Notes  string
	Params string
	Sets   []string
}

// StartResult is the start command's JSON payload.
type StartResult struct {
	ID     int64  `json:"id"`
	Folder string `json:"folder"`
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Record a new experiment",
		Long: `Record a new experiment and create its run folder.

The run configuration is read from --params (JSON or YAML) and amended
with --set key=value pairs. Values given to --set are parsed as JSON
when possible, so --set epochs=10 stores a number.

Examples:
  ariadne start baseline --notes "first try" --set lr=0.01
  ariadne start sweep --params params.yaml --set seed=3`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-text notes")
	cmd.Flags().StringVar(&opts.Params, "params", "", "run configuration file (.json, .yaml, .yml)")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "run configuration entry key=value (repeatable)")

	return cmd
}

func runStart(opts *StartOptions, name string, cmd *cobra.Command) error {
	params, err := loadParams(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid run configuration", err)
	}

	reg, err := openRegistry(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	id, folder, err := reg.Start(cmd.Context(), name, opts.Notes, params)
	if err != nil {
		return payloadError("failed to start experiment", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(StartResult{ID: id, Folder: folder}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Started experiment %d: %s\n", id, folder)
		return err
	})
}

func loadParams(opts *StartOptions) (registry.Payload, error) {
	var params registry.Payload
	if opts.Params != "" {
		p, err := loadPayloadFile(opts.Params)
		if err != nil {
			return nil, err
		}
		params = p
	}
	return applySets(params, opts.Sets)
}
