package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ariadne/internal/registry"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Data string
	File string
}

// NewLogCommand creates the log command, also reachable as mark.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "log <id>",
		Aliases: []string{"mark"},
		Short:   "Replace an experiment's metrics",
		Long: `Replace the metrics recorded for an experiment.

Each call overwrites the previous metrics; nothing is merged.

Examples:
  ariadne log 3 --data '{"epoch": 10, "loss": 0.12}'
  ariadne mark 3 --file metrics.yaml`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "metrics as a JSON object")
	cmd.Flags().StringVar(&opts.File, "file", "", "metrics file (.json, .yaml, .yml)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	cmd.MarkFlagsOneRequired("data", "file")

	return cmd
}

func runLog(opts *LogOptions, idArg string, cmd *cobra.Command) error {
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	var metrics registry.Payload
	if opts.File != "" {
		metrics, err = loadPayloadFile(opts.File)
	} else {
		metrics, err = parsePayloadJSON([]byte(opts.Data))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid metrics", err)
	}

	reg, err := openRegistry(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	ctx := cmd.Context()
	rec, err := reg.Lookup(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read experiment", err)
	}
	if rec == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("experiment %d not found", id))
	}

	if err := reg.Log(ctx, id, metrics); err != nil {
		return payloadError("failed to log metrics", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(map[string]int64{"id": id}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Logged %d metric(s) to experiment %d\n", len(metrics), id)
		return err
	})
}
