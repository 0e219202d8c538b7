package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// CleanupResult is the cleanup command's JSON payload.
type CleanupResult struct {
	ID           int64      `json:"id"`
	Completed    bool       `json:"completed"`
	EndTimestamp *time.Time `json:"end_timestamp"`
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup <id>",
		Short: "Mark an experiment completed",
		Long: `Mark an experiment completed and record its end time.

Running cleanup again on a completed experiment changes nothing.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCleanup(opts *RootOptions, idArg string, cmd *cobra.Command) error {
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	reg, err := openRegistry(cmd, opts)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	ctx := cmd.Context()
	if err := reg.Cleanup(ctx, id); err != nil {
		return WrapExitError(ExitFailure, "failed to complete experiment", err)
	}

	rec, err := reg.Lookup(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read experiment", err)
	}
	if rec == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("experiment %d not found", id))
	}

	result := CleanupResult{ID: id, Completed: rec.Completed, EndTimestamp: rec.EndTimestamp}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Experiment %d completed at %s\n", id, formatTime(rec.EndTimestamp))
		return err
	})
}
