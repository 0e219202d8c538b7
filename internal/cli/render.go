package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/ariadne/internal/registry"
)

const noValue = "-"

func formatTime(t *time.Time) string {
	if t == nil {
		return noValue
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptional(s *string) string {
	if s == nil || *s == "" {
		return noValue
	}
	return *s
}

// firstLine returns the subject line of a commit message.
func firstLine(s *string) string {
	if s == nil {
		return noValue
	}
	line, _, _ := strings.Cut(*s, "\n")
	if line == "" {
		return noValue
	}
	return line
}

// formatPayload renders p as compact JSON with sorted keys.
func formatPayload(p registry.Payload) string {
	if p == nil {
		return noValue
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(p))
	}
	return string(b)
}

func status(rec registry.Record) string {
	if rec.Completed {
		return "completed"
	}
	return "running"
}

// writeRecord prints one experiment as aligned label/value lines.
func writeRecord(w io.Writer, rec *registry.Record) error {
	source := noValue
	if rec.SourceCode != nil {
		source = fmt.Sprintf("%d lines", strings.Count(*rec.SourceCode, "\n")+1)
	}

	fields := []struct{ label, value string }{
		{"ID", fmt.Sprint(rec.ID)},
		{"Name", rec.Name},
		{"Notes", formatOptional(&rec.Notes)},
		{"Folder", rec.Folder},
		{"Started", rec.StartTimestamp.UTC().Format(time.RFC3339)},
		{"Ended", formatTime(rec.EndTimestamp)},
		{"Status", status(*rec)},
		{"Revision", formatOptional(rec.VCHash)},
		{"Message", firstLine(rec.VCMsg)},
		{"Source", source},
		{"Config", formatPayload(rec.RunConfig)},
		{"Metrics", formatPayload(rec.Metrics)},
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%-10s %s\n", f.label+":", f.value); err != nil {
			return err
		}
	}
	return nil
}

// writeTable prints experiments one per row.
func writeTable(w io.Writer, recs []registry.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTARTED\tSTATUS")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			rec.ID, rec.Name, rec.StartTimestamp.UTC().Format(time.RFC3339), status(rec))
	}
	return tw.Flush()
}
