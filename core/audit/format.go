package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type OutputFormat int

const (
	OutputFormatTable OutputFormat = iota
	OutputFormatJSON
	OutputFormatCSV
)

func ParseOutputFormat(s string) OutputFormat {
	switch strings.ToLower(s) {
	case "json":
		return OutputFormatJSON
	case "csv":
		return OutputFormatCSV
	default:
		return OutputFormatTable
	}
}

func FormatRecords(records []Record, format OutputFormat, w io.Writer) error {
	switch format {
	case OutputFormatJSON:
		return formatJSON(records, w)
	case OutputFormatCSV:
		return formatCSV(records, w)
	default:
		return formatTable(records, w)
	}
}

func FormatRuns(runs []RunSummary, format OutputFormat, w io.Writer) error {
	if format == OutputFormatJSON {
		return formatJSON(runs, w)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	row := "%-36s  %-16s  %6s  %-19s  %-19s\n"
	fmt.Fprintf(w, row, "RUN", "NETWORK", "EVENTS", "FIRST", "LAST")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, r := range runs {
		fmt.Fprintf(w, row, r.RunID, truncateString(r.Network, 16), strconv.Itoa(r.Events),
			r.First.Format(time.DateTime), r.Last.Format(time.DateTime))
	}
	return nil
}

func formatJSON(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCSV(records []Record, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"id", "run_id", "network", "kind", "variant_id", "source_id", "entity_id", "entity_kind", "attribute", "old_value", "new_value", "at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.RunID,
			r.Network,
			r.Kind,
			r.VariantID,
			r.SourceID,
			r.EntityID,
			r.EntityKind,
			r.Attribute,
			r.OldValue,
			r.NewValue,
			r.At.Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatTable(records []Record, w io.Writer) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	row := "%6s  %-19s  %-15s  %-12s  %-20s  %s\n"
	fmt.Fprintf(w, row, "ID", "AT", "KIND", "VARIANT", "TARGET", "CHANGE")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, r := range records {
		fmt.Fprintf(w, row, strconv.FormatInt(r.ID, 10), r.At.Format(time.DateTime), r.Kind,
			truncateString(r.VariantID, 12), truncateString(target(r), 20), describe(r))
	}
	return nil
}

func target(r Record) string {
	switch {
	case r.Attribute != "":
		return r.EntityID + "." + r.Attribute
	case r.EntityID != "":
		return r.EntityKind + " " + r.EntityID
	default:
		return r.SourceID
	}
}

func describe(r Record) string {
	switch r.Kind {
	case EventUpdate:
		return r.OldValue + " -> " + r.NewValue
	case EventVariantCreated:
		return "cloned from " + r.SourceID
	default:
		return ""
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
