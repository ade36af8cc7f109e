package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteText renders the report for a terminal.
func (r Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "source:\t%s\n", r.Location)
	fmt.Fprintf(tw, "encoding:\t%s\n", r.Encoding)
	if r.Sampled {
		fmt.Fprintf(tw, "sampled:\tyes (counts cover the head of the file only)\n")
	}
	fmt.Fprintf(tw, "rows:\t%d\n", r.Rows)
	fmt.Fprintf(tw, "malformed:\t%d\n", r.Malformed)
	if len(r.MalformedLines) > 0 {
		lines := make([]string, len(r.MalformedLines))
		for i, l := range r.MalformedLines {
			lines[i] = fmt.Sprint(l)
		}
		fmt.Fprintf(tw, "malformed lines:\t%s\n", strings.Join(lines, ", "))
	}
	if r.Entity != "" {
		fmt.Fprintf(tw, "entity:\t%s\n", r.Entity)
		fmt.Fprintf(tw, "writes:\t%s\n", strings.Join(r.WrittenColumns, ", "))
		if len(r.MissingRequired) > 0 {
			fmt.Fprintf(tw, "MISSING REQUIRED:\t%s (every record would be skipped)\n", strings.Join(r.MissingRequired, ", "))
		}
		if len(r.Unmapped) > 0 {
			fmt.Fprintf(tw, "ignored columns:\t%s\n", strings.Join(r.Unmapped, ", "))
		}
	} else {
		fmt.Fprintf(tw, "entity:\tno match\n")
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "column\ttype\tfilled\tfill rate\tmapped")
	for _, c := range r.Columns {
		mapped := ""
		if c.Mapped {
			mapped = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f%%\t%s\n", c.Name, c.Type, c.Filled, c.FillRate*100, mapped)
	}
	return tw.Flush()
}

// WriteJSON renders the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
