package display

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/getsentry/rtprofile/internal/analyzer"
)

const indent = "  "

// FormatDuration formats nanoseconds as milliseconds with microsecond
// precision.
func FormatDuration(ns uint64) string {
	return fmt.Sprintf("%.3fms", float64(ns)/1e6)
}

// RenderTree writes one line per call, indented by depth.
func RenderTree(w io.Writer, threads []ThreadDisplayData) error {
	for i, t := range threads {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		header := fmt.Sprintf("Thread %d", t.ThreadID)
		if t.Name != "" {
			header += fmt.Sprintf(" (%s)", t.Name)
		}
		if _, err := fmt.Fprintf(w, "%s total %s\n", header, FormatDuration(t.TotalNS)); err != nil {
			return err
		}
		for _, n := range Flatten(t) {
			_, err := fmt.Fprintf(
				w,
				"%s%s %s %.1f%% (self %s)\n",
				strings.Repeat(indent, n.Depth+1),
				n.Record.Frame,
				FormatDuration(n.Record.CumulativeNS()),
				n.Percent,
				FormatDuration(n.Record.SelfNS()),
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderFunctions writes the flat view as an aligned table.
func RenderFunctions(w io.Writer, functions []analyzer.FunctionAnalysis) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLS\tSELF\tCUMULATIVE\tFUNCTION")
	for _, fa := range functions {
		fmt.Fprintf(
			tw,
			"%d\t%s\t%s\t%s\n",
			fa.Calls,
			FormatDuration(fa.SelfTimeNS),
			FormatDuration(fa.CumulativeTimeNS),
			fa.Frame,
		)
	}
	return tw.Flush()
}
