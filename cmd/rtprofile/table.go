package main

import (
	"fmt"
	"path"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/getsentry/rtprofile/internal/analyzer"
	"github.com/getsentry/rtprofile/internal/display"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	hotStyle    = cellStyle.Foreground(lipgloss.Color("203"))
)

// functionsTable renders the first limit entries of the flat view. A limit
// of zero renders every entry.
func functionsTable(functions []analyzer.FunctionAnalysis, limit int) string {
	if limit > 0 && len(functions) > limit {
		functions = functions[:limit]
	}
	rows := make([][]string, 0, len(functions))
	for _, fa := range functions {
		m := fa.Metrics()
		location := path.Base(fa.Frame.File)
		if fa.Frame.Line > 0 {
			location += ":" + strconv.FormatUint(uint64(fa.Frame.Line), 10)
		}
		rows = append(rows, []string{
			fa.Frame.Function,
			location,
			strconv.FormatUint(fa.Calls, 10),
			display.FormatDuration(fa.SelfTimeNS),
			display.FormatDuration(fa.CumulativeTimeNS),
			fmt.Sprintf("%.3fms", m.P95/1e6),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row == 0 && col == 3 {
				return hotStyle
			}
			return cellStyle
		}).
		Headers("FUNCTION", "LOCATION", "CALLS", "SELF", "CUMULATIVE", "P95 SELF").
		Rows(rows...)
	return t.String()
}
