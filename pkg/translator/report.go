package translator

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderSummary formats reports as a table with a totals footer.
func RenderSummary(title string, reports []UnitReport) string {
	tw := table.NewWriter()
	if title != "" {
		tw.SetTitle(title)
	}
	tw.AppendHeader(table.Row{"Unit", "Source", "Commands", "Instructions"})

	var cmds, insts int
	for _, r := range reports {
		tw.AppendRow(table.Row{r.Name, r.Path, r.Commands, r.Instructions})
		cmds += r.Commands
		insts += r.Instructions
	}
	tw.AppendFooter(table.Row{"Total", "", cmds, insts})

	return tw.Render()
}
