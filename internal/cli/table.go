package cli

import (
	"fmt"
	"io"

	"codeberg.org/mutker/benchlog/internal/storage"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func render(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
}

func renderSessions(w io.Writer, sessions []storage.Session, counts map[int64]int) {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		end := "-"
		if s.EndTime != nil {
			end = s.EndTime.Format(storage.TimeLayout)
		}
		rows = append(rows, []string{
			fmt.Sprint(s.ID),
			s.Name,
			string(s.Status),
			s.StartTime.Format(storage.TimeLayout),
			end,
			fmt.Sprintf("%ds", s.IntervalSeconds),
			fmt.Sprint(counts[s.ID]),
		})
	}
	render(w, []string{"ID", "Name", "Status", "Start", "End", "Interval", "Points"}, rows)
}

func renderRows(w io.Writer, data []storage.Row) {
	rows := make([][]string, 0, len(data))
	for _, r := range data {
		rows = append(rows, []string{
			r.Timestamp.Format(storage.TimeLayout),
			r.DeviceName,
			r.Parameter,
			storage.FormatValue(r.Value),
			r.Unit,
		})
	}
	render(w, []string{"Timestamp", "Device", "Parameter", "Value", "Unit"}, rows)
}
