package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/your-org/mpf/internal/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render() + "\n"
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

var matchColumns = []string{"ID", "Source", "Candidate", "Score", "Method", "Status", "Created"}

var matchAligns = []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft}

func buildMatchRows(matches []models.MatchFact) [][]string {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		candidate := "-"
		if m.CandidateID != nil {
			candidate = strconv.FormatInt(*m.CandidateID, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			strconv.FormatInt(m.SourceID, 10),
			candidate,
			fmt.Sprintf("%.1f", m.Score),
			string(m.Method),
			string(m.Status),
			formatWhen(m.CreatedAt),
		})
	}
	return rows
}

func buildNotificationRows(list []models.Notification) [][]string {
	rows := make([][]string, 0, len(list))
	for _, n := range list {
		read := ""
		if n.Read {
			read = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatInt(n.ID, 10),
			string(n.Level),
			n.Title,
			n.Message,
			read,
			formatWhen(n.CreatedAt),
		})
	}
	return rows
}
