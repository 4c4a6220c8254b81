package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/fide-ratings/internal/ingest"
	"github.com/sells-group/fide-ratings/internal/model"
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
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// formatRuns renders per-source results of a seed or upload.
func formatRuns(runs []ingest.RunResult) string {
	headers := []string{"SOURCE", "VALID", "INVALID", "LOW RATING", "NEW", "EXISTING", "PLAYERS", "RANKINGS", "SKIPPED", "ELAPSED", "RESULT"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		result := "ok"
		if r.Err != nil {
			result = "failed: " + r.Err.Error()
		}
		rows = append(rows, []string{
			r.Source.String(),
			fmt.Sprint(r.Stats.Valid),
			fmt.Sprint(r.Stats.SkippedInvalid),
			fmt.Sprint(r.Stats.SkippedLowRating),
			fmt.Sprint(r.NewPlayers),
			fmt.Sprint(r.ExistingPlayers),
			fmt.Sprint(r.Write.PlayersUpserted),
			fmt.Sprint(r.Write.RankingsInserted),
			fmt.Sprint(r.Write.RankingsSkipped),
			r.Elapsed.Round(time.Millisecond).String(),
			result,
		})
	}
	return renderTable(headers, rows, aligns)
}

// formatSyncs renders sync log entries for the status command.
func formatSyncs(entries []model.SyncEntry) string {
	headers := []string{"ID", "SOURCE", "DATA DATE", "KIND", "STATUS", "STARTED", "DURATION", "ROWS", "ERROR"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		dataDate := "-"
		if !e.DataDate.IsZero() {
			dataDate = e.DataDate.Format(ingest.DateLayout)
		}
		duration := "-"
		if e.CompletedAt != nil {
			duration = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			e.Source,
			dataDate,
			string(e.DataSource),
			string(e.Status),
			e.StartedAt.UTC().Format(time.DateTime),
			duration,
			fmt.Sprint(e.RowsSynced),
			truncate(e.Error, 60),
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
