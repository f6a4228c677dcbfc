package main

import (
	"context"
	"strconv"

	"github.com/desertthunder/anisync/internal/formatter"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/tasks"
	"github.com/urfave/cli/v3"
)

type statusRow struct {
	CatalogID int    `json:"catalog_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Total     *int   `json:"total,omitempty"`
	Episodes  int    `json:"episodes"`
	Previous  string `json:"previous,omitempty"`
	Pending   bool   `json:"pending"`
}

func statusRows(result *tasks.SyncResult) []statusRow {
	planned := make(map[int]models.PlannedUpdate, len(result.Plan))
	for _, u := range result.Plan {
		planned[u.CatalogID] = u
	}

	rows := make([]statusRow, 0, len(result.Resolutions))
	for _, res := range result.Resolutions {
		row := statusRow{
			CatalogID: res.CatalogID,
			Title:     res.Title,
			Status:    res.Status.String(),
			Progress:  res.Progress,
			Total:     res.Total,
			Episodes:  res.Episodes,
		}
		if u, ok := planned[res.CatalogID]; ok {
			row.Pending = true
			row.Previous = formatter.Previous(u)
		}
		rows = append(rows, row)
	}
	return rows
}

// Status computes the status of every mapped AniList entry without writing anything.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.syncEngine(cmd)
	if err != nil {
		return err
	}
	opts := r.syncOpts(cmd)
	opts.DryRun = true

	result, err := engine.Plan(ctx, nil, opts)
	if err != nil {
		return err
	}

	rows := statusRows(result)
	if cmd.Bool("json") {
		return r.writeJSON(rows, cmd.Bool("pretty"))
	}

	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		total := "?"
		if row.Total != nil {
			total = strconv.Itoa(*row.Total)
		}
		change := ""
		if row.Pending {
			change = row.Previous + " → " + row.Status
		}
		table = append(table, []string{
			strconv.Itoa(row.CatalogID),
			row.Title,
			row.Status,
			strconv.Itoa(row.Progress) + "/" + total,
			strconv.Itoa(row.Episodes),
			change,
		})
	}

	if err := r.writeTable(
		[]string{"AniList", "Title", "Status", "Progress", "Episodes", "Pending Change"},
		table,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	); err != nil {
		return err
	}

	return r.writePlain("%d entries, %d pending updates\n", len(rows), len(result.Plan))
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the watch status computed for every mapped AniList entry",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "update-planning",
				Usage: "Count titles with no watched episodes as pending Planning updates",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Action: r.Status,
	}
}
