package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/anisync/internal/formatter"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
	"github.com/desertthunder/anisync/internal/tasks"
	"github.com/go-co-op/gocron"
	"github.com/urfave/cli/v3"
)

// printProgress relays progress updates to the output until the returned stop func is called.
func (r *Runner) printProgress() (chan<- tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchLibrary, tasks.FetchList:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.MapSeries:
				r.writePlain("   %s\n", update.Message)
			case tasks.ApplyUpdates:
				r.writePlain("📝 %s\n", update.Message)
			default:
				r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
			}
		}
	}()

	return progressCh, func() {
		close(progressCh)
		<-done
	}
}

// SyncRun maps the library, computes every status and pushes the changes to AniList.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.syncEngine(cmd)
	if err != nil {
		return err
	}
	opts := r.syncOpts(cmd)

	progressCh, stop := r.printProgress()
	result, err := engine.Run(ctx, progressCh, opts)
	stop()

	if err != nil {
		return err
	}

	r.writeSyncSummary(result, opts.DryRun)

	if cmd.IsSet("export") {
		format, err := formatter.ParseFormat(cmd.String("export"))
		if err != nil {
			return err
		}
		path, err := formatter.WritePlanExport(formatter.NewPlanExport(result.Plan, opts.DryRun), format, cmd.String("output"))
		if err != nil {
			return err
		}
		r.writePlain("✓ Plan exported to %s\n", path)
	}
	return nil
}

func (r *Runner) writeSyncSummary(result *tasks.SyncResult, dryRun bool) {
	title := "Sync Complete!"
	if dryRun {
		title = "Sync Plan (dry run)"
	}

	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Series: %d\n", result.Run.SeriesCount)
	r.writePlain("Mapped entries: %d\n", result.Run.MappingCount)
	r.writePlain("Unchanged: %d\n", result.Run.SkippedCount)
	if dryRun {
		r.writePlain("Planned updates: %d\n", len(result.Plan))
	} else {
		r.writePlain("Updated: %d/%d\n", result.Run.UpdatedCount, len(result.Plan))
	}

	if len(result.Plan) > 0 {
		r.writePlain("\n")
		for _, u := range result.Plan {
			line := fmt.Sprintf("  • %s: %s → %s (%d)", u.Title, formatter.Previous(u), u.Status, u.Progress)
			if u.Err != nil {
				line += fmt.Sprintf(" ✗ %v", u.Err)
			}
			r.writePlain("%s\n", line)
		}
	}

	if len(result.SeriesErrors) > 0 {
		r.writePlain("\n⚠ %d series could not be mapped:\n", len(result.SeriesErrors))
		for _, e := range result.SeriesErrors {
			r.writePlain("  • %s\n", e.Error())
		}
	}
}

// syncOnce runs one scheduled sync. A sync already running elsewhere is skipped.
func (r *Runner) syncOnce(ctx context.Context, engine *tasks.SyncEngine, opts tasks.SyncOpts) {
	r.logger.Info("scheduled sync starting")

	result, err := engine.Run(ctx, nil, opts)
	switch {
	case errors.Is(err, shared.ErrSyncInProgress):
		r.logger.Warn("skipping scheduled sync", "reason", err)
	case err != nil:
		r.logger.Error("scheduled sync failed", "error", err)
	default:
		r.logger.Info("scheduled sync finished",
			"run", result.Run.ID,
			"updated", result.Run.UpdatedCount,
			"planned", len(result.Plan),
			"failed", result.Run.FailedCount,
			"duration", result.Run.Duration())
	}
}

// SyncDaemon syncs every interval_minutes until the context is cancelled.
func (r *Runner) SyncDaemon(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.syncEngine(cmd)
	if err != nil {
		return err
	}
	opts := r.syncOpts(cmd)

	interval := r.config.Sync.IntervalMinutes
	if cmd.IsSet("interval") {
		interval = cmd.Int("interval")
	}
	if interval <= 0 {
		return fmt.Errorf("%w: sync.interval_minutes must be positive", shared.ErrInvalidConfig)
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if _, err := s.Every(interval).Minutes().Do(func() { r.syncOnce(ctx, engine, opts) }); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}

	r.logger.Info("sync daemon started", "interval_minutes", interval, "dry_run", opts.DryRun)
	s.StartAsync()

	<-ctx.Done()
	r.logger.Info("sync daemon stopping")
	s.Stop()
	return nil
}

// SyncHistory lists the most recent sync runs.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	runs, err := r.runs.List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, cmd.Bool("pretty"))
	}
	if len(runs) == 0 {
		return r.writePlain("No sync runs recorded.\n")
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.Itoa(run.Sequence),
			run.StartedAt.Local().Format(time.DateTime),
			runDuration(run),
			strconv.FormatBool(run.DryRun),
			strconv.Itoa(run.SeriesCount),
			strconv.Itoa(run.UpdatedCount),
			strconv.Itoa(run.SkippedCount),
			strconv.Itoa(run.FailedCount),
			run.Error,
		})
	}

	return r.writeTable(
		[]string{"#", "Started", "Duration", "Dry Run", "Series", "Updated", "Unchanged", "Failed", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func runDuration(run models.SyncRun) string {
	if run.FinishedAt == nil {
		return "running"
	}
	return run.Duration().Round(time.Second).String()
}

func syncCommand(r *Runner) *cli.Command {
	planFlags := func(extra ...cli.Flag) []cli.Flag {
		return append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Compute the plan without writing to AniList",
			},
			&cli.BoolFlag{
				Name:  "update-planning",
				Usage: "Also push titles with no watched episodes as Planning",
			},
		}, extra...)
	}

	return &cli.Command{
		Name:  "sync",
		Usage: "Push Plex watch status to AniList",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a single sync",
				Flags: planFlags(
					&cli.StringFlag{
						Name:  "export",
						Usage: "Write the plan to a file in this format: json, csv, markdown or txt",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Export file path (default: anisync_plan.<ext>)",
					},
				),
				Action: r.SyncRun,
			},
			{
				Name:  "daemon",
				Usage: "Sync on a schedule until interrupted",
				Flags: planFlags(
					&cli.IntFlag{
						Name:  "interval",
						Usage: "Minutes between syncs (default: sync.interval_minutes)",
					},
				),
				Action: r.SyncDaemon,
			},
			{
				Name:  "history",
				Usage: "Show recent sync runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
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
				Action: r.SyncHistory,
			},
		},
	}
}
