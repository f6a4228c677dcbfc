package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/anisync/internal/formatter"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
	"github.com/urfave/cli/v3"
)

// filterSeries keeps the series whose id or title matches query. An empty query keeps everything.
func filterSeries(library []models.LibrarySeries, query string) []models.LibrarySeries {
	if query == "" {
		return library
	}
	var out []models.LibrarySeries
	for _, s := range library {
		if s.ID == query || strings.EqualFold(s.Title, query) {
			out = append(out, s)
		}
	}
	return out
}

// MappingCreate maps library seasons to AniList entries, extending any stored mappings.
func (r *Runner) MappingCreate(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}
	if err := r.requireLibrary(); err != nil {
		return err
	}

	if err := r.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			r.logger.Warn("failed to release mapping lock", "error", err)
		}
	}()

	library, err := r.library.Snapshot(ctx, r.config.Credentials.Plex.Sections)
	if err != nil {
		return fmt.Errorf("failed to read library: %w", err)
	}

	query := cmd.String("series")
	selected := filterSeries(library, query)
	if query != "" && len(selected) == 0 {
		return fmt.Errorf("%w: no series matches %q", shared.ErrInvalidArgument, query)
	}

	r.logger.Info("creating mappings", "series", len(selected))

	var created, failed int
	for i, series := range selected {
		result, err := r.mapper.MapSeries(ctx, series)
		if err != nil {
			failed++
			r.logger.Error("failed to map series", "series", series.Title, "error", err)
			r.writePlain("✗ %s: %v\n", series.Title, err)
			if errors.Is(err, context.Canceled) {
				return err
			}
			continue
		}

		created += result.Created
		line := fmt.Sprintf("[%d/%d] %s: %d mappings (%d new)", i+1, len(selected), series.Title, len(result.Mappings), result.Created)
		if result.Reason != "" {
			line += fmt.Sprintf(", stopped: %s", result.Reason)
		}
		r.writePlain("%s\n", line)
	}

	r.writePlainln("✓ Created %d mappings across %d series", created, len(selected))
	if failed > 0 {
		r.writePlain("⚠ %d series failed\n", failed)
	}
	return nil
}

func mappingCriteria(cmd *cli.Command) map[string]any {
	criteria := map[string]any{}
	if series := cmd.String("series"); series != "" {
		criteria["series_id"] = series
	}
	if id := cmd.Int("catalog-id"); id != 0 {
		criteria["catalog_id"] = id
	}
	if cmd.IsSet("ignored") {
		criteria["ignored"] = cmd.Bool("ignored")
	}
	return criteria
}

// MappingList prints the stored mappings as a table or JSON.
func (r *Runner) MappingList(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	mappings, err := r.mappings.List(mappingCriteria(cmd))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(mappings, cmd.Bool("pretty"))
	}

	if len(mappings) == 0 {
		return r.writePlain("No mappings stored. Run 'anisync mapping create' first.\n")
	}

	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		catalogEpisodes := "?"
		if m.CatalogEpisodes != nil {
			catalogEpisodes = strconv.Itoa(*m.CatalogEpisodes)
		}
		state := "active"
		switch {
		case m.Ignored:
			state = "ignored"
		case !m.Enabled:
			state = "disabled"
		}
		rows = append(rows, []string{
			m.ID.String(),
			m.SeriesID,
			m.SeasonID,
			fmt.Sprintf("%d-%d", m.FirstEpisode()+1, m.FirstEpisode()+m.SeasonLength),
			strconv.Itoa(m.CatalogID),
			catalogEpisodes,
			state,
		})
	}

	return r.writeTable(
		[]string{"ID", "Series", "Season", "Episodes", "AniList", "Catalog Eps", "State"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

// MappingExport writes every stored mapping to a file. Series and season names are attached when the
// Plex library can be read.
func (r *Runner) MappingExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if err := r.open(cmd); err != nil {
		return err
	}

	mappings, err := r.mappings.GetAllMappings()
	if err != nil {
		return err
	}

	var library []models.LibrarySeries
	if r.library != nil {
		if library, err = r.library.Snapshot(ctx, r.config.Credentials.Plex.Sections); err != nil {
			r.logger.Warn("exporting without library names", "error", err)
		}
	}

	path, err := formatter.WriteMappingExport(formatter.NewMappingExport(mappings, library), format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("mappings exported", "path", path, "count", len(mappings))
	return r.writePlain("✓ Exported %d mappings to %s\n", len(mappings), path)
}

func mappingID(cmd *cli.Command) (int64, error) {
	id := int64(cmd.Int("id"))
	if id <= 0 {
		return 0, fmt.Errorf("%w: --id must be a positive mapping id", shared.ErrInvalidArgument)
	}
	return id, nil
}

// MappingIgnore excludes a mapping from status computation, or includes it again with --undo.
func (r *Runner) MappingIgnore(ctx context.Context, cmd *cli.Command) error {
	id, err := mappingID(cmd)
	if err != nil {
		return err
	}
	if err := r.openStore(cmd); err != nil {
		return err
	}

	ignored := !cmd.Bool("undo")
	if err := r.mappings.SetIgnored(id, ignored); err != nil {
		return err
	}

	if ignored {
		return r.writePlain("✓ Mapping %d ignored\n", id)
	}
	return r.writePlain("✓ Mapping %d no longer ignored\n", id)
}

// MappingDisable switches a mapping off, or back on with --enable.
func (r *Runner) MappingDisable(ctx context.Context, cmd *cli.Command) error {
	id, err := mappingID(cmd)
	if err != nil {
		return err
	}
	if err := r.openStore(cmd); err != nil {
		return err
	}

	enabled := cmd.Bool("enable")
	if err := r.mappings.SetEnabled(id, enabled); err != nil {
		return err
	}

	if enabled {
		return r.writePlain("✓ Mapping %d enabled\n", id)
	}
	return r.writePlain("✓ Mapping %d disabled\n", id)
}

// MappingReset deletes every mapping of a series so the next run maps it from scratch.
func (r *Runner) MappingReset(ctx context.Context, cmd *cli.Command) error {
	seriesID := cmd.String("series")
	if seriesID == "" {
		return fmt.Errorf("%w: --series is required", shared.ErrMissingArgument)
	}
	if err := r.openStore(cmd); err != nil {
		return err
	}

	n, err := r.mappings.DeleteForSeries(seriesID)
	if err != nil {
		return err
	}

	r.logger.Info("mappings reset", "series", seriesID, "deleted", n)
	return r.writePlain("✓ Deleted %d mappings for series %s\n", n, seriesID)
}

func mappingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "mapping",
		Aliases: []string{"map"},
		Usage:   "Manage season to AniList mappings",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Map library seasons to AniList entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "series",
						Usage: "Only map the series with this id or title",
					},
				},
				Action: r.MappingCreate,
			},
			{
				Name:  "list",
				Usage: "List stored mappings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "series",
						Usage: "Only list mappings of this series id",
					},
					&cli.IntFlag{
						Name:  "catalog-id",
						Usage: "Only list mappings to this AniList id",
					},
					&cli.BoolFlag{
						Name:  "ignored",
						Usage: "Filter on the ignored flag",
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
				Action: r.MappingList,
			},
			{
				Name:  "export",
				Usage: "Export mappings to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown or txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: anisync_mappings.<ext>)",
					},
				},
				Action: r.MappingExport,
			},
			{
				Name:  "ignore",
				Usage: "Exclude a mapping from status computation",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "id",
						Usage:    "Mapping id",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "undo",
						Usage: "Include the mapping again",
					},
				},
				Action: r.MappingIgnore,
			},
			{
				Name:  "disable",
				Usage: "Disable a mapping",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "id",
						Usage:    "Mapping id",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "enable",
						Usage: "Enable the mapping instead",
					},
				},
				Action: r.MappingDisable,
			},
			{
				Name:  "reset",
				Usage: "Delete the mappings of a series so it is mapped again",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "series",
						Usage:    "Series id",
						Required: true,
					},
				},
				Action: r.MappingReset,
			},
		},
	}
}
