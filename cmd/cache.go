package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// CacheClear drops every cached AniList search and entry.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	n, err := r.cache.Clear()
	if err != nil {
		return err
	}

	r.logger.Info("catalog cache cleared", "rows", n)
	return r.writePlain("✓ Removed %d cached responses\n", n)
}

// CacheStats counts the cached AniList responses.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	stats, err := r.cache.Stats()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, false)
	}

	ttl := "never expires"
	if d := r.config.Sync.CacheTTL(); d > 0 {
		ttl = d.String()
	}
	r.writePlain("Searches: %d\n", stats.Searches)
	r.writePlain("Entries:  %d\n", stats.Entries)
	return r.writePlain("TTL:      %s\n", ttl)
}

// cacheCommand manages the AniList response cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the local AniList response cache",
		Commands: []*cli.Command{
			{
				Name:   "clear",
				Usage:  "Remove every cached search and entry",
				Action: r.CacheClear,
			},
			{
				Name:  "stats",
				Usage: "Count cached searches and entries",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStats,
			},
		},
	}
}
