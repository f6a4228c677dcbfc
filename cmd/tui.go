package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/anisync/internal/shared"
	"github.com/desertthunder/anisync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive review of a sync plan.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	engine, err := r.syncEngine(cmd)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, engine, r.syncOpts(cmd))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Review the planned AniList updates and apply the ones you keep",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "update-planning",
				Usage: "Also plan titles with no watched episodes as Planning",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI owns the terminal",
				Value: "./tmp/anisync-tui.log",
			},
		},
		Action: r.TUI,
	}
}
