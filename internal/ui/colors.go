package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/anisync/internal/models"
)

var styles = NewPalette("#3DB4F2", "#7BD555", "#E85D75", "#F79A63", "#626262")

var statusColors = map[models.WatchStatus]lipgloss.Color{
	models.Planning:  lipgloss.Color("#9FADBD"),
	models.Current:   lipgloss.Color("#3DB4F2"),
	models.Paused:    lipgloss.Color("#F79A63"),
	models.Dropped:   lipgloss.Color("#E85D75"),
	models.Completed: lipgloss.Color("#7BD555"),
}

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

var _ Painter = (*Palette)(nil)

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// Status renders a watch status in its color.
func (p *Palette) Status(s models.WatchStatus) string {
	return p.As(s.String(), statusColors[s])
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
