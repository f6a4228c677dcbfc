package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/anisync/internal/formatter"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/tasks"
)

// Syncer computes and applies sync plans. [tasks.SyncEngine] implements it.
type Syncer interface {
	Plan(ctx context.Context, progress chan<- tasks.ProgressUpdate, opts tasks.SyncOpts) (*tasks.SyncResult, error)
	Apply(ctx context.Context, progress chan<- tasks.ProgressUpdate, updates []models.PlannedUpdate) ([]models.PlannedUpdate, error)
}

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlanView ViewState = iota
	ReviewView
	ConfirmView
	ApplyView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	syncer       Syncer
	opts         tasks.SyncOpts
	width        int
	height       int
	updateList   list.Model
	listReady    bool
	result       *tasks.SyncResult
	applied      []models.PlannedUpdate
	progressChan chan tasks.ProgressUpdate
	done         chan Msg
	progress     tasks.ProgressUpdate
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model that plans with opts.
func NewModel(ctx context.Context, syncer Syncer, opts tasks.SyncOpts) *Model {
	return &Model{
		ctx:    ctx,
		view:   PlanView,
		syncer: syncer,
		opts:   opts,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init starts computing the plan.
func (m *Model) Init() tea.Cmd {
	return m.startPlan()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.listReady {
			m.updateList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlanView, ApplyView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ReviewView:
			return m.handleReviewKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == ReviewView && m.listReady {
		var cmd tea.Cmd
		m.updateList, cmd = m.updateList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgPlanComputed:
		data := msg.data.(planData)
		m.finishJob()
		if data.err != nil {
			m.err = data.err
			m.view = ResultView
			return m, nil
		}
		m.result = data.result
		m.setPlan(data.result.Plan)
		m.view = ReviewView
		return m, nil

	case MsgApplyComplete:
		data := msg.data.(applyData)
		m.finishJob()
		m.applied = data.updates
		m.err = data.err
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

func (m *Model) setPlan(plan []models.PlannedUpdate) {
	items := make([]list.Item, len(plan))
	for i, u := range plan {
		items[i] = updateItem{update: u, selected: true}
	}
	m.updateList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.updateList.Title = fmt.Sprintf("%d planned updates", len(plan))
	if m.width > 0 {
		m.updateList.SetSize(m.width-4, m.height-8)
	}
	m.listReady = true
}

// Selected returns the updates still selected in the review list.
func (m *Model) Selected() []models.PlannedUpdate {
	var selected []models.PlannedUpdate
	for _, item := range m.updateList.Items() {
		if it, ok := item.(updateItem); ok && it.selected {
			selected = append(selected, it.update)
		}
	}
	return selected
}

// View returns the current view state.
func (m *Model) View() string {
	switch m.view {
	case PlanView:
		return m.renderProgress("Planning sync")
	case ReviewView:
		return m.renderReview()
	case ConfirmView:
		return m.renderConfirm()
	case ApplyView:
		return m.renderProgress("Updating AniList")
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// State returns the current view.
func (m *Model) State() ViewState {
	return m.view
}

func (m *Model) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.updateList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.updateList, cmd = m.updateList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		if it, ok := m.updateList.SelectedItem().(updateItem); ok {
			it.selected = !it.selected
			return m, m.updateList.SetItem(m.updateList.Index(), it)
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if len(m.Selected()) > 0 {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.updateList, cmd = m.updateList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = ApplyView
		return m, m.startApply(m.Selected())
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = ReviewView
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.replan):
		m.view = PlanView
		m.result = nil
		m.applied = nil
		m.err = nil
		return m, m.startPlan()
	}
	return m, nil
}

func (m *Model) startPlan() tea.Cmd {
	return m.start(func(progress chan<- tasks.ProgressUpdate) Msg {
		result, err := m.syncer.Plan(m.ctx, progress, m.opts)
		return planComputedMsg(result, err)
	})
}

func (m *Model) startApply(updates []models.PlannedUpdate) tea.Cmd {
	return m.start(func(progress chan<- tasks.ProgressUpdate) Msg {
		applied, err := m.syncer.Apply(m.ctx, progress, updates)
		return applyCompleteMsg(applied, err)
	})
}

// start runs job in the background. Its progress is relayed until the channel closes, then the job's message is delivered.
func (m *Model) start(job func(chan<- tasks.ProgressUpdate) Msg) tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan, m.done = progress, done
	m.progress = tasks.ProgressUpdate{}

	go func() {
		done <- job(progress)
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	return func() tea.Msg {
		if progress == nil {
			return nil
		}
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) finishJob() {
	m.progressChan, m.done = nil, nil
}

func (m *Model) renderProgress(heading string) string {
	title := styles.title.Render(heading)

	var phase string
	switch m.progress.Phase {
	case tasks.FetchLibrary:
		phase = "Reading library..."
	case tasks.MapSeries:
		phase = fmt.Sprintf("Mapping series (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.FetchList:
		phase = "Fetching AniList list..."
	case tasks.ComputeStatus:
		phase = fmt.Sprintf("Computing status (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.ApplyUpdates:
		phase = fmt.Sprintf("Applying updates (%d/%d)", m.progress.Step, m.progress.Total)
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderReview() string {
	if len(m.updateList.Items()) == 0 {
		return fmt.Sprintf("%s\n\n%s\n\n%s",
			styles.ok.Render("✓ AniList is up to date"),
			m.summary(),
			m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	}

	helpKeys := []key.Binding{m.keys.toggle, m.keys.enter, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.updateList.View(), m.summary(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) summary() string {
	if m.result == nil {
		return ""
	}
	line := fmt.Sprintf("%d series, %d mappings, %d unchanged",
		m.result.Run.SeriesCount, m.result.Run.MappingCount, m.result.Run.SkippedCount)
	if n := len(m.result.SeriesErrors); n > 0 {
		line += styles.warn.Render(fmt.Sprintf(", %d series could not be mapped", n))
	}
	return line
}

func (m *Model) renderConfirm() string {
	selected := m.Selected()
	title := styles.title.Render(fmt.Sprintf("Write %d updates to AniList?", len(selected)))

	var b strings.Builder
	for _, u := range selected {
		fmt.Fprintf(&b, "  • %s: %s → %s\n", u.Title, formatter.Previous(u), styles.Status(u.Status))
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.replan, m.keys.quit})
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)), helpView)
	}

	var applied, failed int
	var b strings.Builder
	for _, u := range m.applied {
		if u.Err != nil {
			failed++
			fmt.Fprintf(&b, "\n  • %s: %v", u.Title, u.Err)
			continue
		}
		if u.Applied {
			applied++
		}
	}

	title := styles.ok.Render("✓ Sync Complete!")
	info := fmt.Sprintf("\nUpdated: %d/%d", applied, len(m.applied))
	if failed > 0 {
		info += "\n\n" + styles.warn.Render(fmt.Sprintf("Failed to update %d entries:", failed)) + b.String()
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
