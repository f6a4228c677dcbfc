package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/tasks"
)

type fakeSyncer struct {
	plan    []models.PlannedUpdate
	planErr error
	plans   int
	applied [][]models.PlannedUpdate
}

func (f *fakeSyncer) Plan(ctx context.Context, progress chan<- tasks.ProgressUpdate, opts tasks.SyncOpts) (*tasks.SyncResult, error) {
	f.plans++
	progress <- tasks.ProgressUpdate{Phase: tasks.MapSeries, Step: 1, Total: 1, Message: "Mapping Frieren (1/1)..."}
	if f.planErr != nil {
		return nil, f.planErr
	}
	return &tasks.SyncResult{Plan: append([]models.PlannedUpdate(nil), f.plan...)}, nil
}

func (f *fakeSyncer) Apply(ctx context.Context, progress chan<- tasks.ProgressUpdate, updates []models.PlannedUpdate) ([]models.PlannedUpdate, error) {
	f.applied = append(f.applied, updates)
	out := make([]models.PlannedUpdate, len(updates))
	for i, u := range updates {
		u.Applied = true
		out[i] = u
		progress <- tasks.ProgressUpdate{Phase: tasks.ApplyUpdates, Step: i + 1, Total: len(updates)}
	}
	return out, nil
}

// drain runs cmd and feeds its messages back into m until no follow-up command remains.
func drain(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func samplePlan() []models.PlannedUpdate {
	return []models.PlannedUpdate{
		{CatalogID: 1, Title: "Frieren (season 1)", Status: models.Completed, Progress: 28, Total: models.IntPtr(28)},
		{CatalogID: 2, Title: "Dandadan (season 1)", Status: models.Current, Progress: 4,
			Previous: &models.ListEntry{CatalogID: 2, Status: models.Planning}},
	}
}

func TestModel(t *testing.T) {
	ctx := context.Background()

	t.Run("review, deselect and apply", func(t *testing.T) {
		syncer := &fakeSyncer{plan: samplePlan()}
		m := NewModel(ctx, syncer, tasks.SyncOpts{})
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

		drain(m, m.Init())
		if m.State() != ReviewView {
			t.Fatalf("expected review view, got %v", m.State())
		}
		if len(m.Selected()) != 2 {
			t.Fatalf("expected every update to start selected, got %d", len(m.Selected()))
		}
		if !strings.Contains(m.View(), "Frieren (season 1)") {
			t.Errorf("review view missing update: %s", m.View())
		}

		m.Update(runeKey('x'))
		selected := m.Selected()
		if len(selected) != 1 || selected[0].CatalogID != 2 {
			t.Fatalf("expected only Dandadan to stay selected, got %+v", selected)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.State() != ConfirmView {
			t.Fatalf("expected confirm view, got %v", m.State())
		}
		if !strings.Contains(m.View(), "Write 1 updates to AniList?") {
			t.Errorf("unexpected confirm view: %s", m.View())
		}

		_, cmd := m.Update(runeKey('y'))
		if m.State() != ApplyView {
			t.Fatalf("expected apply view, got %v", m.State())
		}
		drain(m, cmd)

		if m.State() != ResultView {
			t.Fatalf("expected result view, got %v", m.State())
		}
		if len(syncer.applied) != 1 || len(syncer.applied[0]) != 1 || syncer.applied[0][0].CatalogID != 2 {
			t.Errorf("expected only the selected update to be applied, got %+v", syncer.applied)
		}
		if !strings.Contains(m.View(), "Updated: 1/1") {
			t.Errorf("unexpected result view: %s", m.View())
		}
	})

	t.Run("declining returns to review", func(t *testing.T) {
		syncer := &fakeSyncer{plan: samplePlan()}
		m := NewModel(ctx, syncer, tasks.SyncOpts{})
		drain(m, m.Init())

		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		m.Update(runeKey('n'))
		if m.State() != ReviewView || len(syncer.applied) != 0 {
			t.Errorf("expected to be back in review without applying, view=%v", m.State())
		}
	})

	t.Run("nothing to do", func(t *testing.T) {
		m := NewModel(ctx, &fakeSyncer{}, tasks.SyncOpts{})
		drain(m, m.Init())

		if !strings.Contains(m.View(), "up to date") {
			t.Errorf("expected up to date message, got %s", m.View())
		}
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.State() != ReviewView {
			t.Errorf("expected enter to be ignored without selection, got %v", m.State())
		}
	})

	t.Run("plan failure and retry", func(t *testing.T) {
		syncer := &fakeSyncer{planErr: errors.New("plex offline")}
		m := NewModel(ctx, syncer, tasks.SyncOpts{})
		drain(m, m.Init())

		if m.State() != ResultView || !strings.Contains(m.View(), "Sync failed: plex offline") {
			t.Fatalf("expected failure view, got %v: %s", m.State(), m.View())
		}

		syncer.planErr = nil
		syncer.plan = samplePlan()
		_, cmd := m.Update(runeKey('r'))
		drain(m, cmd)
		if syncer.plans != 2 || m.State() != ReviewView {
			t.Errorf("expected a second plan, plans=%d view=%v", syncer.plans, m.State())
		}
	})

	t.Run("progress is rendered while planning", func(t *testing.T) {
		m := NewModel(ctx, &fakeSyncer{plan: samplePlan()}, tasks.SyncOpts{})
		cmd := m.Init()

		msg := cmd()
		m.Update(msg)
		if m.State() != PlanView || !strings.Contains(m.View(), "Mapping series (1/1)") {
			t.Errorf("expected mapping progress, got %s", m.View())
		}
	})
}
