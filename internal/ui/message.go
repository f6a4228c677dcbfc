package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgPlanComputed
	MsgApplyComplete
)

type planData struct {
	result *tasks.SyncResult
	err    error
}

type applyData struct {
	updates []models.PlannedUpdate
	err     error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// planComputedMsg is the constructor for [MsgPlanComputed]
func planComputedMsg(result *tasks.SyncResult, err error) Msg {
	return Msg{kind: MsgPlanComputed, data: planData{result, err}}
}

// applyCompleteMsg is the constructor for [MsgApplyComplete]
func applyCompleteMsg(updates []models.PlannedUpdate, err error) Msg {
	return Msg{kind: MsgApplyComplete, data: applyData{updates, err}}
}
