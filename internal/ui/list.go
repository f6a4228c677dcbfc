package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/anisync/internal/formatter"
	"github.com/desertthunder/anisync/internal/models"
)

var _ list.Item = updateItem{}

// updateItem wraps [models.PlannedUpdate] to implement [list.Item].
type updateItem struct {
	update   models.PlannedUpdate
	selected bool
}

func (i updateItem) FilterValue() string { return i.update.Title }

func (i updateItem) Title() string {
	mark := "[x]"
	if !i.selected {
		mark = "[ ]"
	}
	return fmt.Sprintf("%s %s", mark, i.update.Title)
}

func (i updateItem) Description() string {
	total := "?"
	if i.update.Total != nil {
		total = fmt.Sprint(*i.update.Total)
	}
	return fmt.Sprintf("%s → %s • %d/%s episodes",
		formatter.Previous(i.update), styles.Status(i.update.Status), i.update.Progress, total)
}
