// Package ui implements the interactive sync review using bubbletea's Elm architecture.
//
// The TUI walks through one sync:
//  1. [PlanView] : compute the plan while progress updates stream in
//  2. [ReviewView] : browse the planned status changes and deselect any that should not be pushed
//  3. [ConfirmView] : confirm writing the selected updates to AniList
//  4. [ApplyView] : monitor the updates as they are written
//  5. [ResultView] : applied and failed updates
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.SyncEngine], so the UI never blocks the sync.
//
// Keyboard navigation uses vim-style bindings (j/k, space, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
