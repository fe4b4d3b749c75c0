// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through a reconciliation:
//  1. [PlanView] : Review the months, playlists to create and tracks to add
//  2. [ConfirmView] : Confirm the plan
//  3. [RunView] : Monitor real-time progress updates
//  4. [ResultView] : Inspect the outcome of every month
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.Engine], providing non-blocking status reporting during runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
