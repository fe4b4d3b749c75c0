package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/tasks"
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
	MsgPlanReady MsgKind = iota
	MsgProgressUpdate
	MsgRunComplete
)

type planResult struct {
	plan *tasks.Plan
	err  error
}

type runResult struct {
	report *models.RunReport
	err    error
}

// planReadyMsg is the constructor for [MsgPlanReady]
func planReadyMsg(plan *tasks.Plan, err error) Msg {
	return Msg{kind: MsgPlanReady, data: planResult{plan, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(report *models.RunReport, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runResult{report, err}}
}
