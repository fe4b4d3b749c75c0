package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/desertthunder/monthlies/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlanView ViewState = iota
	ConfirmView
	RunView
	ResultView
)

// maxLogLines bounds the progress messages kept on the run view.
const maxLogLines = 8

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	engine       tasks.Engine
	autoRun      bool
	width        int
	height       int
	spinner      spinner.Model
	periods      list.Model
	plan         *tasks.Plan
	report       *models.RunReport
	progressChan chan tasks.ProgressUpdate
	resultChan   chan runResult
	progress     tasks.ProgressUpdate
	lines        []string
	loading      bool
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model. With autoRun the run starts without a confirmation step.
func NewModel(ctx context.Context, engine tasks.Engine, autoRun bool) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &Model{
		ctx:     ctx,
		view:    PlanView,
		engine:  engine,
		autoRun: autoRun,
		spinner: s,
		periods: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		loading: true,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Report returns the finished run's report, or nil when no run completed.
func (m *Model) Report() *models.RunReport {
	return m.report
}

// Err returns the error that ended the session, if any.
func (m *Model) Err() error {
	return m.err
}

// Init computes the plan, or starts the run directly in auto-run mode.
func (m *Model) Init() tea.Cmd {
	if m.autoRun {
		m.view = RunView
		return tea.Batch(m.spinner.Tick, m.startRun())
	}
	return tea.Batch(m.spinner.Tick, m.fetchPlan())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.periods.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case PlanView:
			return m.handlePlanKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlanReady:
		res := msg.data.(planResult)
		m.loading = false
		m.err = res.err
		m.plan = res.plan
		if res.plan != nil {
			m.setPeriods(fmt.Sprintf("Plan • %d to add", res.plan.TotalAppends()), res.plan.Report().Periods)
		}
		return m, nil

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = update
		m.lines = append(m.lines, update.Message)
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		return m, m.waitForProgress()

	case MsgRunComplete:
		res := msg.data.(runResult)
		m.report = res.report
		m.err = res.err
		m.view = ResultView
		m.progressChan = nil
		if res.report != nil {
			m.setPeriods("Run complete", res.report.Periods)
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PlanView:
		return m.renderPlan()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) setPeriods(title string, outcomes []models.PeriodOutcome) {
	m.periods = list.New(outcomeItems(outcomes), list.NewDefaultDelegate(), 0, 0)
	m.periods.Title = title
	m.periods.SetShowHelp(false)
	if m.width > 0 {
		m.periods.SetSize(m.width-4, m.height-8)
	}
}

func (m *Model) handlePlanKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.apply):
		if m.plan != nil && m.err == nil {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.periods, cmd = m.periods.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.confirm):
		m.view = RunView
		m.lines = nil
		return m, tea.Batch(m.spinner.Tick, m.startRun())
	case key.Matches(msg, m.keys.cancel), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = PlanView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.replan):
		m.view = PlanView
		m.plan = nil
		m.err = nil
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.fetchPlan())
	}

	var cmd tea.Cmd
	m.periods, cmd = m.periods.Update(msg)
	return m, cmd
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != PlanView && m.view != ResultView {
		return m, nil
	}
	var cmd tea.Cmd
	m.periods, cmd = m.periods.Update(msg)
	return m, cmd
}

func (m *Model) fetchPlan() tea.Cmd {
	return func() tea.Msg {
		plan, err := m.engine.Plan(m.ctx, nil)
		return planReadyMsg(plan, err)
	}
}

func (m *Model) startRun() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 64)
	results := make(chan runResult, 1)
	m.progressChan = progress
	m.resultChan = results

	go func() {
		report, err := m.engine.Run(m.ctx, progress)
		results <- runResult{report, err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, results := m.progressChan, m.resultChan
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			res := <-results
			return runCompleteMsg(res.report, res.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) helpView() string {
	ready := !m.loading && m.err == nil && m.plan != nil
	return styles.help.Render(m.help.ShortHelpView(m.keys.forScreen(m.view, ready)))
}

func (m *Model) renderPlan() string {
	if m.loading {
		return fmt.Sprintf("%s Computing plan...\n\n%s", m.spinner.View(), m.helpView())
	}
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.helpView()
	}

	summary := fmt.Sprintf("%d %s scanned • %d %s to create • %d %s to add",
		m.plan.TracksScanned, shared.Pluralize(m.plan.TracksScanned, "track", "tracks"),
		len(m.plan.ToCreate), shared.Pluralize(len(m.plan.ToCreate), "playlist", "playlists"),
		m.plan.TotalAppends(), shared.Pluralize(m.plan.TotalAppends(), "track", "tracks"))
	if n := len(m.plan.Anomalies); n > 0 {
		summary += styles.warn.Render(fmt.Sprintf(" • %d skipped", n))
	}

	return fmt.Sprintf("%s\n%s\n\n%s", summary, m.periods.View(), m.helpView())
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Apply this plan?")
	info := fmt.Sprintf("Playlists to create: %d\nTracks to add: %d\n", len(m.plan.ToCreate), m.plan.TotalAppends())
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.helpView())
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Organizing saved tracks")

	phase := m.progress.Phase.String()
	if m.progress.Total > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", phase, m.progress.Step, m.progress.Total)
	}

	var log strings.Builder
	for _, line := range m.lines {
		log.WriteString("  " + line + "\n")
	}

	return fmt.Sprintf("%s\n%s %s\n\n%s\n%s", title, m.spinner.View(), phase, log.String(), m.helpView())
}

func (m *Model) renderResult() string {
	if m.report == nil {
		return styles.err.Render(fmt.Sprintf("Run failed: %v", m.err)) + "\n\n" + m.helpView()
	}

	var header string
	switch {
	case m.report.Error != "":
		header = styles.err.Render("✗ Run aborted: " + m.report.Error)
	case m.report.HasFailures():
		header = styles.warn.Render(fmt.Sprintf("⚠ Finished with %d failed %s", len(m.report.Failures()),
			shared.Pluralize(len(m.report.Failures()), "month", "months")))
	default:
		header = styles.ok.Render("✓ Library organized")
	}

	info := fmt.Sprintf("Created %d %s, added %d %s",
		m.report.Created(), shared.Pluralize(m.report.Created(), "playlist", "playlists"),
		m.report.Appended(), shared.Pluralize(m.report.Appended(), "track", "tracks"))

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", header, info, m.periods.View(), m.helpView())
}
