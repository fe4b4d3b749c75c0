package ui

import (
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/desertthunder/monthlies/internal/tasks"
	tu "github.com/desertthunder/monthlies/internal/testing"
)

func newTestModel(catalog *tu.FakeCatalog, autoRun bool) *Model {
	engine := tasks.NewReconciler(catalog, tasks.Options{Namer: tasks.DefaultNamer()})
	return NewModel(context.Background(), engine, autoRun)
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// drain executes cmd and feeds the resulting messages back into m until no work remains.
// Spinner ticks are dropped so the loop terminates.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()

	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 500 {
			t.Fatal("too many commands")
		}

		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}

		switch msg := next().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg, tea.QuitMsg, nil:
		default:
			_, follow := m.Update(msg)
			queue = append(queue, follow)
		}
	}
}

func library() *tu.FakeCatalog {
	catalog := tu.NewFakeCatalog(
		tu.Track("a", "2023-01-05T10:00:00Z"),
		tu.Track("b", "2023-01-20T10:00:00Z"),
		tu.Track("c", "2023-02-01T10:00:00Z"),
	)
	catalog.AddPlaylist("202301-generated", "a")
	return catalog
}

func TestModel(t *testing.T) {
	t.Run("plan then run", func(t *testing.T) {
		catalog := library()
		m := newTestModel(catalog, false)

		drain(t, m, m.Init())

		if m.view != PlanView || m.plan == nil {
			t.Fatalf("expected plan view with a plan, got view %d", m.view)
		}
		if got := len(m.periods.Items()); got != 2 {
			t.Errorf("expected 2 months listed, got %d", got)
		}
		if view := m.View(); !strings.Contains(view, "3 tracks scanned") || !strings.Contains(view, "2 tracks to add") {
			t.Errorf("unexpected plan view:\n%s", view)
		}
		if catalog.CallCount("add:") != 0 {
			t.Error("planning should not modify the library")
		}

		m.Update(keyPress("enter"))
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %d", m.view)
		}
		if !strings.Contains(m.View(), "Tracks to add: 2") {
			t.Errorf("unexpected confirm view:\n%s", m.View())
		}

		_, cmd := m.Update(keyPress("y"))
		if m.view != RunView {
			t.Fatalf("expected run view, got %d", m.view)
		}
		drain(t, m, cmd)

		if m.view != ResultView || m.Report() == nil {
			t.Fatalf("expected result view with report, got view %d", m.view)
		}
		if m.Report().Appended() != 2 || m.Report().Created() != 1 {
			t.Errorf("unexpected report %+v", m.Report().Periods)
		}
		if !strings.Contains(m.View(), "Library organized") {
			t.Errorf("unexpected result view:\n%s", m.View())
		}
		if len(m.lines) == 0 {
			t.Error("expected progress messages to be recorded")
		}
	})

	t.Run("decline returns to plan", func(t *testing.T) {
		catalog := library()
		m := newTestModel(catalog, false)
		drain(t, m, m.Init())

		m.Update(keyPress("enter"))
		m.Update(keyPress("n"))
		if m.view != PlanView {
			t.Errorf("expected plan view, got %d", m.view)
		}
		if catalog.CallCount("create:") != 0 {
			t.Error("declined plan should not run")
		}
	})

	t.Run("auto run", func(t *testing.T) {
		catalog := library()
		m := newTestModel(catalog, true)

		drain(t, m, m.Init())

		if m.view != ResultView || m.Report() == nil {
			t.Fatalf("expected result view, got %d", m.view)
		}
		if m.plan != nil {
			t.Error("auto run should skip planning")
		}
	})

	t.Run("restart plans again", func(t *testing.T) {
		catalog := library()
		m := newTestModel(catalog, true)
		drain(t, m, m.Init())

		_, cmd := m.Update(keyPress("r"))
		drain(t, m, cmd)

		if m.view != PlanView || m.plan == nil || m.plan.TotalAppends() != 0 {
			t.Errorf("expected an empty plan after a run, got %+v", m.plan)
		}
	})

	t.Run("plan error", func(t *testing.T) {
		catalog := library()
		catalog.Fail("saved", shared.ErrTokenExpired)
		m := newTestModel(catalog, false)

		drain(t, m, m.Init())

		if m.Err() == nil || !strings.Contains(m.View(), "Error:") {
			t.Errorf("expected error view, got:\n%s", m.View())
		}
		m.Update(keyPress("enter"))
		if m.view != PlanView {
			t.Error("confirm should be unreachable without a plan")
		}
	})

	t.Run("failed run", func(t *testing.T) {
		catalog := library()
		catalog.Fail("create:202302-generated", shared.ErrRateLimited)
		m := newTestModel(catalog, true)

		drain(t, m, m.Init())

		if !strings.Contains(m.View(), "Finished with 1 failed month") {
			t.Errorf("unexpected result view:\n%s", m.View())
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := newTestModel(library(), false)
		drain(t, m, m.Init())

		_, cmd := m.Update(keyPress("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected QuitMsg")
		}
	})
}

func TestOutcomeItem(t *testing.T) {
	tc := []struct {
		name    string
		outcome models.PeriodOutcome
		want    []string
	}{
		{
			name:    "planned create",
			outcome: models.PeriodOutcome{Period: "202301", Playlist: "202301-generated", Status: models.StatusPlanned, Op: "create", Added: 3},
			want:    []string{"new playlist", "+3 to add"},
		},
		{
			name:    "appended",
			outcome: models.PeriodOutcome{Period: "202302", Playlist: "202302-generated", Status: models.StatusAppended, Added: 1, AlreadyPresent: 4},
			want:    []string{"+1 added", "4 already present"},
		},
		{
			name:    "failed",
			outcome: models.PeriodOutcome{Period: "202303", Playlist: "202303-generated", Status: models.StatusFailed, Op: "append", Error: "rate limited"},
			want:    []string{"append: rate limited"},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			item := outcomeItem{outcome: tt.outcome}
			if !strings.Contains(item.Title(), tt.outcome.Period.Label()) {
				t.Errorf("title %q missing month label", item.Title())
			}
			for _, want := range tt.want {
				if !strings.Contains(item.Description(), want) {
					t.Errorf("description %q missing %q", item.Description(), want)
				}
			}
			if item.FilterValue() != tt.outcome.Playlist {
				t.Errorf("FilterValue() = %q", item.FilterValue())
			}
		})
	}
}

func TestKeyMapForScreen(t *testing.T) {
	keys := newKeyMap()
	tc := []struct {
		name  string
		view  ViewState
		ready bool
		want  []string
	}{
		{name: "plan ready", view: PlanView, ready: true, want: []string{"enter", "q"}},
		{name: "plan loading", view: PlanView, want: []string{"q"}},
		{name: "confirm", view: ConfirmView, ready: true, want: []string{"y", "n"}},
		{name: "run", view: RunView, ready: true, want: []string{"q"}},
		{name: "result", view: ResultView, want: []string{"r", "q"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := keys.forScreen(tt.view, tt.ready)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d bindings, want %d", len(got), len(tt.want))
			}
			for i, b := range got {
				if b.Help().Key != tt.want[i] {
					t.Errorf("binding %d = %q, want %q", i, b.Help().Key, tt.want[i])
				}
			}
		})
	}
}
