package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the bindings the screens react to. List navigation is left to the periods list.
type keyMap struct {
	apply   key.Binding
	confirm key.Binding
	cancel  key.Binding
	back    key.Binding
	replan  key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		apply:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
		confirm: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "run")),
		cancel:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "cancel")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		replan:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "plan again")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// forScreen returns the bindings shown in the help line of s. A plan that is loading or
// failed is not ready to apply.
func (k keyMap) forScreen(s ViewState, ready bool) []key.Binding {
	switch {
	case s == ConfirmView:
		return []key.Binding{k.confirm, k.cancel}
	case s == PlanView && ready:
		return []key.Binding{k.apply, k.quit}
	case s == ResultView:
		return []key.Binding{k.replan, k.quit}
	default:
		return []key.Binding{k.quit}
	}
}
