package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/monthlies/internal/models"
)

var _ list.Item = outcomeItem{}

// outcomeItem wraps [models.PeriodOutcome] to implement [list.Item]. Plans and finished runs share it.
type outcomeItem struct {
	outcome models.PeriodOutcome
}

func (i outcomeItem) FilterValue() string { return i.outcome.Playlist }
func (i outcomeItem) Title() string {
	return fmt.Sprintf("%s • %s", i.outcome.Period.Label(), i.outcome.Playlist)
}
func (i outcomeItem) Description() string {
	o := i.outcome
	parts := []string{styles.Status(o.Status).Render(string(o.Status))}

	switch {
	case o.Failed():
		parts = append(parts, fmt.Sprintf("%s: %s", o.Op, o.Error))
	case o.Status == models.StatusPlanned:
		if o.Op == "create" {
			parts = append(parts, "new playlist")
		}
		parts = append(parts, fmt.Sprintf("+%d to add", o.Added))
	default:
		parts = append(parts, fmt.Sprintf("+%d added", o.Added))
	}
	if o.AlreadyPresent > 0 {
		parts = append(parts, fmt.Sprintf("%d already present", o.AlreadyPresent))
	}
	return strings.Join(parts, " • ")
}

func outcomeItems(outcomes []models.PeriodOutcome) []list.Item {
	items := make([]list.Item, len(outcomes))
	for i, o := range outcomes {
		items[i] = outcomeItem{outcome: o}
	}
	return items
}
