package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/samber/lo"
)

const periodPlaceholder = "{period}"

// Namer derives playlist names and descriptions from a period key.
type Namer struct {
	NameTemplate        string
	DescriptionTemplate string
}

// DefaultNamer names playlists "YYYYMM-generated".
func DefaultNamer() Namer {
	return Namer{
		NameTemplate:        periodPlaceholder + "-generated",
		DescriptionTemplate: "Tracks saved in " + periodPlaceholder,
	}
}

// Name returns the playlist name for period.
func (n Namer) Name(period models.PeriodKey) string {
	tmpl := n.NameTemplate
	if tmpl == "" {
		tmpl = DefaultNamer().NameTemplate
	}
	return strings.ReplaceAll(tmpl, periodPlaceholder, string(period))
}

// Description returns the playlist description for period.
func (n Namer) Description(period models.PeriodKey) string {
	return strings.ReplaceAll(n.DescriptionTemplate, periodPlaceholder, string(period))
}

// Group holds the distinct track ids saved during one period, in first-seen order.
type Group struct {
	Period   models.PeriodKey `json:"period"`
	TrackIDs []string         `json:"track_ids"`
}

// Groups is sorted ascending by period.
type Groups []Group

// Periods returns the period keys in ascending order.
func (g Groups) Periods() []models.PeriodKey {
	return lo.Map(g, func(grp Group, _ int) models.PeriodKey { return grp.Period })
}

// Get returns the group for period.
func (g Groups) Get(period models.PeriodKey) (Group, bool) {
	return lo.Find(g, func(grp Group) bool { return grp.Period == period })
}

// TrackCount is the number of grouped ids across all periods.
func (g Groups) TrackCount() int {
	return lo.SumBy(g, func(grp Group) int { return len(grp.TrackIDs) })
}

// Without returns the groups whose period is not in skip.
func (g Groups) Without(skip map[models.PeriodKey]bool) Groups {
	return lo.Filter(g, func(grp Group, _ int) bool { return !skip[grp.Period] })
}

// ComputeGroups buckets tracks by the month they were saved in loc.
//
// Records with an unparseable timestamp are excluded and reported as anomalies.
// Ids are deduplicated within a group.
func ComputeGroups(tracks []models.TrackRecord, loc *time.Location) (Groups, []models.Anomaly) {
	var anomalies []models.Anomaly
	byPeriod := make(map[models.PeriodKey]*Group)
	seen := make(map[models.PeriodKey]map[string]struct{})

	for _, track := range tracks {
		period, err := track.PeriodKey(loc)
		if err != nil {
			anomalies = append(anomalies, models.Anomaly{
				TrackID: track.ID,
				Title:   track.Title,
				AddedAt: track.AddedAt,
				Reason:  err.Error(),
			})
			continue
		}

		if track.ID == "" {
			anomalies = append(anomalies, models.Anomaly{
				Title:   track.Title,
				AddedAt: track.AddedAt,
				Reason:  fmt.Sprintf("%v: track has no id", shared.ErrInvalidInput),
			})
			continue
		}

		grp, ok := byPeriod[period]
		if !ok {
			grp = &Group{Period: period}
			byPeriod[period] = grp
			seen[period] = make(map[string]struct{})
		}

		if _, dup := seen[period][track.ID]; dup {
			continue
		}
		seen[period][track.ID] = struct{}{}
		grp.TrackIDs = append(grp.TrackIDs, track.ID)
	}

	groups := make(Groups, 0, len(byPeriod))
	for _, grp := range byPeriod {
		groups = append(groups, *grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Period < groups[j].Period })

	return groups, anomalies
}

// PlanCreations returns the periods whose playlist name is absent from existing, in ascending order.
// A name is planned at most once even when several periods resolve to it.
func PlanCreations(periods []models.PeriodKey, existing map[string]models.PlaylistSummary, namer Namer) []models.PeriodKey {
	sorted := append([]models.PeriodKey(nil), periods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	planned := make(map[string]bool)
	var toCreate []models.PeriodKey
	for _, period := range sorted {
		name := namer.Name(period)
		if _, ok := existing[name]; ok || planned[name] {
			continue
		}
		planned[name] = true
		toCreate = append(toCreate, period)
	}
	return toCreate
}

// AppendAction is the set of ids to add to one period's playlist. Empty TrackIDs is a no-op.
type AppendAction struct {
	Period         models.PeriodKey `json:"period"`
	Playlist       string           `json:"playlist"`
	PlaylistID     string           `json:"playlist_id,omitempty"`
	TrackIDs       []string         `json:"track_ids"`
	AlreadyPresent int              `json:"already_present"`
	Created        bool             `json:"created"`
}

// Empty reports whether the action adds nothing.
func (a AppendAction) Empty() bool {
	return len(a.TrackIDs) == 0
}

// TrackIDFetcher returns the ids currently in a playlist.
type TrackIDFetcher func(ctx context.Context, playlistID string) (map[string]struct{}, error)

// PlanAppends computes the tracks to add to each period's playlist.
//
// Playlists named in created receive every grouped id without a fetch. Other playlists are fetched once
// and only ids they do not already hold are planned. When periods share a playlist name, ids planned for
// an earlier period are not planned again.
//
// Per-period failures are returned alongside the actions. An authorization failure stops planning and is
// returned as the last error.
func PlanAppends(
	ctx context.Context,
	groups Groups,
	existing map[string]models.PlaylistSummary,
	created map[string]bool,
	namer Namer,
	fetch TrackIDFetcher,
) ([]AppendAction, []*shared.PeriodError) {
	var actions []AppendAction
	var failures []*shared.PeriodError

	current := make(map[string]map[string]struct{})
	planned := make(map[string]map[string]struct{})

	for _, grp := range groups {
		name := namer.Name(grp.Period)
		summary, exists := existing[name]
		isNew := created[name]

		if !exists && !isNew {
			failures = append(failures, &shared.PeriodError{
				Period: string(grp.Period), Playlist: name, Op: "fetch",
				Err: fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, name),
			})
			continue
		}

		have, fetched := current[name]
		if !fetched {
			if isNew {
				have = map[string]struct{}{}
			} else {
				ids, err := fetch(ctx, summary.ID)
				if err != nil {
					failures = append(failures, &shared.PeriodError{
						Period: string(grp.Period), Playlist: name, Op: "fetch", Err: err,
					})
					if shared.IsAuthorizationFailure(err) || ctx.Err() != nil {
						return actions, failures
					}
					continue
				}
				have = ids
			}
			current[name] = have
		}

		if planned[name] == nil {
			planned[name] = make(map[string]struct{})
		}

		action := AppendAction{
			Period:     grp.Period,
			Playlist:   name,
			PlaylistID: summary.ID,
			Created:    isNew,
			TrackIDs:   []string{},
		}
		for _, id := range grp.TrackIDs {
			if _, ok := have[id]; ok {
				action.AlreadyPresent++
				continue
			}
			if _, ok := planned[name][id]; ok {
				action.AlreadyPresent++
				continue
			}
			planned[name][id] = struct{}{}
			action.TrackIDs = append(action.TrackIDs, id)
		}

		actions = append(actions, action)
	}

	return actions, failures
}

// Plan is the full set of changes a run would make.
type Plan struct {
	TracksScanned int                   `json:"tracks_scanned"`
	Groups        Groups                `json:"groups"`
	ToCreate      []models.PeriodKey    `json:"to_create"`
	ToAppend      []AppendAction        `json:"to_append"`
	Anomalies     []models.Anomaly      `json:"anomalies,omitempty"`
	Failures      []*shared.PeriodError `json:"-"`
}

// AppendsFor returns the ids planned for period.
func (p *Plan) AppendsFor(period models.PeriodKey) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, a := range p.ToAppend {
		if a.Period == period {
			for _, id := range a.TrackIDs {
				ids[id] = struct{}{}
			}
		}
	}
	return ids
}

// TotalAppends counts ids across all append actions.
func (p *Plan) TotalAppends() int {
	return lo.SumBy(p.ToAppend, func(a AppendAction) int { return len(a.TrackIDs) })
}

// Report renders the plan as a dry-run report.
func (p *Plan) Report() *models.RunReport {
	report := models.NewRunReport(true)
	report.TracksScanned = p.TracksScanned
	report.Anomalies = p.Anomalies

	outcomes := make(map[models.PeriodKey]*models.PeriodOutcome)
	for _, a := range p.ToAppend {
		o := &models.PeriodOutcome{
			Period:         a.Period,
			Playlist:       a.Playlist,
			PlaylistID:     a.PlaylistID,
			Status:         models.StatusPlanned,
			Added:          len(a.TrackIDs),
			AlreadyPresent: a.AlreadyPresent,
			Op:             "append",
		}
		switch {
		case a.Created:
			o.Op = "create"
		case a.Empty():
			o.Status = models.StatusUnchanged
			o.Op = ""
		}
		outcomes[a.Period] = o
	}
	for _, f := range p.Failures {
		outcomes[models.PeriodKey(f.Period)] = failedOutcome(f)
	}

	report.Periods = sortedOutcomes(outcomes)
	report.FinishedAt = time.Now().UTC()
	return report
}

func failedOutcome(f *shared.PeriodError) *models.PeriodOutcome {
	return &models.PeriodOutcome{
		Period:    models.PeriodKey(f.Period),
		Playlist:  f.Playlist,
		Status:    models.StatusFailed,
		Op:        f.Op,
		Error:     f.Err.Error(),
		Retryable: shared.IsTransient(f.Err),
	}
}

func sortedOutcomes(outcomes map[models.PeriodKey]*models.PeriodOutcome) []models.PeriodOutcome {
	keys := lo.Keys(outcomes)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return lo.Map(keys, func(k models.PeriodKey, _ int) models.PeriodOutcome { return *outcomes[k] })
}
