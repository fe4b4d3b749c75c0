// package models defines the data model for the monthly playlist organizer
package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/monthlies/internal/shared"
)

// PeriodKey identifies a calendar month as a six character YYYYMM string.
type PeriodKey string

const periodLayout = "200601"

// NewPeriodKey formats t in loc as a PeriodKey.
func NewPeriodKey(t time.Time, loc *time.Location) PeriodKey {
	if loc == nil {
		loc = time.UTC
	}
	return PeriodKey(t.In(loc).Format(periodLayout))
}

// Valid reports whether the key is a well formed YYYYMM value.
func (p PeriodKey) Valid() bool {
	if len(p) != 6 {
		return false
	}
	_, err := time.Parse(periodLayout, string(p))
	return err == nil
}

// Time returns the first instant of the month in UTC.
func (p PeriodKey) Time() (time.Time, error) {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: period %q", shared.ErrInvalidInput, p)
	}
	return t, nil
}

// Label renders the key for humans, e.g. "January 2023".
func (p PeriodKey) Label() string {
	t, err := p.Time()
	if err != nil {
		return string(p)
	}
	return t.Format("January 2006")
}

func (p PeriodKey) String() string {
	return string(p)
}

// TrackRecord is one saved track as reported by the catalog.
type TrackRecord struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	AddedAt string `json:"added_at"` // RFC 3339, as returned by the catalog
}

// SavedAt parses AddedAt.
func (t TrackRecord) SavedAt() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, t.AddedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: track %s added_at %q", shared.ErrMalformedTimestamp, t.ID, t.AddedAt)
	}
	return ts, nil
}

// PeriodKey derives the month bucket from AddedAt in loc.
func (t TrackRecord) PeriodKey(loc *time.Location) (PeriodKey, error) {
	ts, err := t.SavedAt()
	if err != nil {
		return "", err
	}
	return NewPeriodKey(ts, loc), nil
}

// PlaylistSummary is one playlist owned or followed by the user.
type PlaylistSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	OwnerID    string `json:"owner_id,omitempty"`
	Followed   bool   `json:"followed,omitempty"` // Owned by someone else
	Public     bool   `json:"public"`
	TrackCount int    `json:"track_count"`
}

// IndexPlaylists keys the user's own playlists by name. The first playlist seen wins when names
// repeat. Followed playlists are left out since they cannot be modified.
func IndexPlaylists(playlists []PlaylistSummary) map[string]PlaylistSummary {
	idx := make(map[string]PlaylistSummary, len(playlists))
	for _, p := range playlists {
		if p.Followed {
			continue
		}
		if _, ok := idx[p.Name]; !ok {
			idx[p.Name] = p
		}
	}
	return idx
}

// Anomaly describes a saved track that was excluded from planning.
type Anomaly struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	AddedAt string `json:"added_at"`
	Reason  string `json:"reason"`
}

// OutcomeStatus is the final state of a period after a run.
type OutcomeStatus string

const (
	StatusPlanned   OutcomeStatus = "planned"
	StatusCreated   OutcomeStatus = "created"
	StatusAppended  OutcomeStatus = "appended"
	StatusUnchanged OutcomeStatus = "unchanged"
	StatusFailed    OutcomeStatus = "failed"
)

// PeriodOutcome records what happened to one monthly playlist.
type PeriodOutcome struct {
	Period         PeriodKey     `json:"period"`
	Playlist       string        `json:"playlist"`
	PlaylistID     string        `json:"playlist_id,omitempty"`
	Status         OutcomeStatus `json:"status"`
	Added          int           `json:"added"`
	AlreadyPresent int           `json:"already_present"`
	Op             string        `json:"op,omitempty"`
	Error          string        `json:"error,omitempty"`
	Retryable      bool          `json:"retryable,omitempty"` // Failed for a transient reason
}

// Failed reports whether the period did not reach its target state.
func (o PeriodOutcome) Failed() bool {
	return o.Status == StatusFailed
}

// RunReport summarizes one reconciliation run.
type RunReport struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	DryRun        bool            `json:"dry_run"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	TracksScanned int             `json:"tracks_scanned"`
	Anomalies     []Anomaly       `json:"anomalies,omitempty"`
	Periods       []PeriodOutcome `json:"periods"`
	Error         string          `json:"error,omitempty"` // Set when the run aborted
}

// NewRunReport starts a report with a fresh id.
func NewRunReport(dryRun bool) *RunReport {
	return &RunReport{
		ID:        shared.GenerateID(),
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
}

// Outcome returns the outcome for period, or nil.
func (r *RunReport) Outcome(period PeriodKey) *PeriodOutcome {
	for i := range r.Periods {
		if r.Periods[i].Period == period {
			return &r.Periods[i]
		}
	}
	return nil
}

// Created counts playlists created during the run.
func (r *RunReport) Created() int {
	n := 0
	for _, p := range r.Periods {
		if p.Status == StatusCreated {
			n++
		}
	}
	return n
}

// Appended counts track ids added across all playlists.
func (r *RunReport) Appended() int {
	n := 0
	for _, p := range r.Periods {
		n += p.Added
	}
	return n
}

// Failures returns the periods that failed.
func (r *RunReport) Failures() []PeriodOutcome {
	var failed []PeriodOutcome
	for _, p := range r.Periods {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}

// Retryable counts failed periods whose cause was transient.
func (r *RunReport) Retryable() int {
	n := 0
	for _, p := range r.Periods {
		if p.Failed() && p.Retryable {
			n++
		}
	}
	return n
}

// HasFailures reports whether the run aborted or any period failed.
func (r *RunReport) HasFailures() bool {
	return r.Error != "" || len(r.Failures()) > 0
}

// Duration is the wall time the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
