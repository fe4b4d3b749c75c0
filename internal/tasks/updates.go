package tasks

import (
	"fmt"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Failed  bool   // Set when the step failed
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchTracks Phase = iota
	FetchPlaylists
	GroupTracks
	CreatePlaylists
	RefreshPlaylists
	FetchPlaylistTracks
	AppendTracks
	Done
)

func (p Phase) String() string {
	switch p {
	case FetchTracks:
		return "fetch_tracks"
	case FetchPlaylists:
		return "fetch_playlists"
	case GroupTracks:
		return "group_tracks"
	case CreatePlaylists:
		return "create_playlists"
	case RefreshPlaylists:
		return "refresh_playlists"
	case FetchPlaylistTracks:
		return "fetch_playlist_tracks"
	case AppendTracks:
		return "append_tracks"
	case Done:
		return "done"
	default:
		return ""
	}
}

func fetchTracksUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchTracks, Step: 1, Total: 1, Message: "Fetching saved tracks..."}
}

func fetchedTracksUpdate(n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetched %d saved %s", n, shared.Pluralize(n, "track", "tracks")),
	}
}

func fetchPlaylistsUpdate(refresh bool) ProgressUpdate {
	if refresh {
		return ProgressUpdate{Phase: RefreshPlaylists, Step: 1, Total: 1, Message: "Refreshing playlist listing..."}
	}
	return ProgressUpdate{Phase: FetchPlaylists, Step: 1, Total: 1, Message: "Fetching playlists..."}
}

func groupUpdate(groups Groups, anomalies int) ProgressUpdate {
	msg := fmt.Sprintf("Grouped tracks into %d %s", len(groups), shared.Pluralize(len(groups), "month", "months"))
	if anomalies > 0 {
		msg += fmt.Sprintf(" (%d skipped)", anomalies)
	}
	return ProgressUpdate{Phase: GroupTracks, Step: 1, Total: 1, Message: msg, Data: groups}
}

func createPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Creating %s...", step, total, name),
	}
}

func createdPlaylistUpdate(step, total int, pl *models.PlaylistSummary) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ Created %s (ID: %s)", step, total, pl.Name, pl.ID),
		Data:    pl,
	}
}

func fetchPlaylistTracksUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylistTracks,
		Message: fmt.Sprintf("Comparing tracks in %s...", name),
	}
}

func appendUpdate(step, total int, action AppendAction) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AppendTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Adding %d %s to %s...", step, total, len(action.TrackIDs), shared.Pluralize(len(action.TrackIDs), "track", "tracks"), action.Playlist),
	}
}

func unchangedUpdate(step, total int, action AppendAction) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AppendTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: no new tracks", step, total, action.Playlist),
	}
}

func periodFailedUpdate(step, total int, phase Phase, err *shared.PeriodError) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %v", step, total, err),
		Failed:  true,
		Data:    err,
	}
}

func doneUpdate(report *models.RunReport) ProgressUpdate {
	return ProgressUpdate{
		Phase: Done,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("Created %d %s, added %d %s",
			report.Created(), shared.Pluralize(report.Created(), "playlist", "playlists"),
			report.Appended(), shared.Pluralize(report.Appended(), "track", "tracks")),
		Failed: report.HasFailures(),
		Data:   report,
	}
}
