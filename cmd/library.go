package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/monthlies/internal/formatter"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/urfave/cli/v3"
)

// LibraryTracks lists saved tracks with the month each one is filed under.
func (r *Runner) LibraryTracks(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")
	export := cmd.String("export")

	catalog, err := r.catalog()
	if err != nil {
		return err
	}

	loc, err := r.config.Organizer.Location()
	if err != nil {
		return err
	}

	r.logger.Infof("listing saved tracks with limit %v", limit)

	tracks, err := withReauth(ctx, r, func() ([]models.TrackRecord, error) {
		return catalog.SavedTracks(ctx, limit)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if export != "" {
		path, err := formatter.WriteTracksCSV(tracks, loc, export)
		if err != nil {
			return err
		}
		r.logger.Info("exported saved tracks", "path", path, "count", len(tracks))
		return r.writePlain("✓ Exported %d %s to %s\n", len(tracks), shared.Pluralize(len(tracks), "track", "tracks"), path)
	}

	if useJSON {
		return r.writeJSON(tracks, pretty)
	}

	r.writePlainHeader(fmt.Sprintf("%d saved %s", len(tracks), shared.Pluralize(len(tracks), "track", "tracks")))
	for _, t := range tracks {
		period, err := t.PeriodKey(loc)
		month := string(period)
		if err != nil {
			month = "??????"
		}
		r.writePlain("%s  %s - %s\n", month, t.Title, t.Artist)
	}
	return nil
}

// LibraryPlaylists lists the user's playlists.
func (r *Runner) LibraryPlaylists(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	catalog, err := r.catalog()
	if err != nil {
		return err
	}

	r.logger.Infof("listing playlists with limit %v", limit)

	playlists, err := withReauth(ctx, r, func() ([]models.PlaylistSummary, error) {
		return catalog.Playlists(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlainHeader(fmt.Sprintf("%d %s", len(playlists), shared.Pluralize(len(playlists), "playlist", "playlists")))
	for _, p := range playlists {
		owner := ""
		if p.Followed {
			owner = "  (followed, owner " + p.OwnerID + ")"
		}
		r.writePlain("%-40s %4d tracks  %-7s  %s%s\n", p.Name, p.TrackCount, shared.VisibilityString(p.Public), p.ID, owner)
	}
	return nil
}
