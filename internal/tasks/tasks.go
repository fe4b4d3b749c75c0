package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/services"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// maxTracksPerAppend matches the catalog's per-request limit.
const maxTracksPerAppend = 100

// Engine defines the reconciliation operations.
type Engine interface {
	// Plan fetches the library and computes the changes a run would make without mutating anything.
	Plan(ctx context.Context, progress chan<- ProgressUpdate) (*Plan, error)

	// Run fetches the library, creates missing playlists, re-fetches the listing and appends new tracks.
	Run(ctx context.Context, progress chan<- ProgressUpdate) (*models.RunReport, error)
}

// Options configures a [Reconciler].
type Options struct {
	Namer             Namer
	Public            bool
	SavedTracksLimit  int            // Zero fetches every saved track
	Location          *time.Location // Bucketing timezone, UTC when nil
	RequestsPerSecond float64        // Pacing for calls after the initial fetch; zero disables pacing
	Logger            *log.Logger
}

// OptionsFromConfig builds reconciler options from the organizer config section.
func OptionsFromConfig(cfg shared.OrganizerConfig, logger *log.Logger) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}

	return Options{
		Namer:             Namer{NameTemplate: cfg.NameTemplate, DescriptionTemplate: cfg.DescriptionTemplate},
		Public:            cfg.Public,
		SavedTracksLimit:  cfg.SavedTracksLimit,
		Location:          loc,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	}, nil
}

// Reconciler implements [Engine] against a single [services.Catalog].
type Reconciler struct {
	catalog services.Catalog
	opts    Options
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewReconciler creates a Reconciler. The catalog is used for every call of every run.
func NewReconciler(catalog services.Catalog, opts Options) *Reconciler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Namer.NameTemplate == "" {
		opts.Namer = DefaultNamer()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Reconciler{
		catalog: catalog,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (r *Reconciler) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (r *Reconciler) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}
	return nil
}

// fetchTrackIDs is the paced [TrackIDFetcher] used during planning.
func (r *Reconciler) fetchTrackIDs(progress chan<- ProgressUpdate, byID map[string]string) TrackIDFetcher {
	return func(ctx context.Context, playlistID string) (map[string]struct{}, error) {
		r.sendProgress(progress, fetchPlaylistTracksUpdate(byID[playlistID]))
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return r.catalog.PlaylistTrackIDs(ctx, playlistID)
	}
}

type snapshot struct {
	tracks    []models.TrackRecord
	playlists map[string]models.PlaylistSummary
	groups    Groups
	anomalies []models.Anomaly
}

// load performs the read-only first step shared by Plan and Run.
func (r *Reconciler) load(ctx context.Context, progress chan<- ProgressUpdate) (*snapshot, error) {
	r.sendProgress(progress, fetchTracksUpdate())
	tracks, err := r.catalog.SavedTracks(ctx, r.opts.SavedTracksLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch saved tracks: %w", err)
	}
	r.sendProgress(progress, fetchedTracksUpdate(len(tracks)))
	r.logger.Info("fetched saved tracks", "count", len(tracks))

	playlists, err := r.fetchPlaylists(ctx, progress, false)
	if err != nil {
		return nil, err
	}

	groups, anomalies := ComputeGroups(tracks, r.opts.Location)
	for _, a := range anomalies {
		r.logger.Warn("skipping track", "id", a.TrackID, "added_at", a.AddedAt, "reason", a.Reason)
	}
	r.sendProgress(progress, groupUpdate(groups, len(anomalies)))

	return &snapshot{tracks: tracks, playlists: playlists, groups: groups, anomalies: anomalies}, nil
}

func (r *Reconciler) fetchPlaylists(ctx context.Context, progress chan<- ProgressUpdate, refresh bool) (map[string]models.PlaylistSummary, error) {
	r.sendProgress(progress, fetchPlaylistsUpdate(refresh))
	playlists, err := r.catalog.Playlists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlists: %w", err)
	}
	r.logger.Debug("fetched playlists", "count", len(playlists), "refresh", refresh)
	return models.IndexPlaylists(playlists), nil
}

func playlistNamesByID(playlists map[string]models.PlaylistSummary) map[string]string {
	return lo.MapEntries(playlists, func(name string, p models.PlaylistSummary) (string, string) {
		return p.ID, name
	})
}

// Plan computes the changes a run would make. Nothing is created or appended.
func (r *Reconciler) Plan(ctx context.Context, progress chan<- ProgressUpdate) (*Plan, error) {
	snap, err := r.load(ctx, progress)
	if err != nil {
		return nil, err
	}

	toCreate := PlanCreations(snap.groups.Periods(), snap.playlists, r.opts.Namer)
	created := make(map[string]bool, len(toCreate))
	for _, p := range toCreate {
		created[r.opts.Namer.Name(p)] = true
	}

	actions, failures := PlanAppends(ctx, snap.groups, snap.playlists, created, r.opts.Namer,
		r.fetchTrackIDs(progress, playlistNamesByID(snap.playlists)))

	plan := &Plan{
		TracksScanned: len(snap.tracks),
		Groups:        snap.groups,
		ToCreate:      toCreate,
		ToAppend:      actions,
		Anomalies:     snap.anomalies,
		Failures:      failures,
	}

	if n := len(failures); n > 0 && shared.IsAuthorizationFailure(failures[n-1]) {
		return plan, failures[n-1].Err
	}
	return plan, nil
}

// run carries the mutable state of one Run.
type run struct {
	report   *models.RunReport
	outcomes map[models.PeriodKey]*models.PeriodOutcome
	failed   map[models.PeriodKey]bool
	done     map[models.PeriodKey]bool
}

// fail records perr as the period's outcome, keeping the playlist id and any tracks already added.
func (x *run) fail(perr *shared.PeriodError) {
	period := models.PeriodKey(perr.Period)
	outcome := failedOutcome(perr)
	if prev, ok := x.outcomes[period]; ok {
		outcome.PlaylistID = prev.PlaylistID
		outcome.Added = prev.Added
		outcome.AlreadyPresent = prev.AlreadyPresent
	}
	x.outcomes[period] = outcome
	x.failed[period] = true
}

// skip fails every period of groups that has not finished.
func (x *run) skip(groups Groups, namer Namer, op string, err error) {
	for _, grp := range groups {
		if x.done[grp.Period] || x.failed[grp.Period] {
			continue
		}
		x.fail(&shared.PeriodError{Period: string(grp.Period), Playlist: namer.Name(grp.Period), Op: op, Err: err})
	}
}

// abort records a fatal error and skips the remaining periods.
func (x *run) abort(groups Groups, namer Namer, err error) {
	x.report.Error = err.Error()
	x.skip(groups, namer, "skipped", err)
}

func (x *run) finish() *models.RunReport {
	x.report.Periods = sortedOutcomes(x.outcomes)
	x.report.FinishedAt = time.Now().UTC()
	return x.report
}

// Run reconciles the library with its monthly playlists.
//
// Saved tracks and playlists are fetched once, missing playlists are created, the listing is fetched
// again so created playlists carry their server ids, and new tracks are appended. Failures of a single
// period are recorded in the report and do not stop other periods. The returned error is non-nil only
// when the run aborted; the report is returned in every case.
func (r *Reconciler) Run(ctx context.Context, progress chan<- ProgressUpdate) (*models.RunReport, error) {
	x := &run{
		report:   models.NewRunReport(false),
		outcomes: make(map[models.PeriodKey]*models.PeriodOutcome),
		failed:   make(map[models.PeriodKey]bool),
		done:     make(map[models.PeriodKey]bool),
	}
	namer := r.opts.Namer

	snap, err := r.load(ctx, progress)
	if err != nil {
		x.report.Error = err.Error()
		return x.finish(), err
	}
	x.report.TracksScanned = len(snap.tracks)
	x.report.Anomalies = snap.anomalies

	toCreate := PlanCreations(snap.groups.Periods(), snap.playlists, namer)
	created := make(map[string]bool, len(toCreate))

	for i, period := range toCreate {
		name := namer.Name(period)
		r.sendProgress(progress, createPlaylistUpdate(i+1, len(toCreate), name))

		if err := r.wait(ctx); err != nil {
			x.abort(snap.groups, namer, err)
			return x.finish(), err
		}

		pl, err := r.catalog.CreatePlaylist(ctx, name, r.opts.Public, namer.Description(period))
		if err != nil {
			perr := &shared.PeriodError{Period: string(period), Playlist: name, Op: "create", Err: err}
			r.logger.Error("failed to create playlist", "period", period, "playlist", name, "error", err)
			r.sendProgress(progress, periodFailedUpdate(i+1, len(toCreate), CreatePlaylists, perr))
			x.fail(perr)
			if shared.IsAuthorizationFailure(err) {
				x.abort(snap.groups, namer, err)
				return x.finish(), err
			}
			continue
		}

		created[name] = true
		x.outcomes[period] = &models.PeriodOutcome{
			Period:     period,
			Playlist:   name,
			PlaylistID: pl.ID,
			Status:     models.StatusCreated,
		}
		r.logger.Info("created playlist", "period", period, "playlist", name, "id", pl.ID)
		r.sendProgress(progress, createdPlaylistUpdate(i+1, len(toCreate), pl))
	}

	// Periods whose creation failed have no playlist to append to.
	pending := snap.groups.Without(x.failed)

	existing := snap.playlists
	if len(created) > 0 {
		existing, err = r.fetchPlaylists(ctx, progress, true)
		if err != nil {
			r.logger.Error("failed to refresh playlists", "error", err)
			x.skip(pending, namer, "refresh", err)
			if shared.IsAuthorizationFailure(err) {
				x.report.Error = err.Error()
				return x.finish(), err
			}
			return x.finish(), nil
		}
	}

	actions, failures := PlanAppends(ctx, pending, existing, created, namer,
		r.fetchTrackIDs(progress, playlistNamesByID(existing)))
	for _, f := range failures {
		r.logger.Error("failed to plan appends", "period", f.Period, "playlist", f.Playlist, "error", f.Err)
		r.sendProgress(progress, periodFailedUpdate(0, 0, FetchPlaylistTracks, f))
		x.fail(f)
	}
	if n := len(failures); n > 0 && (shared.IsAuthorizationFailure(failures[n-1]) || ctx.Err() != nil) {
		x.abort(pending, namer, failures[n-1].Err)
		return x.finish(), failures[n-1].Err
	}

	for i, action := range actions {
		if err := r.apply(ctx, progress, x, i+1, len(actions), action); err != nil {
			x.abort(pending, namer, err)
			return x.finish(), err
		}
		x.done[action.Period] = true
	}

	report := x.finish()
	r.sendProgress(progress, doneUpdate(report))
	r.logger.Info("run complete", "created", report.Created(), "appended", report.Appended(), "failed", len(report.Failures()))
	return report, nil
}

// apply executes one append action. Only fatal errors are returned.
func (r *Reconciler) apply(ctx context.Context, progress chan<- ProgressUpdate, x *run, step, total int, action AppendAction) error {
	outcome, ok := x.outcomes[action.Period]
	if !ok {
		outcome = &models.PeriodOutcome{Period: action.Period, Playlist: action.Playlist, Status: models.StatusUnchanged}
		x.outcomes[action.Period] = outcome
	}
	outcome.AlreadyPresent = action.AlreadyPresent
	if outcome.PlaylistID == "" {
		outcome.PlaylistID = action.PlaylistID
	}

	if action.Empty() {
		r.sendProgress(progress, unchangedUpdate(step, total, action))
		return nil
	}

	if action.PlaylistID == "" {
		perr := &shared.PeriodError{
			Period: string(action.Period), Playlist: action.Playlist, Op: "append",
			Err: fmt.Errorf("%w: %s missing from playlist listing", shared.ErrPlaylistNotFound, action.Playlist),
		}
		r.sendProgress(progress, periodFailedUpdate(step, total, AppendTracks, perr))
		x.fail(perr)
		return nil
	}

	r.sendProgress(progress, appendUpdate(step, total, action))

	for _, batch := range lo.Chunk(action.TrackIDs, maxTracksPerAppend) {
		if err := r.wait(ctx); err != nil {
			return err
		}

		if err := r.catalog.AddTracks(ctx, action.PlaylistID, batch); err != nil {
			perr := &shared.PeriodError{Period: string(action.Period), Playlist: action.Playlist, Op: "append", Err: err}
			r.logger.Error("failed to append tracks", "period", action.Period, "playlist", action.Playlist, "added", outcome.Added, "error", err)
			r.sendProgress(progress, periodFailedUpdate(step, total, AppendTracks, perr))

			x.fail(perr)

			if shared.IsAuthorizationFailure(err) || errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
		outcome.Added += len(batch)
	}

	if outcome.Status != models.StatusCreated {
		outcome.Status = models.StatusAppended
	}
	r.logger.Info("appended tracks", "period", action.Period, "playlist", action.Playlist, "added", outcome.Added)
	return nil
}
