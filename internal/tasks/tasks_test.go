package tasks

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	tu "github.com/desertthunder/monthlies/internal/testing"
)

func newReconciler(catalog *tu.FakeCatalog) *Reconciler {
	return NewReconciler(catalog, Options{Namer: DefaultNamer(), Public: true})
}

// threeTracks is a library with a, b saved in January 2023 and c in February 2023.
func threeTracks() *tu.FakeCatalog {
	return tu.NewFakeCatalog(
		tu.Track("a", "2023-01-05T10:00:00Z"),
		tu.Track("b", "2023-01-20T10:00:00Z"),
		tu.Track("c", "2023-02-01T10:00:00Z"),
	)
}

func TestReconcilerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("empty library", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Periods) != 0 || catalog.PlaylistCount() != 0 {
			t.Errorf("expected nothing to happen, got %+v", report.Periods)
		}
		if want := []string{"saved", "playlists"}; !reflect.DeepEqual(catalog.Calls(), want) {
			t.Errorf("calls = %v, want %v", catalog.Calls(), want)
		}
	})

	t.Run("creates and fills missing playlists", func(t *testing.T) {
		catalog := threeTracks()

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{
			"saved",
			"playlists",
			"create:202301-generated",
			"create:202302-generated",
			"playlists",
			"add:pl1:2",
			"add:pl2:1",
		}
		if got := catalog.Calls(); !reflect.DeepEqual(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}

		jan, ok := catalog.Playlist("202301-generated")
		if !ok || !reflect.DeepEqual(jan.TrackIDs, []string{"a", "b"}) {
			t.Errorf("January playlist = %+v", jan)
		}
		feb, ok := catalog.Playlist("202302-generated")
		if !ok || !reflect.DeepEqual(feb.TrackIDs, []string{"c"}) {
			t.Errorf("February playlist = %+v", feb)
		}
		if !jan.Summary.Public {
			t.Error("expected created playlist to be public")
		}

		if report.DryRun || report.TracksScanned != 3 || report.Created() != 2 || report.Appended() != 3 {
			t.Errorf("unexpected report totals %+v", report)
		}
		if o := report.Outcome("202301"); o == nil || o.Status != models.StatusCreated || o.Added != 2 || o.PlaylistID != "pl1" {
			t.Errorf("unexpected January outcome %+v", o)
		}
	})

	t.Run("appends only missing tracks", func(t *testing.T) {
		catalog := threeTracks()
		catalog.AddPlaylist("202301-generated", "a")
		catalog.AddPlaylist("202302-generated", "c")

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if catalog.CallCount("create:") != 0 {
			t.Error("expected no playlists to be created")
		}
		if catalog.CallCount("playlists") != 1 {
			t.Error("listing should not be refreshed when nothing was created")
		}
		jan, _ := catalog.Playlist("202301-generated")
		if !reflect.DeepEqual(jan.TrackIDs, []string{"a", "b"}) {
			t.Errorf("January playlist = %v, want [a b]", jan.TrackIDs)
		}

		jo := report.Outcome("202301")
		if jo.Status != models.StatusAppended || jo.Added != 1 || jo.AlreadyPresent != 1 {
			t.Errorf("unexpected January outcome %+v", jo)
		}
		if fo := report.Outcome("202302"); fo.Status != models.StatusUnchanged || fo.Added != 0 {
			t.Errorf("unexpected February outcome %+v", fo)
		}
	})

	t.Run("complete playlists are left alone", func(t *testing.T) {
		catalog := tu.NewFakeCatalog(
			tu.Track("a", "2023-01-05T10:00:00Z"),
			tu.Track("b", "2023-01-20T10:00:00Z"),
		)
		catalog.AddPlaylist("202301-generated", "a", "b")

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.CallCount("add:") != 0 || catalog.CallCount("create:") != 0 {
			t.Errorf("expected no mutations, got %v", catalog.Calls())
		}
		if report.Outcome("202301").Status != models.StatusUnchanged {
			t.Errorf("unexpected outcome %+v", report.Outcome("202301"))
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		catalog := threeTracks()
		r := newReconciler(catalog)

		if _, err := r.Run(ctx, nil); err != nil {
			t.Fatalf("first run: %v", err)
		}
		before := catalog.CallCount("add:")

		report, err := r.Run(ctx, nil)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if catalog.CallCount("add:") != before || catalog.PlaylistCount() != 2 {
			t.Errorf("second run mutated the library: %v", catalog.Calls())
		}
		if report.Created() != 0 || report.Appended() != 0 || report.HasFailures() {
			t.Errorf("unexpected second report %+v", report)
		}
		for _, o := range report.Periods {
			if o.Status != models.StatusUnchanged {
				t.Errorf("period %s status = %s, want unchanged", o.Period, o.Status)
			}
		}
	})

	t.Run("appends are chunked", func(t *testing.T) {
		var tracks []models.TrackRecord
		for i := range 250 {
			tracks = append(tracks, tu.Track(fmt.Sprintf("t%03d", i), "2024-03-10T00:00:00Z"))
		}
		catalog := tu.NewFakeCatalog(tracks...)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var adds []string
		for _, c := range catalog.Calls() {
			if len(c) > 4 && c[:4] == "add:" {
				adds = append(adds, c)
			}
		}
		if want := []string{"add:pl1:100", "add:pl1:100", "add:pl1:50"}; !reflect.DeepEqual(adds, want) {
			t.Errorf("adds = %v, want %v", adds, want)
		}
		pl, _ := catalog.Playlist("202403-generated")
		if len(pl.TrackIDs) != 250 || report.Appended() != 250 {
			t.Errorf("expected 250 tracks, playlist has %d, report has %d", len(pl.TrackIDs), report.Appended())
		}
	})

	t.Run("colliding names share one playlist", func(t *testing.T) {
		catalog := threeTracks()
		r := NewReconciler(catalog, Options{Namer: Namer{NameTemplate: "Saved Tracks"}})

		report, err := r.Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.CallCount("create:") != 1 || catalog.PlaylistCount() != 1 {
			t.Errorf("expected a single playlist, calls %v", catalog.Calls())
		}
		pl, _ := catalog.Playlist("Saved Tracks")
		if !reflect.DeepEqual(pl.TrackIDs, []string{"a", "b", "c"}) {
			t.Errorf("merged playlist = %v", pl.TrackIDs)
		}
		if report.Appended() != 3 || report.HasFailures() {
			t.Errorf("unexpected report %+v", report.Periods)
		}
	})

	t.Run("create failure is isolated", func(t *testing.T) {
		catalog := threeTracks()
		catalog.Fail("create:202301-generated", shared.ErrRateLimited)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		jan := report.Outcome("202301")
		if jan.Status != models.StatusFailed || jan.Op != "create" {
			t.Errorf("unexpected January outcome %+v", jan)
		}
		if _, ok := catalog.Playlist("202301-generated"); ok {
			t.Error("failed playlist should not exist")
		}
		feb, _ := catalog.Playlist("202302-generated")
		if !reflect.DeepEqual(feb.TrackIDs, []string{"c"}) {
			t.Errorf("February playlist = %v", feb.TrackIDs)
		}
		if len(report.Failures()) != 1 || report.Error != "" {
			t.Errorf("unexpected failures %+v", report.Failures())
		}
	})

	t.Run("append failure is isolated", func(t *testing.T) {
		catalog := threeTracks()
		janID := catalog.AddPlaylist("202301-generated")
		catalog.AddPlaylist("202302-generated")
		catalog.Fail("add:"+janID, shared.ErrServiceUnavailable)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		jan := report.Outcome("202301")
		if jan.Status != models.StatusFailed || jan.Op != "append" || jan.PlaylistID != janID {
			t.Errorf("unexpected January outcome %+v", jan)
		}
		if feb := report.Outcome("202302"); feb.Status != models.StatusAppended || feb.Added != 1 {
			t.Errorf("unexpected February outcome %+v", feb)
		}
		if !jan.Retryable || report.Retryable() != 1 {
			t.Errorf("service outage should be retryable: %+v", jan)
		}
	})

	t.Run("forbidden playlist is isolated", func(t *testing.T) {
		catalog := threeTracks()
		janID := catalog.AddPlaylist("202301-generated")
		catalog.AddPlaylist("202302-generated")
		catalog.Fail("add:"+janID, fmt.Errorf("%w: add tracks 1-2 to %s: 403", shared.ErrForbidden, janID))

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("a forbidden playlist should not abort the run: %v", err)
		}
		if report.Error != "" {
			t.Errorf("report error = %q", report.Error)
		}

		jan := report.Outcome("202301")
		if jan.Status != models.StatusFailed || jan.Op != "append" || jan.Retryable {
			t.Errorf("unexpected January outcome %+v", jan)
		}
		if feb := report.Outcome("202302"); feb.Status != models.StatusAppended || feb.Added != 1 {
			t.Errorf("unexpected February outcome %+v", feb)
		}
	})

	t.Run("followed playlist with the same name", func(t *testing.T) {
		catalog := threeTracks()
		followedID := catalog.AddFollowedPlaylist("202301-generated", "someone-else", "x")

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.CallCount("create:202301-generated") != 1 {
			t.Errorf("expected the user's own playlist to be created, calls %v", catalog.Calls())
		}
		if catalog.CallCount("fetch:"+followedID) != 0 || catalog.CallCount("add:"+followedID) != 0 {
			t.Errorf("followed playlist was touched: %v", catalog.Calls())
		}

		jan := report.Outcome("202301")
		if jan.Status != models.StatusCreated || jan.PlaylistID == followedID || jan.Added != 2 {
			t.Errorf("unexpected January outcome %+v", jan)
		}
	})

	t.Run("fetch failure is isolated", func(t *testing.T) {
		catalog := threeTracks()
		janID := catalog.AddPlaylist("202301-generated")
		catalog.AddPlaylist("202302-generated")
		catalog.Fail("fetch:"+janID, shared.ErrServiceUnavailable)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if jan := report.Outcome("202301"); jan.Status != models.StatusFailed || jan.Op != "fetch" {
			t.Errorf("unexpected January outcome %+v", jan)
		}
		if catalog.CallCount("add:"+janID) != 0 {
			t.Error("tracks should not be appended to a playlist that could not be read")
		}
		if report.Outcome("202302").Failed() {
			t.Errorf("February should not fail: %+v", report.Outcome("202302"))
		}
	})

	t.Run("authorization failure aborts", func(t *testing.T) {
		catalog := tu.NewFakeCatalog(
			tu.Track("a", "2023-01-05T10:00:00Z"),
			tu.Track("b", "2023-02-05T10:00:00Z"),
			tu.Track("c", "2023-03-05T10:00:00Z"),
		)
		catalog.Fail("create:202302-generated", shared.ErrTokenExpired)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected token expired, got %v", err)
		}
		if report.Error == "" {
			t.Error("expected report error to be set")
		}
		if catalog.CallCount("create:202303") != 0 || catalog.CallCount("add:") != 0 {
			t.Errorf("run continued after authorization failure: %v", catalog.Calls())
		}
		if len(report.Failures()) != 3 {
			t.Fatalf("expected every period to fail, got %+v", report.Periods)
		}
		if op := report.Outcome("202302").Op; op != "create" {
			t.Errorf("failing period op = %q, want create", op)
		}
		if op := report.Outcome("202303").Op; op != "skipped" {
			t.Errorf("remaining period op = %q, want skipped", op)
		}
		if id := report.Outcome("202301").PlaylistID; id == "" {
			t.Error("created playlist id should be kept on skipped period")
		}
	})

	t.Run("refresh failure skips appends", func(t *testing.T) {
		catalog := threeTracks()
		catalog.AddPlaylist("202302-generated")
		catalog.FailNth("playlists", 2, shared.ErrServiceUnavailable)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.CallCount("add:") != 0 {
			t.Errorf("expected no appends, got %v", catalog.Calls())
		}
		for _, o := range report.Periods {
			if o.Status != models.StatusFailed || o.Op != "refresh" {
				t.Errorf("period %s = %+v, want refresh failure", o.Period, o)
			}
		}
	})

	t.Run("saved tracks failure", func(t *testing.T) {
		catalog := threeTracks()
		catalog.Fail("saved", shared.ErrTokenExpired)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected token expired, got %v", err)
		}
		if report == nil || report.Error == "" || len(report.Periods) != 0 {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("malformed timestamps are reported", func(t *testing.T) {
		catalog := tu.NewFakeCatalog(
			tu.Track("a", "2023-01-05T10:00:00Z"),
			tu.Track("x", "yesterday"),
		)

		report, err := newReconciler(catalog).Run(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.TracksScanned != 2 || len(report.Anomalies) != 1 || report.Anomalies[0].TrackID != "x" {
			t.Errorf("unexpected anomalies %+v", report.Anomalies)
		}
		if report.Appended() != 1 {
			t.Errorf("expected the valid track to be appended, got %d", report.Appended())
		}
	})

	t.Run("timezone", func(t *testing.T) {
		catalog := tu.NewFakeCatalog(tu.Track("a", "2023-01-31T23:30:00Z"))
		r := NewReconciler(catalog, Options{Location: time.FixedZone("CET", 60*60)})

		if _, err := r.Run(ctx, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := catalog.Playlist("202302-generated"); !ok {
			t.Errorf("expected a February playlist, calls %v", catalog.Calls())
		}
	})
}

func TestReconcilerPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("does not mutate", func(t *testing.T) {
		catalog := threeTracks()
		catalog.AddPlaylist("202301-generated", "a")

		plan, err := newReconciler(catalog).Plan(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.CallCount("create:") != 0 || catalog.CallCount("add:") != 0 {
			t.Errorf("plan mutated the library: %v", catalog.Calls())
		}
		if !reflect.DeepEqual(plan.ToCreate, []models.PeriodKey{"202302"}) {
			t.Errorf("ToCreate = %v", plan.ToCreate)
		}
		if _, ok := plan.AppendsFor("202301")["b"]; !ok || len(plan.AppendsFor("202301")) != 1 {
			t.Errorf("January appends = %v, want {b}", plan.AppendsFor("202301"))
		}
		if plan.TotalAppends() != 2 {
			t.Errorf("TotalAppends() = %d, want 2", plan.TotalAppends())
		}
	})

	t.Run("matches run", func(t *testing.T) {
		catalog := threeTracks()
		catalog.AddPlaylist("202301-generated", "a")
		r := newReconciler(catalog)

		plan, err := r.Plan(ctx, nil)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		report, err := r.Run(ctx, nil)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if plan.TotalAppends() != report.Appended() {
			t.Errorf("plan appends %d, run appended %d", plan.TotalAppends(), report.Appended())
		}
	})

	t.Run("authorization failure", func(t *testing.T) {
		catalog := threeTracks()
		janID := catalog.AddPlaylist("202301-generated")
		catalog.Fail("fetch:"+janID, shared.ErrAuthFailed)

		plan, err := newReconciler(catalog).Plan(ctx, nil)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected auth failure, got %v", err)
		}
		if plan == nil || len(plan.Failures) != 1 {
			t.Errorf("expected partial plan with one failure, got %+v", plan)
		}
	})

	t.Run("playlist listing failure", func(t *testing.T) {
		catalog := threeTracks()
		catalog.Fail("playlists", shared.ErrServiceUnavailable)

		if _, err := newReconciler(catalog).Plan(ctx, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service unavailable, got %v", err)
		}
	})
}

func TestProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("does not block", func(t *testing.T) {
		catalog := threeTracks()
		progress := make(chan ProgressUpdate)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = newReconciler(catalog).Run(ctx, progress)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("run blocked on an unread progress channel")
		}
	})

	t.Run("phases", func(t *testing.T) {
		catalog := threeTracks()
		progress := make(chan ProgressUpdate, 64)

		if _, err := newReconciler(catalog).Run(ctx, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != FetchTracks || phases[len(phases)-1] != Done {
			t.Errorf("unexpected phases %v", phases)
		}

		seen := map[Phase]bool{}
		for _, p := range phases {
			seen[p] = true
		}
		for _, p := range []Phase{FetchPlaylists, GroupTracks, CreatePlaylists, RefreshPlaylists, AppendTracks} {
			if !seen[p] {
				t.Errorf("missing phase %s", p)
			}
		}
	})

	t.Run("failures are flagged", func(t *testing.T) {
		catalog := threeTracks()
		catalog.Fail("create:202302-generated", shared.ErrRateLimited)
		progress := make(chan ProgressUpdate, 64)

		if _, err := newReconciler(catalog).Run(ctx, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		failed := 0
		var last ProgressUpdate
		for u := range progress {
			if u.Failed && u.Phase == CreatePlaylists {
				failed++
			}
			last = u
		}
		if failed != 1 {
			t.Errorf("expected one failed create update, got %d", failed)
		}
		if !last.Failed {
			t.Error("done update should be flagged when the run has failures")
		}
	})
}

func TestOptionsFromConfig(t *testing.T) {
	tc := []struct {
		name    string
		cfg     shared.OrganizerConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg: shared.OrganizerConfig{
				NameTemplate:        "{period}-generated",
				DescriptionTemplate: "Tracks saved in {period}",
				Public:              true,
				Timezone:            "UTC",
				RequestsPerSecond:   5,
			},
		},
		{name: "missing placeholder", cfg: shared.OrganizerConfig{NameTemplate: "monthly"}, wantErr: true},
		{name: "negative limit", cfg: shared.OrganizerConfig{NameTemplate: "{period}", SavedTracksLimit: -1}, wantErr: true},
		{name: "bad timezone", cfg: shared.OrganizerConfig{NameTemplate: "{period}", Timezone: "Mars/Olympus_Mons"}, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := OptionsFromConfig(tt.cfg, nil)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected invalid config, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.Location != time.UTC || !opts.Public || opts.RequestsPerSecond != 5 {
				t.Errorf("unexpected options %+v", opts)
			}
			if got := opts.Namer.Name("202301"); got != "202301-generated" {
				t.Errorf("Namer.Name() = %q", got)
			}
		})
	}
}
