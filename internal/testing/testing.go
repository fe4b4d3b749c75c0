// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/services"
)

// FakePlaylist is a playlist held by [FakeCatalog].
type FakePlaylist struct {
	Summary  models.PlaylistSummary
	TrackIDs []string
}

type failure struct {
	err error
	nth int // zero fails every call
}

// FakeCatalog is an in-memory, stateful test double for [services.Catalog].
//
// Calls are recorded in order as "op:target" strings. Errors are injected per call key, where the key is
// "saved", "playlists", "user", "create:<name>", "fetch:<playlist id>" or "add:<playlist id>".
type FakeCatalog struct {
	mu        sync.Mutex
	tracks    []models.TrackRecord
	playlists []*FakePlaylist
	user      services.User
	calls     []string
	counts    map[string]int
	failures  map[string]failure
	nextID    int
}

// NewFakeCatalog returns a catalog holding tracks as the user's saved library.
func NewFakeCatalog(tracks ...models.TrackRecord) *FakeCatalog {
	return &FakeCatalog{
		tracks:   tracks,
		user:     services.User{ID: "fake-user", DisplayName: "Fake User"},
		counts:   make(map[string]int),
		failures: make(map[string]failure),
	}
}

// Track builds a saved track record.
func Track(id, addedAt string) models.TrackRecord {
	return models.TrackRecord{
		ID:      id,
		URI:     "spotify:track:" + id,
		Title:   "Song " + id,
		Artist:  "Artist " + id,
		AddedAt: addedAt,
	}
}

// AddPlaylist seeds a playlist and returns its id.
func (f *FakeCatalog) AddPlaylist(name string, trackIDs ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addPlaylist(name, true, trackIDs).Summary.ID
}

// AddFollowedPlaylist seeds a playlist owned by another user and returns its id.
func (f *FakeCatalog) AddFollowedPlaylist(name, owner string, trackIDs ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl := f.addPlaylist(name, true, trackIDs)
	pl.Summary.OwnerID = owner
	pl.Summary.Followed = true
	return pl.Summary.ID
}

func (f *FakeCatalog) addPlaylist(name string, public bool, trackIDs []string) *FakePlaylist {
	f.nextID++
	pl := &FakePlaylist{
		Summary: models.PlaylistSummary{
			ID:      fmt.Sprintf("pl%d", f.nextID),
			Name:    name,
			URI:     fmt.Sprintf("spotify:playlist:pl%d", f.nextID),
			OwnerID: f.user.ID,
			Public:  public,
		},
		TrackIDs: append([]string(nil), trackIDs...),
	}
	f.playlists = append(f.playlists, pl)
	return pl
}

// Playlist returns a copy of the first playlist named name.
func (f *FakeCatalog) Playlist(name string) (FakePlaylist, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pl := range f.playlists {
		if pl.Summary.Name == name {
			return FakePlaylist{Summary: pl.Summary, TrackIDs: append([]string(nil), pl.TrackIDs...)}, true
		}
	}
	return FakePlaylist{}, false
}

// PlaylistCount returns the number of playlists in the library.
func (f *FakeCatalog) PlaylistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playlists)
}

// Fail makes every call to key return err.
func (f *FakeCatalog) Fail(key string, err error) {
	f.FailNth(key, 0, err)
}

// FailNth makes only the nth call (1-based) to key return err.
func (f *FakeCatalog) FailNth(key string, nth int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = failure{err: err, nth: nth}
}

// Calls returns the recorded calls.
func (f *FakeCatalog) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts recorded calls starting with prefix.
func (f *FakeCatalog) CallCount(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// record logs a call and returns the injected error for key, if any. Callers hold f.mu.
func (f *FakeCatalog) record(key, call string) error {
	f.calls = append(f.calls, call)
	f.counts[key]++
	if fail, ok := f.failures[key]; ok && (fail.nth == 0 || fail.nth == f.counts[key]) {
		return fail.err
	}
	return nil
}

func (f *FakeCatalog) find(id string) *FakePlaylist {
	for _, pl := range f.playlists {
		if pl.Summary.ID == id {
			return pl
		}
	}
	return nil
}

func (f *FakeCatalog) Name() string { return "fake" }

func (f *FakeCatalog) SavedTracks(ctx context.Context, limit int) ([]models.TrackRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("saved", "saved"); err != nil {
		return nil, err
	}
	tracks := append([]models.TrackRecord(nil), f.tracks...)
	if limit > 0 && limit < len(tracks) {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func (f *FakeCatalog) Playlists(ctx context.Context) ([]models.PlaylistSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("playlists", "playlists"); err != nil {
		return nil, err
	}
	out := make([]models.PlaylistSummary, 0, len(f.playlists))
	for _, pl := range f.playlists {
		s := pl.Summary
		s.TrackCount = len(pl.TrackIDs)
		out = append(out, s)
	}
	return out, nil
}

func (f *FakeCatalog) CreatePlaylist(ctx context.Context, name string, public bool, description string) (*models.PlaylistSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create:"+name, "create:"+name); err != nil {
		return nil, err
	}
	pl := f.addPlaylist(name, public, nil)
	s := pl.Summary
	return &s, nil
}

func (f *FakeCatalog) PlaylistTrackIDs(ctx context.Context, playlistID string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("fetch:"+playlistID, "fetch:"+playlistID); err != nil {
		return nil, err
	}
	pl := f.find(playlistID)
	if pl == nil {
		return nil, fmt.Errorf("playlist %s not found", playlistID)
	}
	ids := make(map[string]struct{}, len(pl.TrackIDs))
	for _, id := range pl.TrackIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *FakeCatalog) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add:"+playlistID, fmt.Sprintf("add:%s:%d", playlistID, len(trackIDs))); err != nil {
		return err
	}
	if len(trackIDs) > 100 {
		return fmt.Errorf("too many tracks in one request: %d", len(trackIDs))
	}
	pl := f.find(playlistID)
	if pl == nil {
		return fmt.Errorf("playlist %s not found", playlistID)
	}
	pl.TrackIDs = append(pl.TrackIDs, trackIDs...)
	return nil
}

func (f *FakeCatalog) CurrentUser(ctx context.Context) (*services.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("user", "user"); err != nil {
		return nil, err
	}
	u := f.user
	return &u, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
