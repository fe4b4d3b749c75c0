// Spotify Web API implementation of [Catalog]
//
// Requests go through github.com/zmb3/spotify/v2; this file maps its types onto models and its errors onto shared sentinels.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	DefaultRedirectURI = "http://127.0.0.1:3000/callback"

	savedTracksPageSize   = 50
	playlistsPageSize     = 50
	playlistItemsPageSize = 100
	maxTracksPerRequest   = 100
)

// Scopes are the permissions requested during authorization.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopeUserReadPrivate,
}

// SpotifyService implements [Catalog] and [OAuthService] for the Spotify Web API.
// Uses [oauth2] for authentication with automatic token refresh.
type SpotifyService struct {
	config    *oauth2.Config
	token     *oauth2.Token
	client    *spotify.Client
	opts      []spotify.ClientOption
	onRefresh func(*oauth2.Token)
	user      *User
	mu        sync.Mutex
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// When credentials carry an access_token or refresh_token the service is authenticated immediately.
// Client options are passed through to [spotify.New] after the defaults.
func NewSpotifyService(credentials map[string]string, opts ...spotify.ClientOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}

	s := &SpotifyService{
		config: config,
		opts:   append([]spotify.ClientOption{spotify.WithRetry(true)}, opts...),
	}

	if token := tokenFromCredentials(credentials); token != nil {
		if err := s.OAuthenticate(context.Background(), token); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func tokenFromCredentials(credentials map[string]string) *oauth2.Token {
	access, refresh := credentials["access_token"], credentials["refresh_token"]
	if access == "" && refresh == "" {
		return nil
	}

	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    credentials["token_type"],
	}
	if exp, err := time.Parse(time.RFC3339, credentials["expiry"]); err == nil {
		token.Expiry = exp
	} else if access == "" {
		// Force a refresh on first use.
		token.Expiry = time.Unix(1, 0)
	}
	return token
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the OAuth2 configuration used for code exchange.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// SetTokenRefreshCallback registers fn to receive refreshed tokens so they can be persisted.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

func (s *SpotifyService) notifyRefresh(token *oauth2.Token) {
	s.mu.Lock()
	fn := s.onRefresh
	s.token = token
	s.mu.Unlock()

	if fn != nil {
		fn(token)
	}
}

// OAuthenticate installs an OAuth2 token. Expired tokens are refreshed on demand with the refresh token.
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return shared.ErrNotAuthenticated
	}

	source := &refreshableTokenSource{source: s.config.TokenSource(ctx, token), callback: s.notifyRefresh}
	httpClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.client = spotify.New(httpClient, s.opts...)
	s.user = nil
	return nil
}

// Token returns the current token, or nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *SpotifyService) api() (*spotify.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, fmt.Errorf("%w: run 'monthlies auth login' first", shared.ErrNotAuthenticated)
	}
	return s.client, nil
}

// CurrentUser retrieves the authenticated user's profile. The result is cached per token.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*User, error) {
	s.mu.Lock()
	cached := s.user
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	client, err := s.api()
	if err != nil {
		return nil, err
	}

	profile, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, mapError("current user", err)
	}

	user := &User{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Country:     profile.Country,
		Product:     profile.Product,
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

// SavedTracks retrieves the user's saved tracks in pages of 50.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit int) ([]models.TrackRecord, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	var records []models.TrackRecord
	for offset := 0; ; offset += savedTracksPageSize {
		pageSize := savedTracksPageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-len(records))
		}

		page, err := client.CurrentUsersTracks(ctx, spotify.Limit(pageSize), spotify.Offset(offset))
		if err != nil {
			return nil, mapError("saved tracks", err)
		}

		for _, saved := range page.Tracks {
			records = append(records, toTrackRecord(saved))
		}

		if page.Next == "" || len(page.Tracks) == 0 || (limit > 0 && len(records) >= limit) {
			break
		}
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func toTrackRecord(saved spotify.SavedTrack) models.TrackRecord {
	record := models.TrackRecord{
		ID:      string(saved.ID),
		URI:     string(saved.URI),
		Title:   saved.Name,
		AddedAt: saved.AddedAt,
	}
	if len(saved.Artists) > 0 {
		record.Artist = saved.Artists[0].Name
	}
	return record
}

// Playlists retrieves every playlist in the user's library in pages of 50.
// Playlists owned by another user are marked Followed.
func (s *SpotifyService) Playlists(ctx context.Context) ([]models.PlaylistSummary, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	var playlists []models.PlaylistSummary
	for offset := 0; ; offset += playlistsPageSize {
		page, err := client.CurrentUsersPlaylists(ctx, spotify.Limit(playlistsPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, mapError("playlists", err)
		}

		for _, p := range page.Playlists {
			playlists = append(playlists, toPlaylistSummary(p, user.ID))
		}

		if page.Next == "" || len(page.Playlists) == 0 {
			break
		}
	}

	return playlists, nil
}

func toPlaylistSummary(p spotify.SimplePlaylist, userID string) models.PlaylistSummary {
	return models.PlaylistSummary{
		ID:         string(p.ID),
		Name:       p.Name,
		URI:        string(p.URI),
		OwnerID:    p.Owner.ID,
		Followed:   p.Owner.ID != userID,
		Public:     p.IsPublic,
		TrackCount: int(p.Tracks.Total),
	}
}

// CreatePlaylist creates a new, empty playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name string, public bool, description string) (*models.PlaylistSummary, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	created, err := client.CreatePlaylistForUser(ctx, user.ID, name, description, public, false)
	if err != nil {
		return nil, mapError("create playlist "+name, err)
	}

	return &models.PlaylistSummary{
		ID:      string(created.ID),
		Name:    created.Name,
		URI:     string(created.URI),
		OwnerID: user.ID,
		Public:  public,
	}, nil
}

// PlaylistTrackIDs returns the ids of every track in a playlist. Episodes and local files are skipped.
func (s *SpotifyService) PlaylistTrackIDs(ctx context.Context, playlistID string) (map[string]struct{}, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	for offset := 0; ; offset += playlistItemsPageSize {
		page, err := client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(playlistItemsPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, mapError("playlist items "+playlistID, err)
		}

		for _, item := range page.Items {
			if item.IsLocal || item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			ids[string(item.Track.Track.ID)] = struct{}{}
		}

		if page.Next == "" || len(page.Items) == 0 {
			break
		}
	}

	return ids, nil
}

// AddTracks appends tracks to a playlist, at most 100 per request.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	client, err := s.api()
	if err != nil {
		return err
	}

	ids := lo.Map(trackIDs, func(id string, _ int) spotify.ID { return spotify.ID(id) })
	for i, batch := range lo.Chunk(ids, maxTracksPerRequest) {
		if _, err := client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...); err != nil {
			start := i * maxTracksPerRequest
			return mapError(fmt.Sprintf("add tracks %d-%d to %s", start+1, start+len(batch), playlistID), err)
		}
	}

	return nil
}

// mapError translates client errors onto shared sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %s: %v", shared.ErrTokenExpired, op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", shared.ErrTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := 0
	var apiErr spotify.Error
	var apiErrPtr *spotify.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Status
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %v", shared.ErrTokenExpired, op, err)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %v", shared.ErrForbidden, op, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %v", shared.ErrPlaylistNotFound, op, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %v", shared.ErrRateLimited, op, err)
	case status >= 500:
		return fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
	}
}
