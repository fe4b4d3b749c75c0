package services

import (
	"context"

	"github.com/desertthunder/monthlies/internal/models"
	"golang.org/x/oauth2"
)

// Catalog defines the catalog operations the playlist organizer depends on.
type Catalog interface {
	// SavedTracks returns the user's saved tracks, newest first.
	// A limit of zero or less fetches every page.
	SavedTracks(ctx context.Context, limit int) ([]models.TrackRecord, error)

	// Playlists returns every playlist in the user's library.
	Playlists(ctx context.Context) ([]models.PlaylistSummary, error)

	// CreatePlaylist creates an empty playlist owned by the current user.
	CreatePlaylist(ctx context.Context, name string, public bool, description string) (*models.PlaylistSummary, error)

	// PlaylistTrackIDs returns the set of track ids currently in a playlist.
	PlaylistTrackIDs(ctx context.Context, playlistID string) (map[string]struct{}, error)

	// AddTracks appends tracks to a playlist in batches.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// CurrentUser returns the profile of the authenticated user.
	CurrentUser(ctx context.Context) (*User, error)

	// Name returns the name of the catalog (e.g., "Spotify")
	Name() string
}

// OAuthService extends Catalog for providers authorized with an OAuth2 authorization code flow.
type OAuthService interface {
	Catalog

	// GetAuthURL returns the URL the user visits to grant access.
	GetAuthURL(state string) string

	// GetOAuthConfig exposes the OAuth2 configuration for the callback handler.
	GetOAuthConfig() *oauth2.Config

	// OAuthenticate installs token as the credential for subsequent requests.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error

	// SetTokenRefreshCallback registers fn to be called whenever the access token is refreshed.
	SetTokenRefreshCallback(fn func(*oauth2.Token))
}

// User is the authenticated catalog account.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country,omitempty"`
	Product     string `json:"product,omitempty"`
}
