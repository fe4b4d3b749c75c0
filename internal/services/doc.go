// Package services defines the [Catalog] interface the organizer runs against and implements it for Spotify.
//
// # Catalog Interface
//
// [Catalog] covers the five library operations a reconciliation needs: reading saved tracks, listing
// playlists, creating a playlist, reading a playlist's track ids and appending tracks.
// CurrentUser is used by `auth status`.
//
// # Spotify Implementation
//
// [SpotifyService] wraps github.com/zmb3/spotify/v2. Saved tracks and playlists are read in pages of 50,
// playlist items in pages of 100 and appends are chunked to 100 ids per request.
// Episodes and local files have no track id and are skipped when reading playlist items.
//
// The [oauth2.Client] refreshes expired access tokens with the refresh token. A callback registered with
// [SpotifyService.SetTokenRefreshCallback] receives each new token so it can be written back to config.toml.
//
// # OAuth Service Extension
//
// The [OAuthService] interface extends Catalog with the authorization code flow used by `auth login`.
//
// # Error Handling
//
// Provider errors are mapped onto sentinels from the shared package:
//   - [shared.ErrNotAuthenticated] : no token installed
//   - [shared.ErrTokenExpired] : 401 or a rejected refresh token, reauthorization needed
//   - [shared.ErrAuthFailed] : 403, usually a missing scope
//   - [shared.ErrRateLimited] : 429 after the client's own retries
//   - [shared.ErrServiceUnavailable] : 5xx responses
//   - [shared.ErrPlaylistNotFound] : 404 on a playlist
//   - [shared.ErrAPIRequest] : anything else
package services
