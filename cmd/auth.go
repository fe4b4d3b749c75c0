package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/monthlies/internal/server"
	"github.com/desertthunder/monthlies/internal/services"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local callback server, opens the browser for user authorization, and saves the issued tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	catalog, err := r.catalog()
	if err != nil {
		return err
	}

	svc, ok := catalog.(services.OAuthService)
	if !ok {
		return fmt.Errorf("%w: %s does not support OAuth", shared.ErrServiceUnavailable, catalog.Name())
	}

	token, err := r.doOAuth(ctx, svc, "authorization")
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}
	if err := svc.OAuthenticate(ctx, token); err != nil {
		return fmt.Errorf("failed to authenticate with new tokens: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configFile())
	r.writePlain("You can now use: monthlies organize plan\n")
	return nil
}

// AuthStatus reports whether stored credentials work by fetching the current user.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	r.writePlainHeader("Spotify")

	if r.spotify == nil && !creds.HasClient() {
		r.writePlain("Client:        ✗ not configured\n")
		return nil
	}
	r.writePlain("Client:        ✓ configured\n")

	if r.spotify == nil && creds.Token() == nil {
		r.writePlain("Authorization: ✗ not authorized (run: monthlies auth login)\n")
		return nil
	}

	catalog, err := r.catalog()
	if err != nil {
		return err
	}

	user, err := catalog.CurrentUser(ctx)
	if err != nil {
		if shared.IsAuthorizationFailure(err) {
			r.writePlain("Authorization: ✗ %v (run: monthlies auth login)\n", err)
			return nil
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("Authorization: ✓ authorized\n")
	r.writePlain("User:          %s (%s)\n", user.DisplayName, user.ID)
	if !creds.Expiry.IsZero() {
		r.writePlain("Token expiry:  %s\n", creds.Expiry.Local().Format(time.RFC1123))
	}
	return nil
}

// AuthLogout removes stored tokens from the config file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	spotify := &r.config.Credentials.Spotify
	if spotify.Token() == nil {
		return r.writePlain("No stored tokens\n")
	}

	spotify.AccessToken = ""
	spotify.RefreshToken = ""
	spotify.TokenType = ""
	spotify.Expiry = time.Time{}

	if err := shared.SaveConfig(r.configFile(), r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.spotify = nil
	return r.writePlain("✓ Tokens removed from %s\n", r.configFile())
}

// doOAuth runs the shared authorization flow used by login and reauthorization.
func (r *Runner) doOAuth(ctx context.Context, srv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := srv.GetAuthURL(state)
	handler := server.NewOAuthHandler(srv.GetOAuthConfig(), state)
	callback := server.NewCallbackServer(r.config.Server.Addr(), handler, r.logger)

	if err := callback.Start(); err != nil {
		return nil, err
	}

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	token, err := callback.Wait(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", prefix, err)
	}
	return token, nil
}

// handleSpotifyAuthError checks if an error is a token expiration error and triggers reauthorization if needed.
//
// The first return value reports whether reauthorization was attempted.
func (r *Runner) handleSpotifyAuthError(ctx context.Context, err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, shared.ErrTokenExpired) && !errors.Is(err, shared.ErrNotAuthenticated) {
		return false, err
	}

	svc, ok := r.spotify.(services.OAuthService)
	if !ok {
		return true, fmt.Errorf("spotify service does not support reauthorization: %w", err)
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...")

	token, reauthErr := r.doOAuth(ctx, svc, "reauthorization")
	if reauthErr != nil {
		return true, fmt.Errorf("reauthorization failed: %w", reauthErr)
	}

	if saveErr := r.saveTokens(token); saveErr != nil {
		return true, saveErr
	}

	if authErr := svc.OAuthenticate(ctx, token); authErr != nil {
		return true, fmt.Errorf("failed to authenticate with new tokens: %w", authErr)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...")
	return true, nil
}

// withReauth runs fn, reauthorizing once and retrying when it fails on an expired token.
func withReauth[T any](ctx context.Context, r *Runner, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}

	reauthed, authErr := r.handleSpotifyAuthError(ctx, err)
	if !reauthed {
		return result, err
	}
	if authErr != nil {
		return result, authErr
	}
	return fn()
}
