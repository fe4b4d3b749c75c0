package shared

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override config values.
const (
	EnvSpotifyID          = "SPOTIFY_ID"
	EnvSpotifySecret      = "SPOTIFY_SECRET"
	EnvSpotifyRedirectURI = "SPOTIFY_REDIRECT_URI"
	EnvDatabasePath       = "MONTHLIES_DB"
)

// LoadEnv loads variables from the given dotenv files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto config.
func ApplyEnv(config *Config) {
	if v := os.Getenv(EnvSpotifyID); v != "" {
		config.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvSpotifySecret); v != "" {
		config.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv(EnvSpotifyRedirectURI); v != "" {
		config.Credentials.Spotify.RedirectURI = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		config.Database.Path = v
	}
}
