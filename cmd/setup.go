package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configFile()

	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	config, err := loadConfig(path)
	if err != nil {
		return err
	}
	r.config = config

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Create an app at https://developer.spotify.com/dashboard with redirect URI %s\n", config.Credentials.Spotify.RedirectURI)
	r.writePlain("2. Set client_id and client_secret in %s (or %s and %s)\n", path, shared.EnvSpotifyID, shared.EnvSpotifySecret)
	r.writePlain("3. Run 'monthlies auth login'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
//
// A missing config file is created from the template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.configFile()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := loadConfig(path); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return r.writePlain("✓ Rolled back latest migration\n")
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := shared.AppliedMigrations(db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d %s applied)\n",
		r.config.Database.Path, len(applied), shared.Pluralize(len(applied), "migration", "migrations"))
}

// SetupCheck validates the configuration without contacting Spotify.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Organizer.Validate(); err != nil {
		return err
	}

	r.writePlain("✓ Organizer settings valid (playlists named %q)\n", r.config.Organizer.NameTemplate)
	if !r.config.Credentials.Spotify.HasClient() {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configFile())
	}
	r.writePlain("✓ Spotify client configured\n")

	if r.config.Credentials.Spotify.Token() == nil {
		r.writePlain("⚠ Not authorized yet. Run: monthlies auth login\n")
	} else {
		r.writePlain("✓ Token stored\n")
	}
	return nil
}
