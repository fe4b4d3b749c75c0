package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/monthlies/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}

	config, err := loadConfig(defaultConfigPath)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "error", err)
		config = shared.DefaultConfig()
		shared.ApplyEnv(config)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: defaultConfigPath,
		Logger:     logger,
	})

	if config.Credentials.Spotify.HasClient() {
		if svc, err := runner.connectSpotify(); err == nil {
			runner.spotify = svc
		} else {
			logger.Warn("spotify unavailable", "error", err)
		}
	}

	if err := runner.app().Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrRunFailures):
			logger.Error(err)
			os.Exit(1)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
