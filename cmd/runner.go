package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/monthlies/internal/repositories"
	"github.com/desertthunder/monthlies/internal/services"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/desertthunder/monthlies/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    services.Catalog
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Catalog
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, libraryCommand, organizeCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// app builds the root command. Its flags are inherited by every subcommand.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "monthlies",
		Usage:   "Organize saved Spotify tracks into monthly playlists",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// before applies global flags. A --config path other than the one loaded at startup replaces the
// configuration and the catalog built from it.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	if path == "" || path == r.configPath {
		return ctx, nil
	}

	config, err := loadConfig(path)
	if err != nil {
		return ctx, err
	}

	r.logger.Debug("loaded configuration", "path", path)
	r.config = config
	r.configPath = path
	r.spotify = nil
	return ctx, nil
}

// loadConfig reads path with environment overrides applied. A missing file yields the defaults.
func loadConfig(path string) (*shared.Config, error) {
	config, err := shared.LoadConfig(path)
	if errors.Is(err, shared.ErrMissingConfig) {
		config = shared.DefaultConfig()
	} else if err != nil {
		return nil, err
	}

	shared.ApplyEnv(config)
	return config, nil
}

// catalog returns the Spotify catalog, connecting it from the current config on first use.
func (r *Runner) catalog() (services.Catalog, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	svc, err := r.connectSpotify()
	if err != nil {
		return nil, err
	}
	r.spotify = svc
	return svc, nil
}

// connectSpotify builds a Spotify service whose refreshed tokens are written back to the config file.
func (r *Runner) connectSpotify() (*services.SpotifyService, error) {
	creds := r.config.Credentials.Spotify
	if !creds.HasClient() {
		return nil, fmt.Errorf("%w: set client_id and client_secret in %s or %s/%s",
			shared.ErrMissingCredentials, r.configFile(), shared.EnvSpotifyID, shared.EnvSpotifySecret)
	}

	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}

	svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
		if err := r.saveTokens(token); err != nil {
			r.logger.Warn("failed to persist refreshed token", "error", err)
		}
	})
	return svc, nil
}

// engine builds a reconciler over the catalog using the organizer config.
func (r *Runner) engine() (*tasks.Reconciler, error) {
	catalog, err := r.catalog()
	if err != nil {
		return nil, err
	}

	opts, err := tasks.OptionsFromConfig(r.config.Organizer, r.logger)
	if err != nil {
		return nil, err
	}

	return tasks.NewReconciler(catalog, opts), nil
}

// openRuns opens the run history database. The caller closes the returned db.
func (r *Runner) openRuns() (*sql.DB, *repositories.RunRepository, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, err
	}
	return db, repositories.NewRunRepository(db), nil
}

func (r *Runner) configFile() string {
	if r.configPath == "" {
		return defaultConfigPath
	}
	return r.configPath
}

// saveTokens stores token in the config and persists it when the runner has a config path.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrInvalidConfig)
	}
	if token == nil {
		return fmt.Errorf("%w: token cannot be nil", shared.ErrInvalidArgument)
	}

	r.config.Credentials.Spotify.Update(token)

	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Debug("saved tokens", "path", r.configPath)
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
