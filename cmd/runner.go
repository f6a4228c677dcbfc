package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/repositories"
	"github.com/desertthunder/anisync/internal/services"
	"github.com/desertthunder/anisync/internal/shared"
	"github.com/desertthunder/anisync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and clients are opened on first use from the config named by --config. Anything passed in
// [RunnerOpts] is used as is.
type Runner struct {
	config     *shared.Config
	configPath string
	loaded     bool
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db       *sql.DB
	ownsDB   bool
	mappings *repositories.MappingRepository
	cache    *repositories.CatalogCacheRepository
	runs     *repositories.SyncRunRepository

	catalog services.CatalogClient
	list    services.ListClient
	library services.LibraryClient
	lock    tasks.Locker

	mapper *tasks.MappingEngine
	engine *tasks.SyncEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB
	Catalog    services.CatalogClient
	List       services.ListClient
	Library    services.LibraryClient
	Lock       tasks.Locker
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		loaded:     opts.ConfigPath != "",
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		catalog:    opts.Catalog,
		list:       opts.List,
		library:    opts.Library,
		lock:       opts.Lock,
	}
}

// SetLogger replaces the logger used by the runner and any engine it builds afterwards.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// App builds the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "anisync",
		Usage:   "Sync Plex watch history to AniList",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(r.logger, log.DebugLevel)
			}
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			return r.Close()
		},
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, mappingCommand, syncCommand, statusCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the file named by --config once. A missing file keeps the defaults.
func (r *Runner) loadConfig(cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" || (r.loaded && path == r.configPath) {
		return nil
	}

	config, err := shared.LoadOrDefault(path)
	if err != nil {
		return err
	}
	r.config, r.configPath, r.loaded = config, path, true
	return nil
}

// openStore loads the config and opens the database with its repositories.
func (r *Runner) openStore(cmd *cli.Command) error {
	if err := r.loadConfig(cmd); err != nil {
		return err
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		r.db, r.ownsDB = db, true
		r.logger.Debug("database opened", "path", r.config.Database.Path)
	}

	if r.mappings == nil {
		r.mappings = repositories.NewMappingRepository(r.db)
	}
	if r.cache == nil {
		r.cache = repositories.NewCatalogCacheRepository(r.db, r.config.Sync.CacheTTL())
	}
	if r.runs == nil {
		r.runs = repositories.NewSyncRunRepository(r.db)
	}
	return nil
}

// open prepares the store and every client the config has credentials for.
//
// The catalog is always available since searches need no token. The list client needs an AniList
// token and the library client needs a Plex url and token.
func (r *Runner) open(cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	creds := r.config.Credentials
	if r.catalog == nil {
		client := services.NewAniListClient(creds.AniList.Map(), services.AniListOpts{
			RequestsPerSecond: r.config.Sync.Rate(),
			Cache:             r.cache,
			HTTPClient:        r.httpClient,
			Logger:            shared.WithLogger(r.logger, "service", "anilist"),
		})
		r.catalog = client
		if r.list == nil && creds.AniList.Token != "" {
			r.list = client
		}
	}

	if r.library == nil && creds.Plex.URL != "" && creds.Plex.Token != "" {
		r.library = services.NewPlexClient(creds.Plex.URL, creds.Plex.Token, services.PlexOpts{
			Logger: shared.WithLogger(r.logger, "service", "plex"),
		})
	}

	if r.lock == nil {
		r.lock = shared.NewRunLock(r.config.Sync.LockPath)
	}

	if r.mapper == nil {
		maxSeasons, maxHops := r.config.Mapping.Limits()
		r.mapper = tasks.NewMappingEngine(r.catalog, r.mappings, r.logger, maxSeasons, maxHops)
	}
	return nil
}

func (r *Runner) requireLibrary() error {
	if r.library == nil {
		return fmt.Errorf("%w: run 'anisync auth plex --url <server>' or set credentials.plex.url and token in %s",
			shared.ErrMissingCredentials, r.configPath)
	}
	return nil
}

func (r *Runner) requireList() error {
	if r.list == nil {
		return fmt.Errorf("%w: run 'anisync auth anilist' first", shared.ErrNotAuthenticated)
	}
	return nil
}

// syncEngine opens everything a sync needs and returns the shared engine.
func (r *Runner) syncEngine(cmd *cli.Command) (*tasks.SyncEngine, error) {
	if err := r.open(cmd); err != nil {
		return nil, err
	}
	if err := r.requireLibrary(); err != nil {
		return nil, err
	}
	if err := r.requireList(); err != nil {
		return nil, err
	}

	if r.engine == nil {
		r.engine = tasks.NewSyncEngine(r.library, r.list, r.mapper, r.runs, r.lock, r.logger)
	}
	return r.engine, nil
}

// syncOpts merges the command flags over the [sync] config section.
func (r *Runner) syncOpts(cmd *cli.Command) tasks.SyncOpts {
	return tasks.SyncOpts{
		SectionIDs:     r.config.Credentials.Plex.Sections,
		DryRun:         r.config.Sync.DryRun || cmd.Bool("dry-run"),
		UpdatePlanning: r.config.Sync.UpdatePlanning || cmd.Bool("update-planning"),
	}
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil || !r.ownsDB {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
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
