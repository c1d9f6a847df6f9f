package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmeta/internal/cache"
	"github.com/desertthunder/trackmeta/internal/models"
	"github.com/desertthunder/trackmeta/internal/repositories"
	"github.com/desertthunder/trackmeta/internal/server"
	"github.com/desertthunder/trackmeta/internal/services"
	"github.com/desertthunder/trackmeta/internal/shared"
	"github.com/desertthunder/trackmeta/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Store is everything the commands need from the metadata table.
type Store interface {
	cache.Store
	server.TrackStore
	Get(ctx context.Context, id string) (*models.TrackMetadata, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The store, catalog and cache are built on first use from the loaded config, so commands that
// never touch the network do not need credentials.
type Runner struct {
	config     *shared.Config
	store      Store
	catalog    services.Catalog
	tokens     services.TokenProvider
	cache      *cache.MetadataCache
	db         *sql.DB
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Store, Catalog and Tokens replace the components the config would otherwise describe.
type RunnerOpts struct {
	Config     *shared.Config
	Store      Store
	Catalog    services.Catalog
	Tokens     services.TokenProvider
	HTTPClient *http.Client
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		store:      opts.Store,
		catalog:    opts.Catalog,
		tokens:     opts.Tokens,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, resolveCommand, warmCommand, storeCommand, tokenCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the file named by --config, falling back to defaults when it does not exist,
// and applies the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	config, err := shared.LoadConfigOrDefault(cmd.String("config"))
	if err != nil {
		return ctx, err
	}

	level := config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	lvl, err := shared.ParseLogLevel(level)
	if err != nil {
		return ctx, fmt.Errorf("%w: --log-level %q", shared.ErrInvalidFlag, level)
	}
	shared.SetLogLevel(r.logger, lvl)

	r.config = config
	return ctx, nil
}

// Close releases the database connection if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// SetLogger replaces the logger used by components built after the call.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) ensureStore(ctx context.Context) (Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	db, dialect, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}

	repo, err := repositories.NewTrackMetadataRepository(db, dialect, r.config.Database.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	r.logger.Debug("opened metadata store", "driver", dialect, "table", repo.Table())
	r.db, r.store = db, repo
	return repo, nil
}

// tokenManager builds a manager for the named token source. An empty name uses the config.
func (r *Runner) tokenManager(source string) (*services.TokenManager, error) {
	if source == "" {
		source = r.config.Catalog.TokenSource
	}
	creds := r.config.Credentials.Spotify

	var refresh services.RefreshFunc
	var err error
	switch source {
	case "", "client_credentials":
		source = "client_credentials"
		refresh, err = services.NewClientCredentialsRefresher(services.ClientCredentialsOpts{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			HTTPClient:   r.httpClient,
		})
	case "web_player":
		refresh, err = services.NewWebPlayerRefresher(services.WebPlayerOpts{
			SpDC:       creds.SpDC,
			HTTPClient: r.httpClient,
		})
	default:
		return nil, fmt.Errorf("%w: unknown token source %q", shared.ErrInvalidArgument, source)
	}
	if err != nil {
		return nil, err
	}

	return services.NewTokenManager(refresh, services.TokenManagerOpts{Name: source, Logger: r.logger}), nil
}

func (r *Runner) ensureCatalog() (services.Catalog, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	tokens, err := r.tokenManager("")
	if err != nil {
		return nil, err
	}

	cfg := r.config.Catalog
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	catalog, err := services.NewSpotifyCatalog(services.SpotifyCatalogOpts{
		Tokens:  tokens,
		BaseURL: cfg.BaseURL,
		Market:  cfg.Market,
		Limiter: limiter,
		Timeout: cfg.Timeout.Duration,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.catalog = catalog
	if r.tokens == nil {
		r.tokens = tokens
	}
	return catalog, nil
}

func (r *Runner) ensureCache(ctx context.Context) (*cache.MetadataCache, error) {
	if r.cache != nil {
		return r.cache, nil
	}

	store, err := r.ensureStore(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := r.ensureCatalog()
	if err != nil {
		return nil, err
	}

	r.cache = cache.New(store, catalog, cache.Options{
		ExpireAfterAccess: r.config.Cache.ExpireAfterAccess.Duration,
		ExpireAfterWrite:  r.config.Cache.ExpireAfterWrite.Duration,
		FetchConcurrency:  r.config.Catalog.FetchConcurrency,
		Logger:            r.logger,
	})
	return r.cache, nil
}

// ping checks the database when one is open.
func (r *Runner) ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrDataAccess, err)
	}
	return nil
}

// parseIDs normalizes ids given as bare ids, URIs or links.
func parseIDs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	var errs []error
	for _, arg := range args {
		id, err := tasks.ParseTrackID(arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
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
	return r.writePlain(format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
