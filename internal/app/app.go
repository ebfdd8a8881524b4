package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	cliconfig "github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/configfile"
	_ "github.com/lib/pq"

	"github.com/fonix232/caddy/internal/config"
	"github.com/fonix232/caddy/internal/infrastructure/dispatch"
	"github.com/fonix232/caddy/internal/infrastructure/dockerhub"
	"github.com/fonix232/caddy/internal/infrastructure/ghcr"
	"github.com/fonix232/caddy/internal/infrastructure/github"
	"github.com/fonix232/caddy/internal/infrastructure/scheduler"
	"github.com/fonix232/caddy/internal/infrastructure/status"
	"github.com/fonix232/caddy/internal/infrastructure/storage"
	"github.com/fonix232/caddy/internal/logging"
	"github.com/fonix232/caddy/internal/ports"
	"github.com/fonix232/caddy/internal/registry"
	"github.com/fonix232/caddy/internal/usecase"
)

// Application wires configs to the trigger pipeline and lifecycle
// orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	store    *storage.PostgresRunStore
	tracker  *status.Tracker
	db       *sql.DB
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	dockerConfig, err := loadDockerConfig(cfg.Docker.ConfigDir, baseLogger)
	if err != nil {
		return nil, err
	}

	strategies := registry.NewRegistry()
	strategies.Register("dockerhub", func(rc config.RegistryConfig, deps registry.BuildDeps) (registry.TagRegistry, error) {
		return dockerhub.NewClient(rc.Name, "", rc.Repository, deps.DockerConfig, deps.Logger), nil
	})
	strategies.Register("ghcr", func(rc config.RegistryConfig, deps registry.BuildDeps) (registry.TagRegistry, error) {
		return ghcr.NewClient(rc.Name, "", rc.Repository, deps.Token, deps.Logger), nil
	})

	deps := registry.BuildDeps{
		Token:        cfg.Upstream.Token,
		DockerConfig: dockerConfig,
		Logger:       baseLogger.With("component", "registry"),
	}

	members := make([]registry.Member, 0, len(cfg.Registries))
	registryNames := make([]string, 0, len(cfg.Registries))
	for _, rc := range cfg.Registries {
		builder, err := strategies.Resolve(rc.Type)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", rc.Name, err)
		}
		reg, err := builder(rc, deps)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", rc.Name, err)
		}
		members = append(members, registry.Member{Registry: reg, Optional: rc.Optional})
		registryNames = append(registryNames, rc.Name)
	}

	published := registry.NewSource(members, cfg.Platforms, baseLogger.With("component", "registries"))

	apiClient := github.NewClient(cfg.Upstream.APIURL, cfg.Upstream.Repo, cfg.Upstream.Token,
		cfg.Upstream.PageSize, baseLogger.With("component", "upstream"))
	var fallback *github.PageScraper
	if cfg.Upstream.FallbackHTML {
		fallback = github.NewPageScraper(cfg.Upstream.PageURL, cfg.Upstream.Repo,
			baseLogger.With("component", "upstream.fallback"))
	}
	feed := github.NewFeed(apiClient, fallback, baseLogger.With("component", "upstream"))

	var baseImage ports.TagChecker
	if cfg.BaseImage.Repository != "" {
		baseImage = dockerhub.NewClient("base-image", "", cfg.BaseImage.Repository,
			dockerConfig, baseLogger.With("component", "base-image"))
	}

	emitter := dispatch.NewEmitter(os.Getenv("GITHUB_OUTPUT"), os.Stdout,
		baseLogger.With("component", "dispatch"))

	var (
		store *storage.PostgresRunStore
		db    *sql.DB
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		store = storage.NewPostgresRunStore(db)
	}

	tracker := status.NewTracker()

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     feed,
		Published:  published,
		BaseImage:  baseImage,
		Dispatcher: emitter,
		Store:      runStoreOrNil(store),
		Observer:   tracker,
		Logger:     baseLogger.With("component", "pipeline"),
		Platforms:  cfg.Platforms,
		Registries: registryNames,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		pipeline: pipeline,
		store:    store,
		tracker:  tracker,
		db:       db,
	}, nil
}

// RunOnce performs a single pipeline run. The returned error marks a
// fatal run; a negative decision is a successful run.
func (a *Application) RunOnce(ctx context.Context) error {
	if err := a.ensureSchema(ctx); err != nil {
		return err
	}

	_, err := a.pipeline.Run(ctx)
	return err
}

// RunDaemon runs the pipeline on the configured interval and serves the
// status endpoint until the context is canceled.
func (a *Application) RunDaemon(ctx context.Context) error {
	if err := a.ensureSchema(ctx); err != nil {
		return err
	}

	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.IntervalDuration())
	runner := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := status.NewServer(a.cfg.Status.Addr, a.tracker, runStoreOrNil(a.store),
		a.logger.With("component", "status"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = runner.Stop(context.Background())
			return fmt.Errorf("status server: %w", err)
		}
	}

	shutdownCtx := context.Background()
	_ = runner.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("status server shutdown failed", "error", err)
	}
	return nil
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Application) ensureSchema(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare run history: %w", err)
	}
	return nil
}

func loadDockerConfig(configDir string, log *slog.Logger) (*configfile.ConfigFile, error) {
	if configDir == "" {
		return nil, nil
	}
	dockerConfig, err := cliconfig.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load docker config from %s: %w", configDir, err)
	}
	log.Debug("loaded docker config", "dir", configDir)
	return dockerConfig, nil
}

// runStoreOrNil keeps a typed nil *PostgresRunStore out of the port
// interface.
func runStoreOrNil(store *storage.PostgresRunStore) ports.RunStore {
	if store == nil {
		return nil
	}
	return store
}
