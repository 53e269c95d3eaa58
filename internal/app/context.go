package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"boardroom/internal/config"
	"boardroom/internal/db"
	"boardroom/internal/engine"
	"boardroom/internal/llm"
	"boardroom/internal/logging"
	"boardroom/internal/migrate"
	"boardroom/internal/repo"
	"boardroom/internal/research"
	"boardroom/internal/telemetry"
)

// Options are the runtime settings resolved from flags and the environment.
type Options struct {
	Workspace string
	DBDriver  string
	DSN       string
	LogLevel  string
	LogFormat string

	Keys          llm.Keys
	PerplexityKey string
	RedisURL      string
	OTLPEndpoint  string
	OTLPInsecure  bool

	// SkipSeed leaves the executives table untouched.
	SkipSeed bool
}

// Runtime bundles everything a command needs. Close releases it.
type Runtime struct {
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Config *config.Config
	Logger *zap.Logger

	closers []func(context.Context) error
}

// Open opens and migrates the store, loads config, builds the generation router and research
// adapter, and seeds missing executives.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger, err := logging.New(opts.LogLevel, opts.LogFormat)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(context.Background())
		}
	}()

	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	rt.Config = cfg

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: opts.DBDriver, DSN: opts.DSN})
	if err != nil {
		return nil, err
	}
	rt.DB = conn
	rt.closers = append(rt.closers, func(context.Context) error { return conn.Close() })
	dialect := db.Dialect(opts.DBDriver)
	if err := migrate.MigrateDialect(conn, dialect); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rt.Repo = repo.New(conn, dialect)

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{ServiceName: "boardroom", Endpoint: opts.OTLPEndpoint, Insecure: opts.OTLPInsecure})
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		rt.closers = append(rt.closers, shutdown)
	}

	e := engine.New(rt.Repo, cfg).WithLogger(logger)
	e.Generator = llm.Build(ctx, llm.BuildOptions{
		Order:  cfg.Providers.Order,
		Models: cfg.Providers.Models,
		Keys:   opts.Keys,
		Router: llm.RouterOptions{
			RequestsPerSecond: cfg.Providers.RequestsPerSecond,
			Burst:             cfg.Providers.Burst,
			Timeout:           config.Duration(cfg.Providers.Timeout, 60*time.Second),
			Logger:            logger,
		},
	})
	adapter, err := buildResearch(cfg.Research, opts, rt.Repo, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := adapter.Cache.(*research.RedisCache); ok {
		rt.closers = append(rt.closers, func(context.Context) error { return c.Close() })
	}
	e.Research = adapter
	rt.Engine = e

	if !opts.SkipSeed {
		if _, err := e.SeedExecutives(ctx, false); err != nil {
			return nil, err
		}
	}
	ok = true
	return rt, nil
}

func buildResearch(cfg config.Research, opts Options, rec research.Recorder, logger *zap.Logger) (*research.Adapter, error) {
	a := &research.Adapter{
		Recorder: rec,
		CacheTTL: config.Duration(cfg.CacheTTL, 6*time.Hour),
		Triggers: cfg.Triggers,
		Name:     cfg.Provider,
		Model:    cfg.Model,
		Logger:   logger,
	}
	if key := strings.TrimSpace(opts.PerplexityKey); key != "" {
		p, err := research.NewPerplexity(research.PerplexityConfig{
			APIKey:     key,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: &http.Client{Timeout: config.Duration(cfg.Timeout, 30*time.Second)},
		})
		if err != nil {
			logger.Warn("research provider unavailable", zap.Error(err))
		} else {
			a.Provider = p
		}
	}
	if url := strings.TrimSpace(opts.RedisURL); url != "" {
		cache, err := research.NewRedisCache(url)
		if err != nil {
			return nil, fmt.Errorf("research cache: %w", err)
		}
		a.Cache = cache
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if rt.Logger != nil {
		_ = rt.Logger.Sync()
	}
	return errors.Join(errs...)
}
