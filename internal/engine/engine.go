package engine

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"boardroom/internal/config"
	"boardroom/internal/domain"
	"boardroom/internal/engine/auth"
	"boardroom/internal/events"
	"boardroom/internal/llm"
	"boardroom/internal/research"
)

var tracer = otel.Tracer("boardroom/engine")

type Engine struct {
	Store     Store
	Generator llm.Generator
	Research  *research.Adapter
	Events    events.Writer
	Auth      auth.Service
	Config    *config.Config
	Logger    *zap.Logger
	Now       func() time.Time
}

// New wires an engine with no generation provider and unconfigured research. Callers replace
// Generator and Research once providers are built.
func New(store Store, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := zap.NewNop()
	return Engine{
		Store:     store,
		Generator: llm.NewRouter(llm.RouterOptions{Logger: logger}),
		Research:  &research.Adapter{Recorder: store, Logger: logger},
		Events:    events.Writer{Store: store, Logger: logger},
		Auth:      auth.Service{Store: store},
		Config:    cfg,
		Logger:    logger,
		Now:       time.Now,
	}
}

// WithLogger returns a copy of e logging to l.
func (e Engine) WithLogger(l *zap.Logger) Engine {
	if l == nil {
		return e
	}
	e.Logger = l
	e.Events.Logger = l
	if e.Research != nil {
		r := *e.Research
		r.Logger = l
		e.Research = &r
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return domain.FormatTime(e.now())
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

func (e Engine) providersConfigured() bool {
	return e.Generator != nil && e.Generator.Configured()
}
