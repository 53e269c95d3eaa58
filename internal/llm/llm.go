package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoProvider is returned when no generation backend is configured.
var ErrNoProvider = errors.New("no generation provider configured")

// Task hints which kind of answer is wanted; providers may route on it.
type Task string

const (
	TaskAnalysis Task = "analysis"
	TaskStrategy Task = "strategy"
	TaskHR       Task = "hr"
)

// Message is one prior conversation turn. Role is user, assistant or system.
type Message struct {
	Role    string
	Content string
}

type Request struct {
	Task        Task
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the backend for a single JSON object.
	JSON bool
}

type Response struct {
	Provider string
	Model    string
	Text     string
}

// Provider is one generation backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// Generator is what the engine depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Configured() bool
}

type ProviderStatus struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
}

type RouterOptions struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Logger            *zap.Logger
}

// Router tries providers in order and returns the first non-empty answer.
type Router struct {
	providers []Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
	known     []string
}

func NewRouter(opts RouterOptions, providers ...Provider) *Router {
	r := &Router{providers: providers, timeout: opts.Timeout, logger: opts.Logger}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return r
}

// Configured reports whether at least one provider is available.
func (r *Router) Configured() bool {
	return r != nil && len(r.providers) > 0
}

// Status lists configured providers followed by known but unconfigured ones.
func (r *Router) Status() []ProviderStatus {
	out := []ProviderStatus{}
	seen := map[string]bool{}
	for _, p := range r.providers {
		out = append(out, ProviderStatus{Name: p.Name(), Model: p.Model(), Configured: true})
		seen[p.Name()] = true
	}
	for _, name := range r.known {
		if !seen[name] {
			out = append(out, ProviderStatus{Name: name})
		}
	}
	return out
}

func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	if !r.Configured() {
		return Response{}, ErrNoProvider
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}
	var errs []error
	for _, p := range r.providers {
		resp, err := r.try(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		r.logger.Warn("generation provider failed", zap.String("provider", p.Name()), zap.String("task", string(req.Task)), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return Response{}, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

func (r *Router) try(ctx context.Context, p Provider, req Request) (Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return Response{}, err
	}
	resp.Text = strings.TrimSpace(resp.Text)
	if resp.Text == "" {
		return Response{}, errors.New("empty response")
	}
	if resp.Provider == "" {
		resp.Provider = p.Name()
	}
	if resp.Model == "" {
		resp.Model = p.Model()
	}
	return resp, nil
}
