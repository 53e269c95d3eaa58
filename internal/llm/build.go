package llm

import (
	"context"

	"go.uber.org/zap"
)

// Keys are the provider credentials, usually read from the environment.
type Keys struct {
	OpenRouter string
	Anthropic  string
	OpenAI     string
	Gemini     string
}

type BuildOptions struct {
	Order  []string
	Models map[string]string
	Keys   Keys
	Router RouterOptions
}

// Build assembles a Router from the providers whose keys are set, in Order. A provider that
// fails to initialize is logged and skipped.
func Build(ctx context.Context, opts BuildOptions) *Router {
	logger := opts.Router.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	order := opts.Order
	if len(order) == 0 {
		order = []string{"openrouter", "claude", "openai", "gemini"}
	}
	var providers []Provider
	for _, name := range order {
		model := opts.Models[name]
		var (
			p   Provider
			err error
		)
		switch name {
		case "openrouter":
			if opts.Keys.OpenRouter == "" {
				continue
			}
			p, err = NewOpenRouter(opts.Keys.OpenRouter, model)
		case "claude":
			if opts.Keys.Anthropic == "" {
				continue
			}
			p, err = NewClaude(opts.Keys.Anthropic, model, "")
		case "openai":
			if opts.Keys.OpenAI == "" {
				continue
			}
			p, err = NewOpenAI(OpenAIConfig{APIKey: opts.Keys.OpenAI, Model: model})
		case "gemini":
			if opts.Keys.Gemini == "" {
				continue
			}
			p, err = NewGemini(ctx, opts.Keys.Gemini, model)
		default:
			logger.Warn("unknown generation provider", zap.String("provider", name))
			continue
		}
		if err != nil {
			logger.Warn("generation provider unavailable", zap.String("provider", name), zap.Error(err))
			continue
		}
		providers = append(providers, p)
	}
	r := NewRouter(opts.Router, providers...)
	r.known = order
	return r
}
