package research

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

const (
	DefaultPerplexityURL   = "https://api.perplexity.ai"
	DefaultPerplexityModel = "sonar"
)

type PerplexityConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTries   uint
	HTTPClient *http.Client
}

// Perplexity queries the Perplexity chat completions endpoint, which speaks the OpenAI wire
// format and adds a citations array.
type Perplexity struct {
	client   openai.Client
	model    string
	maxTries uint
}

func NewPerplexity(cfg PerplexityConfig) (*Perplexity, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("perplexity: api key required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultPerplexityURL
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithBaseURL(base), option.WithMaxRetries(0)}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultPerplexityModel
	}
	tries := cfg.MaxTries
	if tries == 0 {
		tries = 3
	}
	return &Perplexity{client: openai.NewClient(opts...), model: model, maxTries: tries}, nil
}

func (p *Perplexity) Name() string  { return "perplexity" }
func (p *Perplexity) Model() string { return p.model }

const researchSystemPrompt = `You are a market research assistant for a small services company. Answer concisely with
concrete figures and cite your sources. If you cannot find reliable data, say so plainly.`

func (p *Perplexity) Search(ctx context.Context, req Request) (Result, error) {
	query := req.Query
	if req.Purpose != "" {
		query = req.Purpose + "\n\n" + query
	}
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(researchSystemPrompt),
			openai.UserMessage(query),
		},
		Temperature: openai.Float(0.2),
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	completion, err := backoff.Retry(ctx, func() (*openai.ChatCompletion, error) {
		c, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return c, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(p.maxTries))
	if err != nil {
		return Result{}, err
	}
	if len(completion.Choices) == 0 {
		return Result{}, errors.New("empty answer")
	}
	answer := strings.TrimSpace(completion.Choices[0].Message.Content)
	if answer == "" {
		return Result{}, errors.New("empty answer")
	}
	model := completion.Model
	if model == "" {
		model = p.model
	}
	return Result{Answer: answer, Sources: Citations(completion.RawJSON()), Provider: p.Name(), Model: model}, nil
}

// Citations pulls source URLs from a raw completion body, preferring the citations array and
// falling back to search_results. Duplicates are dropped.
func Citations(raw string) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(v gjson.Result) bool {
		u := strings.TrimSpace(v.String())
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
		return true
	}
	gjson.Get(raw, "citations").ForEach(func(_, v gjson.Result) bool { return add(v) })
	if len(out) == 0 {
		gjson.Get(raw, "search_results.#.url").ForEach(func(_, v gjson.Result) bool { return add(v) })
	}
	return out
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}
