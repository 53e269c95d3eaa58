package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"boardroom/internal/domain"
)

// FileName is the config file looked up in a workspace.
const FileName = "boardroom.yml"

// Config models boardroom.yml.
type Config struct {
	Executives map[domain.Role]Executive `yaml:"executives"`
	Context    Context                   `yaml:"context"`
	Chat       Chat                      `yaml:"chat"`
	Meeting    Meeting                   `yaml:"meeting"`
	Research   Research                  `yaml:"research"`
	Providers  Providers                 `yaml:"providers"`
}

type Executive struct {
	Name         string `yaml:"name"`
	Title        string `yaml:"title"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Context holds the per-source caps used when aggregating signals.
type Context struct {
	Events                  int     `yaml:"events"`
	Tasks                   int     `yaml:"tasks"`
	Invoices                int     `yaml:"invoices"`
	Requests                int     `yaml:"requests"`
	Knowledge               int     `yaml:"knowledge"`
	Decisions               int     `yaml:"decisions"`
	Research                int     `yaml:"research"`
	Predictions             int     `yaml:"predictions"`
	PredictionMinConfidence float64 `yaml:"prediction_min_confidence"`
	TouchLimit              int     `yaml:"touch_limit"`
}

type Chat struct {
	HistoryTurns int     `yaml:"history_turns"`
	HistoryChars int     `yaml:"history_chars"`
	ContextChars int     `yaml:"context_chars"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	MaxSources   int     `yaml:"max_sources"`
}

type Meeting struct {
	Synthesizer          domain.Role `yaml:"synthesizer"`
	StatementMaxLines    int         `yaml:"statement_max_lines"`
	ContextChars         int         `yaml:"context_chars"`
	StatementTemperature float64     `yaml:"statement_temperature"`
	StatementMaxTokens   int         `yaml:"statement_max_tokens"`
	SynthesisTemperature float64     `yaml:"synthesis_temperature"`
	SynthesisMaxTokens   int         `yaml:"synthesis_max_tokens"`
}

type Research struct {
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	BaseURL  string   `yaml:"base_url"`
	Triggers []string `yaml:"triggers"`
	CacheTTL string   `yaml:"cache_ttl"`
	Timeout  string   `yaml:"timeout"`
}

type Providers struct {
	Order             []string          `yaml:"order"`
	Models            map[string]string `yaml:"models"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
	Timeout           string            `yaml:"timeout"`
}

// KnownProviders are the generation backends the router can build.
var KnownProviders = []string{"openrouter", "claude", "openai", "gemini"}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with br config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for role, exec := range c.Executives {
		if !role.Valid() {
			return fmt.Errorf("config.executives: unknown role %q", role)
		}
		if strings.TrimSpace(exec.SystemPrompt) == "" {
			return fmt.Errorf("config.executives.%s.system_prompt is required", role)
		}
	}
	if !c.Meeting.Synthesizer.Valid() {
		return fmt.Errorf("config.meeting.synthesizer: unknown role %q", c.Meeting.Synthesizer)
	}
	if c.Meeting.StatementMaxLines <= 0 {
		return fmt.Errorf("config.meeting.statement_max_lines must be positive")
	}
	caps := map[string]int{
		"events": c.Context.Events, "tasks": c.Context.Tasks, "invoices": c.Context.Invoices,
		"requests": c.Context.Requests, "knowledge": c.Context.Knowledge, "decisions": c.Context.Decisions,
		"research": c.Context.Research, "predictions": c.Context.Predictions, "touch_limit": c.Context.TouchLimit,
	}
	for name, v := range caps {
		if v < 0 {
			return fmt.Errorf("config.context.%s must not be negative", name)
		}
	}
	if c.Context.PredictionMinConfidence < 0 || c.Context.PredictionMinConfidence > 100 {
		return fmt.Errorf("config.context.prediction_min_confidence must be within 0..100")
	}
	for _, t := range []float64{c.Chat.Temperature, c.Meeting.StatementTemperature, c.Meeting.SynthesisTemperature} {
		if t < 0 || t > 2 {
			return fmt.Errorf("temperatures must be within 0..2")
		}
	}
	for _, name := range c.Providers.Order {
		if !knownProvider(name) {
			return fmt.Errorf("config.providers.order: unknown provider %q", name)
		}
	}
	if c.Providers.RequestsPerSecond < 0 {
		return fmt.Errorf("config.providers.requests_per_second must not be negative")
	}
	for field, raw := range map[string]string{
		"research.cache_ttl": c.Research.CacheTTL, "research.timeout": c.Research.Timeout, "providers.timeout": c.Providers.Timeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config.%s: %w", field, err)
		}
	}
	return nil
}

// Duration parses a duration field, returning fallback when it is empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// Persona returns the configured persona for role with the role name as fallback title.
func (c *Config) Persona(role domain.Role) Executive {
	exec, ok := c.Executives[role]
	if !ok {
		exec = Executive{SystemPrompt: fmt.Sprintf("You are the %s of the company.", strings.ToUpper(string(role)))}
	}
	if exec.Title == "" {
		exec.Title = strings.ToUpper(string(role))
	}
	if exec.Name == "" {
		exec.Name = exec.Title
	}
	return exec
}

func knownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `executives:
  ceo:
    name: Helena
    title: Chief Executive Officer
    system_prompt: |
      You are the CEO. You weigh finance, operations, customers, marketing, technology and people
      against the company's strategy and close discussions with one clear decision and its owner.
  cfo:
    name: Marcos
    title: Chief Financial Officer
    system_prompt: |
      You are the CFO. You watch cash flow, receivables, overdue invoices, margins and payment risk.
      You quantify impact in money and time and flag anything that threatens runway.
  coo:
    name: Beatriz
    title: Chief Operating Officer
    system_prompt: |
      You are the COO. You track delivery capacity, delays, workload and budget overruns on the board
      and turn problems into concrete operational steps with owners and dates.
  cco:
    name: Rafael
    title: Chief Customer Officer
    system_prompt: |
      You are the CCO. You care about client health, churn risk, lifetime value and relationship
      follow-up, and you propose retention moves grounded in the client signals you see.
  cmo:
    name: Camila
    title: Chief Marketing Officer
    system_prompt: |
      You are the CMO. You look at conversion, campaigns, traffic and positioning, and you compare the
      company with its market only when you have real data to do so.
  cto:
    name: Daniel
    title: Chief Technology Officer
    system_prompt: |
      You are the CTO. You assess delivery capacity, technical risk and team performance, and you keep
      recommendations practical for a small engineering team.
  chro:
    name: Larissa
    title: Chief Human Resources Officer
    system_prompt: |
      You are the CHRO. You follow pending employee requests, workload balance and performance, and you
      protect both the team and the company's commitments.

context:
  events: 30
  tasks: 25
  invoices: 30
  requests: 20
  knowledge: 20
  decisions: 10
  research: 6
  predictions: 60
  prediction_min_confidence: 55
  touch_limit: 10

chat:
  history_turns: 12
  history_chars: 1200
  context_chars: 18000
  temperature: 0.4
  max_tokens: 950
  max_sources: 6

meeting:
  synthesizer: ceo
  statement_max_lines: 12
  context_chars: 16000
  statement_temperature: 0.35
  statement_max_tokens: 650
  synthesis_temperature: 0.25
  synthesis_max_tokens: 900

research:
  provider: perplexity
  model: sonar
  base_url: https://api.perplexity.ai
  triggers: []
  cache_ttl: 6h
  timeout: 30s

providers:
  order: [openrouter, claude, openai, gemini]
  models:
    openrouter: openai/gpt-4o-mini
    claude: claude-3-5-haiku-latest
    openai: gpt-4o-mini
    gemini: gemini-2.0-flash
  requests_per_second: 2
  burst: 4
  timeout: 60s
`
