package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, domain.RoleCEO, cfg.Meeting.Synthesizer)
	assert.Equal(t, 12, cfg.Meeting.StatementMaxLines)
	assert.Equal(t, 55.0, cfg.Context.PredictionMinConfidence)
	assert.Len(t, cfg.Executives, len(domain.Roles))
	assert.Equal(t, []string{"openrouter", "claude", "openai", "gemini"}, cfg.Providers.Order)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("meeting:\n  synthesizer: coo\nresearch:\n  triggers: [forecast]\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCOO, cfg.Meeting.Synthesizer)
	assert.Equal(t, 12, cfg.Meeting.StatementMaxLines)
	assert.Equal(t, []string{"forecast"}, cfg.Research.Triggers)
	assert.Equal(t, 950, cfg.Chat.MaxTokens)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown role":        "executives:\n  cio:\n    system_prompt: hi\n",
		"bad synthesizer":     "meeting:\n  synthesizer: intern\n",
		"confidence range":    "context:\n  prediction_min_confidence: 140\n",
		"unknown provider":    "providers:\n  order: [openai, mystery]\n",
		"bad duration":        "research:\n  cache_ttl: soon\n",
		"negative cap":        "context:\n  events: -1\n",
		"empty persona":       "executives:\n  cfo:\n    system_prompt: \"\"\n",
		"temperature too hot": "chat:\n  temperature: 3\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("chat:\n  max_tokens: 500\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chat.MaxTokens)
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestPersonaFallback(t *testing.T) {
	cfg := &Config{}
	p := cfg.Persona(domain.RoleCTO)
	assert.Equal(t, "CTO", p.Title)
	assert.NotEmpty(t, p.SystemPrompt)

	p = Default().Persona(domain.RoleCFO)
	assert.Equal(t, "Marcos", p.Name)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 6*time.Hour, Duration("6h", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("nope", time.Minute))
}
