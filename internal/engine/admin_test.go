package engine_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/domain"
	"boardroom/internal/engine/auth"
	"boardroom/internal/repo"
)

func TestSeedExecutivesKeepsEditedPersona(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Repo.UpsertExecutive(env.Ctx, domain.Executive{Role: domain.RoleCFO, Name: "Ana", Title: "CFO", SystemPrompt: "custom"})
	require.NoError(t, err)

	written, err := env.Engine.SeedExecutives(env.Ctx, false)
	require.NoError(t, err)
	assert.Empty(t, written)
	ex, err := env.Repo.GetExecutive(env.Ctx, domain.RoleCFO)
	require.NoError(t, err)
	assert.Equal(t, "custom", ex.SystemPrompt)

	written, err = env.Engine.SeedExecutives(env.Ctx, true)
	require.NoError(t, err)
	assert.Len(t, written, len(domain.Roles))
	ex, _ = env.Repo.GetExecutive(env.Ctx, domain.RoleCFO)
	assert.NotEqual(t, "custom", ex.SystemPrompt)

	all, err := env.Engine.ListExecutives(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(domain.Roles))
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "svc-bot", "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret, "br_"))
	assert.Equal(t, repo.HashAPIKey(secret), key.KeyHash)

	got, err := env.Engine.AuthenticateAPIKey(env.Ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "svc-bot", got.ActorID)

	_, err = env.Engine.AuthenticateAPIKey(env.Ctx, "br_wrong")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.Auth.Grant(env.Ctx, "svc-bot", auth.PermChat)
	require.NoError(t, err)
	assert.NoError(t, env.Engine.Auth.Require(env.Ctx, "svc-bot", nil, auth.PermChat))
	var fe auth.ForbiddenError
	assert.ErrorAs(t, env.Engine.Auth.Require(env.Ctx, "svc-bot", nil, auth.PermDraft), &fe)
}

func TestProvidersReport(t *testing.T) {
	env := newTestEnv(t)
	report := env.Engine.Providers()
	assert.Empty(t, report.Generation, "fake generator reports no status")
	assert.False(t, report.Research.Configured)
	assert.Equal(t, "perplexity", report.Research.Provider)
}

func TestConversationMessagesUnknown(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Engine.ConversationMessages(env.Ctx, "nope", 10)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
