package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/config"
	"boardroom/internal/domain"
)

func TestOpenSeedsExecutivesFromConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "executives:\n  cfo:\n    name: Marta\n    title: Chief Financial Officer\n    system_prompt: You guard the cash.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(yml), 0o644))

	rt, err := Open(context.Background(), Options{Workspace: dir, LogLevel: "error"})
	require.NoError(t, err)
	defer rt.Close(context.Background())

	execs, err := rt.Engine.ListExecutives(context.Background())
	require.NoError(t, err)
	assert.Len(t, execs, len(domain.Roles))
	cfo, err := rt.Repo.GetExecutive(context.Background(), domain.RoleCFO)
	require.NoError(t, err)
	assert.Equal(t, "Marta", cfo.Name)
	assert.Equal(t, "You guard the cash.", cfo.SystemPrompt)

	report := rt.Engine.Providers()
	assert.False(t, rt.Engine.Generator.Configured())
	assert.NotEmpty(t, report.Generation)
	for _, p := range report.Generation {
		assert.False(t, p.Configured, p.Name)
	}
	assert.False(t, report.Research.Configured)
}

func TestOpenRejectsBadLogLevel(t *testing.T) {
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), LogLevel: "loud"})
	assert.Error(t, err)
}
