package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/llm"
)

func TestBuildContextListsFailingSources(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
	env := newTestEnv(t)
	require.NoError(t, env.Repo.InsertPrediction(env.Ctx, domain.Prediction{Kind: domain.KindRevenue, Value: 1, Confidence: 80}))
	require.NoError(t, env.Repo.InsertPrediction(env.Ctx, domain.Prediction{Kind: domain.KindChurn, Value: 0.2, Confidence: 80}))
	store := &failingStore{Repo: env.Repo, failEvents: true, failPredictions: map[string]bool{domain.KindPaymentRisk: true}}
	env.Engine.Store = store

	c, err := env.Engine.BuildContext(env.Ctx, engine.FullContext(domain.RoleCFO, "tester"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"event_log", "predictions"}, c.Missing)
	assert.Empty(t, c.Data.EventLog)
	require.Len(t, c.Predictions, 2, "healthy kinds survive a failing one")
	assert.Equal(t, domain.KindRevenue, c.Predictions[0].Kind)
	assert.Equal(t, domain.KindChurn, c.Predictions[1].Kind)
}

func TestMeetingStatementWriteFailureReverts(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = meetingReply
	store := &failingStore{Repo: env.Repo, failStatements: true}
	env.Engine.Store = store

	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Ops", Participants: []domain.Role{domain.RoleCOO, domain.RoleCEO}})
	require.NoError(t, err)
	_, err = env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	var merr *engine.MeetingError
	require.ErrorAs(t, err, &merr)
	assert.ErrorIs(t, err, errInjected)

	back, err := env.Repo.GetMeeting(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingScheduled, back.Status)
	stmts, err := env.Repo.ListStatements(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, stmts)
	// the run stopped at the first failed write
	assert.Len(t, env.Gen.calls(), 1)
}

func TestChatSurvivesMissingExecutiveContext(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Store = &failingStore{Repo: env.Repo, failEvents: true}
	res, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCTO, Message: "Status of the platform?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"event_log"}, res.Missing)
	assert.Equal(t, llm.TaskAnalysis, env.Gen.calls()[0].Task)
}

func TestBuildContextZeroPredictionCapFallsBackToDefault(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Context.Predictions = 0
	for i := 0; i < 40; i++ {
		require.NoError(t, env.Repo.InsertPrediction(env.Ctx, domain.Prediction{Kind: domain.KindRevenue, Value: float64(i), Confidence: 80}))
		require.NoError(t, env.Repo.InsertPrediction(env.Ctx, domain.Prediction{Kind: domain.KindChurn, Value: float64(i), Confidence: 80}))
	}
	c, err := env.Engine.BuildContext(env.Ctx, engine.FullContext(domain.RoleCFO, "tester"))
	require.NoError(t, err)
	assert.Len(t, c.Predictions, 60)
}
