package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/repo"
)

func seedInsight(t *testing.T, env testEnv, actions ...domain.RecommendedAction) domain.Insight {
	t.Helper()
	in, err := env.Engine.CreateInsight(env.Ctx, domain.Insight{
		Role: domain.RoleCOO, Title: "Delivery backlog is growing", Confidence: 0.8, Actions: actions,
	}, "u-1")
	require.NoError(t, err)
	require.Len(t, in.Actions, len(actions))
	for _, a := range in.Actions {
		require.NotEmpty(t, a.ID)
	}
	return in
}

func TestDraftLifecycleCreatesKanbanTask(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Repo.InsertKanbanColumn(env.Ctx, domain.KanbanColumn{ID: "col-todo", BoardID: "b-1", Name: "To do", StageKey: "todo", Position: 1}))
	in := seedInsight(t, env, domain.RecommendedAction{
		Title: "Open a task", ActionType: engine.ActionCreateKanbanTask,
		Payload: map[string]any{"title": "Unblock deliveries", "priority": "alta", "stage_key": "todo"},
	})
	assert.Equal(t, "low", in.Actions[0].RiskLevel)

	d, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{Title: "open a TASK"}, ActorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCOO, d.Role)
	assert.True(t, d.IsExecutable)
	assert.Equal(t, domain.DraftStatusDraft, d.Status)
	assert.Len(t, d.Fingerprint, 64)

	again, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, d.ID, again.ID, "identical open draft is reused")

	done, err := env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: d.ID, ActorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusExecuted, done.Status)
	assert.NotEmpty(t, done.ExecutedAt)
	assert.Contains(t, string(done.ExecutionResult), `"column_id":"col-todo"`)

	tasks, err := env.Repo.ListRecentTasks(env.Ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Unblock deliveries", tasks[0].Title)
	assert.Equal(t, "high", tasks[0].Priority)
	assert.Equal(t, "b-1", tasks[0].BoardID)
	assert.Equal(t, "u-1", tasks[0].CreatedBy)

	_, err = env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: d.ID})
	var stateErr engine.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
	tasks, _ = env.Repo.ListRecentTasks(env.Ctx, 10)
	assert.Len(t, tasks, 1, "second confirmation must not repeat the effect")

	fresh, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, fresh.ID, "executed drafts do not block a new one")
}

func TestDraftHighRiskNeedsManualFollowThrough(t *testing.T) {
	env := newTestEnv(t)
	in := seedInsight(t, env,
		domain.RecommendedAction{Title: "Renegotiate supplier", ActionType: engine.ActionSendDirectMessage, RiskLevel: "HIGH",
			Payload: map[string]any{"to_user_id": "u-9"}},
		domain.RecommendedAction{Title: "Call the bank", ActionType: "call_bank", Payload: map[string]any{}},
	)
	high, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.NoError(t, err, "non-executable drafts skip payload validation")
	assert.False(t, high.IsExecutable)
	assert.Equal(t, "high", high.RiskLevel)

	_, err = env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: high.ID})
	var stateErr engine.InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	unknown, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[1].ID}})
	require.NoError(t, err)
	assert.False(t, unknown.IsExecutable)

	out, err := env.Engine.DiscardDraft(env.Ctx, engine.DiscardDraftOptions{DraftID: high.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusDiscarded, out.Status)
	_, err = env.Engine.DiscardDraft(env.Ctx, engine.DiscardDraftOptions{DraftID: high.ID})
	assert.ErrorAs(t, err, &stateErr)
}

func TestCreateDraftRejections(t *testing.T) {
	env := newTestEnv(t)
	in := seedInsight(t, env, domain.RecommendedAction{
		Title: "Ping the team", ActionType: engine.ActionSendDirectMessage, Payload: map[string]any{"to_user_id": "u-2"},
	})
	var verr engine.ValidationError

	_, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload", verr.Field)

	_, err = env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{Title: "Something else"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "action", verr.Field)

	_, err = env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{Role: domain.RoleCFO, SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)

	_, err = env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: "nope", Action: domain.RecommendedAction{Title: "x"}})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	ok, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{
		ID: in.Actions[0].ID, Payload: map[string]any{"to_user_id": "u-2", "text": "Stand-up moved to 10h"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Stand-up moved to 10h", ok.Payload["text"])
}

func TestConfirmScheduleMeetingDraft(t *testing.T) {
	env := newTestEnv(t)
	in := seedInsight(t, env, domain.RecommendedAction{
		Title: "Sync with finance", ActionType: engine.ActionScheduleMeeting,
		Payload: map[string]any{"title": "Backlog vs cash", "participants": []any{"coo", "cfo"}},
	})
	d, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.NoError(t, err)
	done, err := env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: d.ID, ActorID: "u-1"})
	require.NoError(t, err)

	meetings, err := env.Repo.ListMeetings(env.Ctx, repo.MeetingFilters{})
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, "action_draft", meetings[0].TriggerReason)
	assert.Equal(t, []domain.Role{domain.RoleCOO, domain.RoleCFO}, meetings[0].Participants)
	assert.Contains(t, string(done.ExecutionResult), meetings[0].ID)
}

func TestConfirmDraftEffectFailure(t *testing.T) {
	env := newTestEnv(t)
	store := &failingStore{Repo: env.Repo, failDirectMessage: true}
	env.Engine.Store = store
	env.Engine.Events.Store = store
	in := seedInsight(t, env, domain.RecommendedAction{
		Title: "Ping", ActionType: engine.ActionSendDirectMessage, Payload: map[string]any{"to_user_id": "u-2", "text": "hello"},
	})
	d, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.NoError(t, err)

	failed, err := env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: d.ID})
	var execErr *engine.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, domain.DraftStatusFailed, failed.Status)

	stored, err := env.Repo.GetDraft(env.Ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusFailed, stored.Status)
	assert.Contains(t, string(stored.ExecutionResult), "injected")
}

func TestConfirmKanbanDraftWithoutColumnsFails(t *testing.T) {
	env := newTestEnv(t)
	in := seedInsight(t, env, domain.RecommendedAction{
		Title: "Open a task", ActionType: engine.ActionCreateKanbanTask,
		Payload: map[string]any{"title": "Unblock deliveries", "stage_key": "todo"},
	})
	d, err := env.Engine.CreateDraft(env.Ctx, engine.CreateDraftOptions{SourceInsightID: in.ID, Action: domain.RecommendedAction{ID: in.Actions[0].ID}})
	require.NoError(t, err)
	require.True(t, d.IsExecutable)

	failed, err := env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: d.ID, ActorID: "u-1"})
	var execErr *engine.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, d.ID, execErr.DraftID)
	assert.Equal(t, domain.DraftStatusFailed, failed.Status)

	stored, err := env.Repo.GetDraft(env.Ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusFailed, stored.Status)
	assert.Contains(t, string(stored.ExecutionResult), "no kanban column available")

	tasks, err := env.Repo.ListRecentTasks(env.Ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "no task may be created without a board")
}

func TestConfirmRejectsExternalDraftEvenWhenExecutable(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Repo.InsertDraft(env.Ctx, domain.ActionDraft{
		Role: domain.RoleCOO, SourceInsightID: "ins-1", ActionType: engine.ActionSendDirectMessage, Title: "Call the carrier",
		Payload: map[string]any{"to_user_id": "u-2", "text": "hello"}, Fingerprint: "fp-external",
		IsExecutable: true, RequiresExternal: true, RiskLevel: "low",
	})
	require.NoError(t, err)

	_, err = env.Engine.ConfirmDraft(env.Ctx, engine.ConfirmDraftOptions{DraftID: d.ID, ActorID: "u-1"})
	var stateErr engine.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Contains(t, stateErr.Reason, "manual")

	stored, err := env.Repo.GetDraft(env.Ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusDraft, stored.Status)
	assert.Empty(t, stored.ExecutionResult)
}

func TestPutKnowledge(t *testing.T) {
	env := newTestEnv(t)
	k, err := env.Engine.PutKnowledge(env.Ctx, engine.PutKnowledgeOptions{Role: domain.RoleCMO, KnowledgeType: "fact", Key: "icp", Value: []byte(`{"segment":"smb"}`)})
	require.NoError(t, err)
	assert.Equal(t, 0.7, k.Confidence)
	assert.Equal(t, "manual", k.Source)

	require.NoError(t, env.Repo.TouchKnowledge(env.Ctx, []string{k.ID}))
	k2, err := env.Engine.PutKnowledge(env.Ctx, engine.PutKnowledgeOptions{Role: domain.RoleCMO, KnowledgeType: "fact", Key: "icp", Value: []byte(`{"segment":"mid"}`), Confidence: 0.9})
	require.NoError(t, err)
	assert.Equal(t, k.ID, k2.ID)
	assert.Equal(t, 1, k2.TimesReferenced)
	assert.JSONEq(t, `{"segment":"mid"}`, string(k2.Value))

	var verr engine.ValidationError
	_, err = env.Engine.PutKnowledge(env.Ctx, engine.PutKnowledgeOptions{Role: domain.RoleCMO, KnowledgeType: "fact", Key: "bad", Value: []byte(`{`)})
	assert.ErrorAs(t, err, &verr)
	_, err = env.Engine.PutKnowledge(env.Ctx, engine.PutKnowledgeOptions{Role: domain.RoleCMO, KnowledgeType: "fact", Key: "bad", Confidence: 1.5})
	assert.ErrorAs(t, err, &verr)

	list, err := env.Engine.ListKnowledge(env.Ctx, domain.RoleCMO, "", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

var errInjected = errors.New("injected failure")

// failingStore wraps the SQL repo and fails selected calls.
type failingStore struct {
	repo.Repo
	failDirectMessage bool
	failEvents        bool
	failStatements    bool
	failPredictions   map[string]bool
	failKnowledge     bool
}

func (s *failingStore) UpsertKnowledge(ctx context.Context, k domain.KnowledgeEntry) (domain.KnowledgeEntry, error) {
	if s.failKnowledge {
		return domain.KnowledgeEntry{}, errInjected
	}
	return s.Repo.UpsertKnowledge(ctx, k)
}

func (s *failingStore) InsertDirectMessage(ctx context.Context, m domain.DirectMessage) (domain.DirectMessage, error) {
	if s.failDirectMessage {
		return domain.DirectMessage{}, errInjected
	}
	return s.Repo.InsertDirectMessage(ctx, m)
}

func (s *failingStore) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if s.failEvents {
		return nil, errInjected
	}
	return s.Repo.ListEvents(ctx, limit)
}

func (s *failingStore) InsertStatement(ctx context.Context, st domain.MeetingStatement) (domain.MeetingStatement, error) {
	if s.failStatements {
		return domain.MeetingStatement{}, errInjected
	}
	return s.Repo.InsertStatement(ctx, st)
}

func (s *failingStore) ListPredictions(ctx context.Context, kind string, minConfidence float64, limit int) ([]domain.Prediction, error) {
	if s.failPredictions[kind] {
		return nil, errInjected
	}
	return s.Repo.ListPredictions(ctx, kind, minConfidence, limit)
}
