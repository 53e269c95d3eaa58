package engine_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/llm"
	"boardroom/internal/repo"
)

const synthesisJSON = "```json\n" + `{"summary":"Hold hiring, chase receivables.","decision":{"decision_type":"financial","category":"cash","title":"Collect overdue invoices","description":"Focus on the top 5 debtors.","human_approval_required":false,"success_metrics":["DSO below 40"]}}` + "\n```"

func meetingReply(req llm.Request) (llm.Response, error) {
	if req.JSON {
		return llm.Response{Provider: "fake", Model: "fake-1", Text: synthesisJSON}, nil
	}
	var lines []string
	for i := 1; i <= 20; i++ {
		lines = append(lines, fmt.Sprintf("point %d", i))
	}
	return llm.Response{Provider: "fake", Model: "fake-1", Text: strings.Join(lines, "\n\n")}, nil
}

func TestRunMeetingCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = meetingReply
	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{
		Title:        "Cash review",
		Participants: []domain.Role{domain.RoleCEO, domain.RoleCFO, domain.RoleCOO, domain.RoleCFO},
		Agenda:       []string{"receivables", " "},
		InitiatedBy:  "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleCEO, domain.RoleCFO, domain.RoleCOO}, m.Participants)
	assert.Equal(t, []string{"receivables"}, m.Agenda)
	assert.Equal(t, "ad_hoc", m.MeetingType)
	assert.Equal(t, "manual", m.TriggerReason)

	res, err := env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID, ActorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "Hold hiring, chase receivables.", res.Summary)
	assert.Equal(t, 3, res.Statements)
	assert.Equal(t, "Collect overdue invoices", res.Decision.Title)
	assert.False(t, res.Decision.HumanApprovalRequired)
	assert.Equal(t, domain.RoleCEO, res.Decision.ProposedBy)

	stmts, err := env.Repo.ListStatements(env.Ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, stmts, 4)
	order := []domain.Role{domain.RoleCFO, domain.RoleCOO, domain.RoleCEO, domain.RoleCEO}
	for i, st := range stmts {
		assert.Equal(t, i+1, st.Seq)
		assert.Equal(t, order[i], st.Role)
	}
	assert.Len(t, strings.Split(stmts[0].Content, "\n"), 12)
	assert.Equal(t, domain.StatementTypeSummary, stmts[3].MessageType)

	calls := env.Gen.calls()
	require.Len(t, calls, 4)
	assert.Contains(t, calls[1].Messages[0].Content, "[CFO] point 1")
	assert.True(t, calls[3].JSON)
	assert.Equal(t, llm.TaskStrategy, calls[3].Task)

	done, err := env.Repo.GetMeeting(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingCompleted, done.Status)
	assert.Equal(t, res.Summary, done.OutcomeSummary)
	require.Len(t, done.DecisionsMade, 1)
	assert.Equal(t, res.DecisionID, done.DecisionsMade[0].DecisionID)

	for _, role := range []domain.Role{domain.RoleCEO, domain.RoleCFO, domain.RoleCOO} {
		k, err := env.Repo.GetKnowledge(env.Ctx, role, "decision", "decision:"+res.DecisionID)
		require.NoError(t, err, role)
		assert.Equal(t, "meetings", k.Source)
		assert.Equal(t, "cash", k.Category)
		assert.Equal(t, res.Decision.Category, k.Category)
		assert.NotEmpty(t, k.ValidFrom)
		var v map[string]any
		require.NoError(t, json.Unmarshal(k.Value, &v))
		assert.Equal(t, m.ID, v["meeting_id"])
	}
	_, err = env.Repo.GetKnowledge(env.Ctx, domain.RoleCTO, "decision", "decision:"+res.DecisionID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	var stateErr engine.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestRunMeetingRevertsWhenEveryStatementFails(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = func(llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("upstream 502")
	}
	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Weekly", Participants: []domain.Role{domain.RoleCTO}})
	require.NoError(t, err)

	_, err = env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	var merr *engine.MeetingError
	require.ErrorAs(t, err, &merr)
	assert.True(t, merr.ProvidersConfigured)
	assert.Equal(t, "Failed to run the meeting now. Try again.", merr.Hint)

	back, err := env.Repo.GetMeeting(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingScheduled, back.Status)
	assert.Empty(t, back.StartedAt)
}

func TestRunMeetingWithoutProviders(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.disabled = true
	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Weekly"})
	require.NoError(t, err)
	assert.Len(t, m.Participants, len(domain.Roles))

	_, err = env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	var merr *engine.MeetingError
	require.ErrorAs(t, err, &merr)
	assert.False(t, merr.ProvidersConfigured)
	assert.Contains(t, merr.Hint, "not configured")
	assert.ErrorIs(t, err, llm.ErrNoProvider)
}

func TestRunMeetingUnknownAndInvalid(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: "missing"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "x", Participants: []domain.Role{"cio"}})
	var verr engine.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "  "})
	assert.ErrorAs(t, err, &verr)
}

func TestRunMeetingSynthesisFallbacks(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = func(req llm.Request) (llm.Response, error) {
		if req.JSON {
			return llm.Response{Provider: "fake", Text: "I could not decide."}, nil
		}
		return llm.Response{Provider: "fake", Text: "We are on track."}, nil
	}
	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Roadmap", Participants: []domain.Role{domain.RoleCTO, domain.RoleCMO}})
	require.NoError(t, err)
	res, err := env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, "Synthesis unavailable.", res.Summary)
	assert.Equal(t, "Decision: Roadmap", res.Decision.Title)
	assert.True(t, res.Decision.HumanApprovalRequired)
	// no ceo among participants, so the last speaker closes
	assert.Equal(t, domain.RoleCMO, res.Decision.ProposedBy)
}

func TestRunMeetingRevertsAfterPanic(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = func(req llm.Request) (llm.Response, error) {
		if req.JSON {
			panic("provider sdk blew up")
		}
		return meetingReply(req)
	}
	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Budget", Participants: []domain.Role{domain.RoleCFO, domain.RoleCEO}})
	require.NoError(t, err)

	var runErr error
	require.NotPanics(t, func() {
		_, runErr = env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	})
	var merr *engine.MeetingError
	require.ErrorAs(t, runErr, &merr)
	assert.True(t, merr.ProvidersConfigured)
	assert.Equal(t, "Failed to run the meeting now. Try again.", merr.Hint)
	assert.Contains(t, runErr.Error(), "provider sdk blew up")

	back, err := env.Repo.GetMeeting(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingScheduled, back.Status)

	env.Gen.reply = meetingReply
	res, err := env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	require.NoError(t, err, "a reverted meeting can be run again")
	assert.NotEmpty(t, res.DecisionID)
}

func TestRunMeetingSurvivesKnowledgePropagationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = meetingReply
	env.Engine.Store = &failingStore{Repo: env.Repo, failKnowledge: true}
	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Cash review", Participants: []domain.Role{domain.RoleCFO, domain.RoleCEO}})
	require.NoError(t, err)

	res, err := env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DecisionID)

	done, err := env.Repo.GetMeeting(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingCompleted, done.Status)
	decisions, err := env.Engine.ListDecisions(env.Ctx, "", m.ID, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	_, err = env.Repo.GetKnowledge(env.Ctx, domain.RoleCFO, "decision", "decision:"+res.DecisionID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestKnowledgeUsageGrowsOnlyFromTouchingContexts(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.reply = meetingReply
	k, err := env.Repo.UpsertKnowledge(env.Ctx, domain.KnowledgeEntry{Role: domain.RoleCOO, KnowledgeType: "fact", Key: "sla", Value: []byte(`{"hours":48}`)})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.Repo.TouchKnowledge(env.Ctx, []string{k.ID}))
	}
	counter := func() int {
		t.Helper()
		got, err := env.Repo.GetKnowledge(env.Ctx, domain.RoleCOO, "fact", "sla")
		require.NoError(t, err)
		return got.TimesReferenced
	}
	require.Equal(t, 5, counter())

	opts := engine.FullContext(domain.RoleCOO, "tester")
	opts.TouchKnowledge = true
	for i := 0; i < 3; i++ {
		c, err := env.Engine.BuildContext(env.Ctx, opts)
		require.NoError(t, err)
		require.NotEmpty(t, c.Data.Knowledge)
	}
	assert.Equal(t, 8, counter())

	m, err := env.Engine.ScheduleMeeting(env.Ctx, engine.ScheduleMeetingOptions{Title: "Ops", Participants: []domain.Role{domain.RoleCOO, domain.RoleCEO}})
	require.NoError(t, err)
	_, err = env.Engine.RunMeeting(env.Ctx, engine.RunMeetingOptions{MeetingID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, 8, counter(), "meeting contexts leave usage untouched")
}

func TestOrderParticipantsSynthesizerLast(t *testing.T) {
	execs := []domain.Executive{{Role: domain.RoleCEO}, {Role: domain.RoleCFO}, {Role: domain.RoleCTO}}
	got := engine.OrderParticipants(execs, domain.RoleCEO)
	assert.Equal(t, []domain.Role{domain.RoleCFO, domain.RoleCTO, domain.RoleCEO}, roles(got))
	assert.Equal(t, domain.RoleCEO, execs[0].Role, "input must not be reordered")
}

func roles(execs []domain.Executive) []domain.Role {
	out := make([]domain.Role, 0, len(execs))
	for _, e := range execs {
		out = append(out, e.Role)
	}
	return out
}

