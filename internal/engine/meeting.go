package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"boardroom/internal/domain"
	"boardroom/internal/events"
	"boardroom/internal/llm"
	"boardroom/internal/repo"
)

type ScheduleMeetingOptions struct {
	Title         string
	MeetingType   string
	Participants  []domain.Role
	Agenda        []string
	Priority      string
	ScheduledAt   string
	InitiatedBy   string
	TriggerReason string
}

// ScheduleMeeting creates a meeting in scheduled status. Participants default to every role.
func (e Engine) ScheduleMeeting(ctx context.Context, opts ScheduleMeetingOptions) (domain.Meeting, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Meeting{}, ValidationError{Field: "title", Message: "title is required"}
	}
	participants := opts.Participants
	if len(participants) == 0 {
		participants = append([]domain.Role(nil), domain.Roles...)
	}
	seen := map[domain.Role]bool{}
	clean := make([]domain.Role, 0, len(participants))
	for _, p := range participants {
		role, err := domain.ParseRole(string(p))
		if err != nil {
			return domain.Meeting{}, ValidationError{Field: "participants", Message: err.Error()}
		}
		if !seen[role] {
			seen[role] = true
			clean = append(clean, role)
		}
	}
	agenda := make([]string, 0, len(opts.Agenda))
	for _, item := range opts.Agenda {
		if item = strings.TrimSpace(item); item != "" {
			agenda = append(agenda, item)
		}
	}
	meetingType := opts.MeetingType
	if meetingType == "" {
		meetingType = "ad_hoc"
	}
	priority := opts.Priority
	if priority == "" {
		priority = "medium"
	}
	trigger := opts.TriggerReason
	if trigger == "" {
		trigger = "manual"
	}
	m, err := e.Store.InsertMeeting(ctx, domain.Meeting{
		Title: title, MeetingType: meetingType, InitiatedBy: opts.InitiatedBy, TriggerReason: trigger,
		Participants: clean, Agenda: agenda, Status: domain.MeetingScheduled, Priority: priority, ScheduledAt: opts.ScheduledAt,
	})
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("insert meeting: %w", err)
	}
	e.Events.Append(ctx, "meeting.scheduled", "meeting", m.ID, opts.InitiatedBy, events.Payload{"participants": clean, "trigger_reason": trigger})
	return m, nil
}

type RunMeetingOptions struct {
	MeetingID string
	ActorID   string
}

type MeetingResult struct {
	MeetingID  string          `json:"meeting_id"`
	Summary    string          `json:"summary"`
	DecisionID string          `json:"decision_id"`
	Decision   domain.Decision `json:"decision"`
	Statements int             `json:"statements"`
}

// RunMeeting lets each participant speak in turn, then has the synthesizer close with a
// decision. On failure the meeting goes back to scheduled and a *MeetingError is returned.
func (e Engine) RunMeeting(ctx context.Context, opts RunMeetingOptions) (MeetingResult, error) {
	m, err := e.Store.GetMeeting(ctx, opts.MeetingID)
	if err != nil {
		return MeetingResult{}, err
	}
	if m.Status != domain.MeetingScheduled {
		return MeetingResult{}, InvalidStateError{Entity: "meeting", ID: m.ID, Reason: "status is " + m.Status}
	}
	execs := e.resolveParticipants(ctx, m.Participants)
	if len(execs) == 0 {
		return MeetingResult{}, ValidationError{Field: "participants", Message: "no known executive among the meeting participants"}
	}
	execs = OrderParticipants(execs, e.cfg().Meeting.Synthesizer)

	ctx, span := tracer.Start(ctx, "engine.RunMeeting", trace.WithAttributes(attribute.String("meeting_id", m.ID), attribute.Int("participants", len(execs))))
	defer span.End()

	if err := e.Store.StartMeeting(ctx, m.ID, e.nowString()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return MeetingResult{}, InvalidStateError{Entity: "meeting", ID: m.ID, Reason: "already running"}
		}
		return MeetingResult{}, fmt.Errorf("start meeting: %w", err)
	}
	e.Events.Append(ctx, "meeting.started", "meeting", m.ID, opts.ActorID, events.Payload{"participants": len(execs)})

	res, err := e.safeConductMeeting(ctx, m, execs, opts.ActorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "meeting failed")
		if rerr := e.Store.RevertMeeting(context.WithoutCancel(ctx), m.ID); rerr != nil {
			e.log().Error("meeting revert failed", zap.String("meeting_id", m.ID), zap.Error(rerr))
		}
		configured := e.providersConfigured() && !errors.Is(err, llm.ErrNoProvider)
		hint := hintMeetingFailed
		if !configured {
			hint = hintMeetingConfig
		}
		e.log().Warn("meeting failed", zap.String("meeting_id", m.ID), zap.Error(err))
		e.Events.Append(context.WithoutCancel(ctx), "meeting.failed", "meeting", m.ID, opts.ActorID, events.Payload{"error": err.Error()})
		return MeetingResult{}, &MeetingError{MeetingID: m.ID, Hint: hint, ProvidersConfigured: configured, Err: err}
	}
	return res, nil
}

// safeConductMeeting turns a panic during the run into an error so the caller still reverts.
func (e Engine) safeConductMeeting(ctx context.Context, m domain.Meeting, execs []domain.Executive, actorID string) (res MeetingResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.log().Error("meeting run panicked", zap.String("meeting_id", m.ID), zap.Any("panic", p), zap.Stack("stack"))
			res, err = MeetingResult{}, fmt.Errorf("meeting run panicked: %v", p)
		}
	}()
	return e.conductMeeting(ctx, m, execs, actorID)
}

func (e Engine) resolveParticipants(ctx context.Context, roles []domain.Role) []domain.Executive {
	var out []domain.Executive
	seen := map[domain.Role]bool{}
	for _, role := range roles {
		if !role.Valid() || seen[role] {
			continue
		}
		seen[role] = true
		ex, err := e.Store.GetExecutive(ctx, role)
		if err != nil {
			e.log().Warn("meeting participant dropped", zap.String("role", string(role)), zap.Error(err))
			continue
		}
		out = append(out, ex)
	}
	return out
}

// OrderParticipants moves the synthesizer to the end, keeping everyone else in order.
func OrderParticipants(execs []domain.Executive, synthesizer domain.Role) []domain.Executive {
	out := append([]domain.Executive(nil), execs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Role != synthesizer && out[j].Role == synthesizer
	})
	return out
}

func (e Engine) conductMeeting(ctx context.Context, m domain.Meeting, execs []domain.Executive, actorID string) (MeetingResult, error) {
	cfg := e.cfg().Meeting
	var (
		transcript []domain.MeetingStatement
		lastErr    error
	)
	for _, ex := range execs {
		execCtx, err := e.BuildContext(ctx, FullContext(ex.Role, actorID))
		if err != nil {
			return MeetingResult{}, err
		}
		data, _ := json.Marshal(execCtx)
		resp, err := e.Generator.Generate(ctx, llm.Request{
			Task:        TaskForRole(ex.Role),
			System:      ex.SystemPrompt + "\n\n" + advisoryPreamble + "\n\n" + meetingInstructions(cfg.StatementMaxLines),
			Messages:    []llm.Message{{Role: "user", Content: meetingBrief(m, transcript) + "\n\nYour context (JSON):\n" + Truncate(string(data), cfg.ContextChars)}},
			Temperature: cfg.StatementTemperature,
			MaxTokens:   cfg.StatementMaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return MeetingResult{}, ctx.Err()
			}
			lastErr = err
			e.log().Warn("meeting statement skipped", zap.String("meeting_id", m.ID), zap.String("role", string(ex.Role)), zap.Error(err))
			continue
		}
		content := CapLines(strings.TrimSpace(resp.Text), cfg.StatementMaxLines)
		if content == "" {
			continue
		}
		presented, _ := json.Marshal(map[string]any{
			"used_market": false, "missing": execCtx.Missing, "predictions_count": len(execCtx.Predictions),
		})
		st, err := e.Store.InsertStatement(ctx, domain.MeetingStatement{
			MeetingID: m.ID, Role: ex.Role, MessageType: domain.StatementTypeStatement, Content: content, DataPresented: presented, Confidence: 0.75,
		})
		if err != nil {
			return MeetingResult{}, fmt.Errorf("save statement: %w", err)
		}
		transcript = append(transcript, st)
	}
	if len(transcript) == 0 {
		if lastErr == nil {
			lastErr = errors.New("every participant returned an empty statement")
		}
		return MeetingResult{}, fmt.Errorf("no statements produced: %w", lastErr)
	}

	synth := execs[len(execs)-1]
	resp, err := e.Generator.Generate(ctx, llm.Request{
		Task:        llm.TaskStrategy,
		System:      synth.SystemPrompt + "\n\n" + advisoryPreamble + "\n\n" + synthesisInstructions,
		Messages:    []llm.Message{{Role: "user", Content: meetingBrief(m, transcript)}},
		Temperature: cfg.SynthesisTemperature,
		MaxTokens:   cfg.SynthesisMaxTokens,
		JSON:        true,
	})
	if err != nil {
		return MeetingResult{}, fmt.Errorf("synthesis: %w", err)
	}
	summary, decision := ParseSynthesis(resp.Text, m.Title)
	decision.ID = uuid.NewString()
	decision.ProposedBy = synth.Role
	decision.MeetingID = m.ID

	presented, _ := json.Marshal(map[string]any{"decision": decision})
	completedAt := e.nowString()
	saved, err := e.Store.CompleteMeeting(ctx, repo.MeetingOutcome{
		MeetingID: m.ID,
		Decision:  decision,
		Summary: domain.MeetingStatement{
			Role: synth.Role, MessageType: domain.StatementTypeSummary, Content: summary, DataPresented: presented, Confidence: 0.8,
		},
		CompletedAt: completedAt,
	})
	if err != nil {
		return MeetingResult{}, fmt.Errorf("complete meeting: %w", err)
	}

	e.propagateDecision(ctx, m, execs, summary, saved, completedAt)
	e.Events.Append(ctx, "meeting.completed", "meeting", m.ID, actorID, events.Payload{"decision_id": saved.ID, "statements": len(transcript)})
	e.Events.Audit(ctx, synth.Role, actorID, "meeting.run", "meeting", m.ID, events.Payload{"decision_id": saved.ID})
	return MeetingResult{MeetingID: m.ID, Summary: summary, DecisionID: saved.ID, Decision: saved, Statements: len(transcript)}, nil
}

func meetingBrief(m domain.Meeting, transcript []domain.MeetingStatement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting: %s\nType: %s\n", m.Title, m.MeetingType)
	if len(m.Agenda) > 0 {
		b.WriteString("Agenda:\n")
		for _, item := range m.Agenda {
			b.WriteString("- " + item + "\n")
		}
	}
	if len(transcript) == 0 {
		b.WriteString("\nYou speak first.")
		return b.String()
	}
	b.WriteString("\nStatements so far:\n")
	for _, st := range transcript {
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(st.Role)), st.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseSynthesis reads the synthesizer's JSON leniently, filling defaults for anything missing.
func ParseSynthesis(text, meetingTitle string) (string, domain.Decision) {
	root := gjson.Parse(llm.ExtractJSON(text))
	summary := strings.TrimSpace(root.Get("summary").String())
	if summary == "" {
		summary = "Synthesis unavailable."
	}
	dec := root.Get("decision")
	str := func(path, fallback string) string {
		if v := strings.TrimSpace(dec.Get(path).String()); v != "" {
			return v
		}
		return fallback
	}
	raw := func(path string) json.RawMessage {
		v := dec.Get(path)
		if !v.Exists() || v.Type == gjson.Null {
			return nil
		}
		return json.RawMessage(v.Raw)
	}
	d := domain.Decision{
		DecisionType:          str("decision_type", "strategy"),
		Category:              str("category", "general"),
		Title:                 str("title", "Decision: "+meetingTitle),
		Description:           str("description", summary),
		Rationale:             str("rationale", ""),
		ChosenOption:          str("chosen_option", ""),
		OptionsConsidered:     raw("options_considered"),
		ExpectedImpact:        raw("expected_impact"),
		SuccessMetrics:        raw("success_metrics"),
		ImplementationPlan:    raw("implementation_plan"),
		HumanApprovalRequired: dec.Get("human_approval_required").Type != gjson.False,
		Status:                "proposed",
		ApprovedBy:            []string{},
	}
	return summary, d
}

func (e Engine) propagateDecision(ctx context.Context, m domain.Meeting, execs []domain.Executive, summary string, d domain.Decision, capturedAt string) {
	roles := make([]domain.Role, 0, len(execs))
	for _, ex := range execs {
		roles = append(roles, ex.Role)
	}
	value, err := json.Marshal(map[string]any{
		"meeting_id": m.ID, "title": m.Title, "type": m.MeetingType, "agenda": m.Agenda,
		"participants_roles": roles, "summary": summary, "decision": d, "captured_at": capturedAt,
	})
	if err != nil {
		e.log().Warn("decision memory encode failed", zap.String("meeting_id", m.ID), zap.Error(err))
		return
	}
	for _, role := range roles {
		_, err := e.Store.UpsertKnowledge(ctx, domain.KnowledgeEntry{
			Role: role, KnowledgeType: "decision", Category: d.Category, Key: "decision:" + d.ID,
			Value: value, Confidence: 0.9, Source: "meetings", SourceID: m.ID, ValidFrom: capturedAt,
		})
		if err != nil {
			e.log().Warn("decision memory not saved", zap.String("meeting_id", m.ID), zap.String("role", string(role)), zap.Error(err))
		}
	}
}
