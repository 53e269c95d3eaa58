package engine

import (
	"context"
	"strings"

	"boardroom/internal/domain"
	"boardroom/internal/llm"
	"boardroom/internal/repo"
	"boardroom/internal/research"
)

func (e Engine) ListExecutives(ctx context.Context) ([]domain.Executive, error) {
	return e.Store.ListExecutives(ctx)
}

func (e Engine) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	return e.Store.GetMeeting(ctx, id)
}

func (e Engine) ListMeetings(ctx context.Context, status string, limit int) ([]domain.Meeting, error) {
	switch status {
	case "", domain.MeetingScheduled, domain.MeetingRunning, domain.MeetingCompleted:
	default:
		return nil, ValidationError{Field: "status", Message: "status must be scheduled, running or completed"}
	}
	return e.Store.ListMeetings(ctx, repo.MeetingFilters{Status: status, Limit: limit})
}

// ListStatements returns a meeting's transcript in speaking order.
func (e Engine) ListStatements(ctx context.Context, meetingID string) ([]domain.MeetingStatement, error) {
	if _, err := e.Store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	return e.Store.ListStatements(ctx, meetingID)
}

func (e Engine) ListDecisions(ctx context.Context, proposedBy domain.Role, meetingID string, limit int) ([]domain.Decision, error) {
	if proposedBy != "" && !proposedBy.Valid() {
		return nil, ValidationError{Field: "role", Message: "unknown role " + string(proposedBy)}
	}
	return e.Store.ListDecisions(ctx, repo.DecisionFilters{ProposedBy: proposedBy, MeetingID: meetingID, Limit: limit})
}

func (e Engine) ListInsights(ctx context.Context, role domain.Role, status string, limit int) ([]domain.Insight, error) {
	if role != "" && !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "unknown role " + string(role)}
	}
	return e.Store.ListInsights(ctx, repo.InsightFilters{Role: role, Status: status, Limit: limit})
}

func (e Engine) ListDrafts(ctx context.Context, role domain.Role, status string, limit int) ([]domain.ActionDraft, error) {
	if role != "" && !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "unknown role " + string(role)}
	}
	return e.Store.ListDrafts(ctx, repo.DraftFilters{Role: role, Status: status, Limit: limit})
}

// ConversationMessages returns the most recent messages of a conversation, oldest first.
func (e Engine) ConversationMessages(ctx context.Context, conversationID string, limit int) (domain.Conversation, []domain.ChatMessage, error) {
	conv, err := e.Store.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	msgs, err := e.Store.ListChatMessages(ctx, conv.ID, limit)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

type ProviderReport struct {
	Generation []llm.ProviderStatus `json:"generation"`
	Research   research.Status      `json:"research"`
}

// Providers reports which generation and research integrations are usable.
func (e Engine) Providers() ProviderReport {
	out := ProviderReport{Generation: []llm.ProviderStatus{}, Research: e.Research.Status()}
	if s, ok := e.Generator.(interface{ Status() []llm.ProviderStatus }); ok {
		out.Generation = s.Status()
	}
	return out
}
