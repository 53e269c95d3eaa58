package server

import (
	"encoding/json"

	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/llm"
)

// Request payloads

type ChatTurn struct {
	Role    string `json:"role" enum:"user,assistant,system"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Role           string     `json:"role"`
	Message        string     `json:"message" minLength:"1"`
	ConversationID string     `json:"conversation_id,omitempty"`
	History        []ChatTurn `json:"history,omitempty"`
	IncludeMarket  bool       `json:"include_market,omitempty"`
}

type CreateMeetingRequest struct {
	Title        string   `json:"title" minLength:"1"`
	MeetingType  string   `json:"meeting_type,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Agenda       []string `json:"agenda,omitempty"`
	Priority     string   `json:"priority,omitempty"`
	ScheduledAt  string   `json:"scheduled_at,omitempty" format:"date-time"`
}

type CreateInsightRequest struct {
	Role               string                     `json:"role"`
	Category           string                     `json:"category,omitempty"`
	InsightType        string                     `json:"insight_type,omitempty"`
	Urgency            string                     `json:"urgency,omitempty"`
	ImpactLevel        string                     `json:"impact_level,omitempty"`
	Confidence         float64                    `json:"confidence,omitempty" minimum:"0" maximum:"1"`
	Title              string                     `json:"title" minLength:"1"`
	Description        string                     `json:"description,omitempty"`
	RecommendedActions []RecommendedActionInput `json:"recommended_actions,omitempty"`
}

type RecommendedActionInput struct {
	Title            string         `json:"title" minLength:"1"`
	ActionType       string         `json:"action_type" minLength:"1"`
	Payload          map[string]any `json:"payload,omitempty"`
	RiskLevel        string         `json:"risk_level,omitempty" enum:"low,medium,high,critical"`
	RequiresExternal bool           `json:"requires_external,omitempty"`
}

type ActionRef struct {
	ID      string         `json:"id,omitempty"`
	Title   string         `json:"title,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type CreateDraftRequest struct {
	Role            string    `json:"role,omitempty"`
	SourceInsightID string    `json:"source_insight_id" minLength:"1"`
	Action          ActionRef `json:"action"`
}

type PutKnowledgeRequest struct {
	Role          string  `json:"role"`
	KnowledgeType string  `json:"knowledge_type" minLength:"1"`
	Category      string  `json:"category,omitempty"`
	Key           string  `json:"key" minLength:"1"`
	Value         any     `json:"value,omitempty"`
	Confidence    float64 `json:"confidence,omitempty" minimum:"0" maximum:"1"`
	Source        string  `json:"source,omitempty"`
	SourceID      string  `json:"source_id,omitempty"`
	ValidFrom     string  `json:"valid_from,omitempty" format:"date-time"`
	ValidUntil    string  `json:"valid_until,omitempty" format:"date-time"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id" minLength:"1"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ConversationMessagesResponse struct {
	Conversation domain.Conversation  `json:"conversation"`
	Items        []domain.ChatMessage `json:"items"`
}

type MeetingRunResponse struct {
	Success bool `json:"success"`
	engine.MeetingResult
}

type itemsExecutives struct {
	Items []domain.Executive `json:"items"`
}

type itemsMeetings struct {
	Items []domain.Meeting `json:"items"`
}

type itemsStatements struct {
	Items []domain.MeetingStatement `json:"items"`
}

type itemsDecisions struct {
	Items []domain.Decision `json:"items"`
}

type itemsInsights struct {
	Items []domain.Insight `json:"items"`
}

type itemsDrafts struct {
	Items []domain.ActionDraft `json:"items"`
}

type itemsKnowledge struct {
	Items []domain.KnowledgeEntry `json:"items"`
}

// Conversion helpers

func chatHistory(turns []ChatTurn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

func recommendedActions(in []RecommendedActionInput) []domain.RecommendedAction {
	out := make([]domain.RecommendedAction, 0, len(in))
	for _, a := range in {
		out = append(out, domain.RecommendedAction{
			Title:            a.Title,
			ActionType:       a.ActionType,
			Payload:          a.Payload,
			RiskLevel:        a.RiskLevel,
			RequiresExternal: a.RequiresExternal,
		})
	}
	return out
}

func knowledgeValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
