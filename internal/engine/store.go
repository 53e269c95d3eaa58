package engine

import (
	"context"
	"encoding/json"

	"boardroom/internal/domain"
	"boardroom/internal/repo"
)

// Store is the persistence the engine needs. repo.Repo implements it.
type Store interface {
	GetExecutive(ctx context.Context, role domain.Role) (domain.Executive, error)
	ListExecutives(ctx context.Context) ([]domain.Executive, error)
	UpsertExecutive(ctx context.Context, e domain.Executive) (domain.Executive, error)
	EnsureExecutive(ctx context.Context, e domain.Executive) (bool, error)

	ListEvents(ctx context.Context, limit int) ([]domain.Event, error)
	InsertEvent(ctx context.Context, e domain.Event) error
	InsertAudit(ctx context.Context, a domain.AuditEntry) error
	ListRecentTasks(ctx context.Context, limit int) ([]domain.KanbanTask, error)
	InsertKanbanTask(ctx context.Context, t domain.KanbanTask) (domain.KanbanTask, error)
	ResolveKanbanColumn(ctx context.Context, boardID, stageKey string) (domain.KanbanColumn, error)
	ListOverdueInvoices(ctx context.Context, asOf string, limit int) ([]domain.Invoice, error)
	ListPendingRequests(ctx context.Context, limit int) ([]domain.EmployeeRequest, error)
	ListPredictions(ctx context.Context, kind string, minConfidence float64, limit int) ([]domain.Prediction, error)
	InsertDirectMessage(ctx context.Context, m domain.DirectMessage) (domain.DirectMessage, error)

	ListKnowledge(ctx context.Context, f repo.KnowledgeFilters) ([]domain.KnowledgeEntry, error)
	UpsertKnowledge(ctx context.Context, k domain.KnowledgeEntry) (domain.KnowledgeEntry, error)
	TouchKnowledge(ctx context.Context, ids []string) error

	ListDecisions(ctx context.Context, f repo.DecisionFilters) ([]domain.Decision, error)
	ListResearch(ctx context.Context, role domain.Role, limit int) ([]domain.ResearchRecord, error)
	InsertResearch(ctx context.Context, rec domain.ResearchRecord) (domain.ResearchRecord, error)

	InsertMeeting(ctx context.Context, m domain.Meeting) (domain.Meeting, error)
	GetMeeting(ctx context.Context, id string) (domain.Meeting, error)
	ListMeetings(ctx context.Context, f repo.MeetingFilters) ([]domain.Meeting, error)
	StartMeeting(ctx context.Context, id, startedAt string) error
	RevertMeeting(ctx context.Context, id string) error
	CompleteMeeting(ctx context.Context, out repo.MeetingOutcome) (domain.Decision, error)
	InsertStatement(ctx context.Context, s domain.MeetingStatement) (domain.MeetingStatement, error)
	ListStatements(ctx context.Context, meetingID string) ([]domain.MeetingStatement, error)

	InsertInsight(ctx context.Context, in domain.Insight) (domain.Insight, error)
	GetInsight(ctx context.Context, id string) (domain.Insight, error)
	ListInsights(ctx context.Context, f repo.InsightFilters) ([]domain.Insight, error)

	InsertDraft(ctx context.Context, d domain.ActionDraft) (domain.ActionDraft, error)
	GetDraft(ctx context.Context, id string) (domain.ActionDraft, error)
	FindOpenDraft(ctx context.Context, fingerprint string) (domain.ActionDraft, error)
	ListDrafts(ctx context.Context, f repo.DraftFilters) ([]domain.ActionDraft, error)
	TransitionDraft(ctx context.Context, t repo.DraftTransition) (domain.ActionDraft, error)
	SetDraftResult(ctx context.Context, id, status string, result json.RawMessage) (domain.ActionDraft, error)

	InsertConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	InsertChatMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error)
	ListChatMessages(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error)

	InsertAPIKey(ctx context.Context, key domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error)
	ActorPermissions(ctx context.Context, actorID string) ([]string, error)
	GrantPermission(ctx context.Context, actorID, perm string) error
	RevokePermission(ctx context.Context, actorID, perm string) error
}

var _ Store = repo.Repo{}
