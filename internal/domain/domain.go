package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is fixed-width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Role identifies one executive persona.
type Role string

const (
	RoleCEO  Role = "ceo"
	RoleCFO  Role = "cfo"
	RoleCOO  Role = "coo"
	RoleCCO  Role = "cco"
	RoleCMO  Role = "cmo"
	RoleCTO  Role = "cto"
	RoleCHRO Role = "chro"
)

// Roles lists every executive role in canonical order.
var Roles = []Role{RoleCEO, RoleCFO, RoleCOO, RoleCCO, RoleCMO, RoleCTO, RoleCHRO}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalizes user input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// Prediction kinds produced by the predictive collaborator.
const (
	KindPaymentRisk    = "payment_risk"
	KindChurn          = "churn"
	KindRevenue        = "revenue"
	KindLTV            = "ltv"
	KindDemandCapacity = "demand_capacity"
	KindDelay          = "delay"
	KindBudgetOverrun  = "budget_overrun"
	KindConversion     = "conversion"
	KindPerformance    = "performance"
)

type Executive struct {
	Role         Role   `json:"role"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	SystemPrompt string `json:"system_prompt"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

type KanbanTask struct {
	ID          string `json:"id"`
	BoardID     string `json:"board_id,omitempty"`
	ColumnID    string `json:"column_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority" enum:"low,medium,high,urgent"`
	Area        string `json:"area,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type KanbanColumn struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Name     string `json:"name"`
	StageKey string `json:"stage_key,omitempty"`
	Position int    `json:"position"`
}

type Invoice struct {
	ID        string  `json:"id"`
	ClientID  string  `json:"client_id,omitempty"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	DueDate   string  `json:"due_date"`
	PaidAt    string  `json:"paid_at,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type EmployeeRequest struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Prediction struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	EntityName string          `json:"entity_name,omitempty"`
	Value      float64         `json:"value"`
	Confidence float64         `json:"confidence" minimum:"0" maximum:"100"`
	Factors    json.RawMessage `json:"factors,omitempty"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

// KnowledgeEntry is a per-role fact or remembered outcome.
type KnowledgeEntry struct {
	ID              string          `json:"id"`
	Role            Role            `json:"role"`
	KnowledgeType   string          `json:"knowledge_type"`
	Category        string          `json:"category,omitempty"`
	Key             string          `json:"key"`
	Value           json.RawMessage `json:"value"`
	Confidence      float64         `json:"confidence"`
	Source          string          `json:"source,omitempty"`
	SourceID        string          `json:"source_id,omitempty"`
	ValidFrom       string          `json:"valid_from,omitempty" format:"date-time"`
	ValidUntil      string          `json:"valid_until,omitempty" format:"date-time"`
	TimesReferenced int             `json:"times_referenced"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

type ResearchRecord struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Query     string   `json:"query"`
	Purpose   string   `json:"purpose,omitempty"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// Meeting lifecycle statuses.
const (
	MeetingScheduled = "scheduled"
	MeetingRunning   = "running"
	MeetingCompleted = "completed"
)

type DecisionRef struct {
	DecisionID string `json:"decision_id"`
	Title      string `json:"title"`
}

type Meeting struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	MeetingType    string        `json:"meeting_type"`
	InitiatedBy    string        `json:"initiated_by,omitempty"`
	TriggerReason  string        `json:"trigger_reason,omitempty"`
	Participants   []Role        `json:"participants"`
	Agenda         []string      `json:"agenda"`
	Status         string        `json:"status" enum:"scheduled,running,completed"`
	Priority       string        `json:"priority,omitempty"`
	ScheduledAt    string        `json:"scheduled_at,omitempty" format:"date-time"`
	StartedAt      string        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    string        `json:"completed_at,omitempty" format:"date-time"`
	OutcomeSummary string        `json:"outcome_summary,omitempty"`
	DecisionsMade  []DecisionRef `json:"decisions_made"`
	CreatedAt      string        `json:"created_at" format:"date-time"`
	UpdatedAt      string        `json:"updated_at" format:"date-time"`
}

// Statement message types.
const (
	StatementTypeStatement = "statement"
	StatementTypeSummary   = "summary"
)

type MeetingStatement struct {
	ID            string          `json:"id"`
	MeetingID     string          `json:"meeting_id"`
	Seq           int             `json:"seq"`
	Role          Role            `json:"role"`
	MessageType   string          `json:"message_type" enum:"statement,summary"`
	Content       string          `json:"content"`
	DataPresented json.RawMessage `json:"data_presented,omitempty"`
	Confidence    float64         `json:"confidence"`
	CreatedAt     string          `json:"created_at" format:"date-time"`
}

type Decision struct {
	ID                    string          `json:"id"`
	DecisionType          string          `json:"decision_type"`
	Category              string          `json:"category"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	ProposedBy            Role            `json:"proposed_by"`
	ApprovedBy            []string        `json:"approved_by"`
	MeetingID             string          `json:"meeting_id,omitempty"`
	OptionsConsidered     json.RawMessage `json:"options_considered,omitempty"`
	ChosenOption          string          `json:"chosen_option,omitempty"`
	Rationale             string          `json:"rationale,omitempty"`
	ExpectedImpact        json.RawMessage `json:"expected_impact,omitempty"`
	SuccessMetrics        json.RawMessage `json:"success_metrics,omitempty"`
	ImplementationPlan    json.RawMessage `json:"implementation_plan,omitempty"`
	Status                string          `json:"status"`
	HumanApprovalRequired bool            `json:"human_approval_required"`
	CreatedAt             string          `json:"created_at" format:"date-time"`
	UpdatedAt             string          `json:"updated_at" format:"date-time"`
}

// RecommendedAction is one step an insight suggests.
type RecommendedAction struct {
	ID               string         `json:"id,omitempty"`
	Title            string         `json:"title"`
	ActionType       string         `json:"action_type"`
	Payload          map[string]any `json:"payload,omitempty"`
	RiskLevel        string         `json:"risk_level,omitempty" enum:"low,medium,high,critical"`
	RequiresExternal bool           `json:"requires_external"`
}

type Insight struct {
	ID          string              `json:"id"`
	Role        Role                `json:"role"`
	Category    string              `json:"category"`
	InsightType string              `json:"insight_type"`
	Urgency     string              `json:"urgency,omitempty"`
	ImpactLevel string              `json:"impact_level,omitempty"`
	Confidence  float64             `json:"confidence"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Actions     []RecommendedAction `json:"recommended_actions"`
	Status      string              `json:"status"`
	CreatedAt   string              `json:"created_at" format:"date-time"`
}

// Draft statuses.
const (
	DraftStatusDraft     = "draft"
	DraftStatusExecuted  = "executed"
	DraftStatusDiscarded = "discarded"
	DraftStatusFailed    = "failed"
)

type ActionDraft struct {
	ID               string          `json:"id"`
	Role             Role            `json:"role"`
	SourceInsightID  string          `json:"source_insight_id"`
	ActionType       string          `json:"action_type"`
	Title            string          `json:"title"`
	Payload          map[string]any  `json:"payload"`
	Fingerprint      string          `json:"fingerprint"`
	Status           string          `json:"status" enum:"draft,executed,discarded,failed"`
	IsExecutable     bool            `json:"is_executable"`
	RequiresExternal bool            `json:"requires_external"`
	RiskLevel        string          `json:"risk_level,omitempty"`
	ExecutionResult  json.RawMessage `json:"execution_result,omitempty"`
	ExecutedAt       string          `json:"executed_at,omitempty" format:"date-time"`
	CreatedBy        string          `json:"created_by,omitempty"`
	CreatedAt        string          `json:"created_at" format:"date-time"`
	UpdatedAt        string          `json:"updated_at" format:"date-time"`
}

type Conversation struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	UserID    string `json:"user_id,omitempty"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Chat message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

type ChatMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Sender         string          `json:"sender" enum:"user,assistant,system"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ProcessingMS   int64           `json:"processing_ms,omitempty"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
}

type DirectMessage struct {
	ID         string `json:"id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type AuditEntry struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ContextData is the data bag of an ExecutiveContext.
type ContextData struct {
	Executive       *Executive        `json:"executive"`
	EventLog        []Event           `json:"event_log"`
	RecentTasks     []KanbanTask      `json:"recent_tasks"`
	OverdueInvoices []Invoice         `json:"overdue_invoices"`
	PendingRequests []EmployeeRequest `json:"pending_requests"`
	Knowledge       []KnowledgeEntry  `json:"knowledge"`
	RecentDecisions []Decision        `json:"recent_decisions"`
	RecentResearch  []ResearchRecord  `json:"recent_research"`
}

// ExecutiveContext is the bounded per-call aggregation of signals for one role.
type ExecutiveContext struct {
	GeneratedAt string       `json:"generated_at" format:"date-time"`
	Role        Role         `json:"role"`
	Predictions []Prediction `json:"predictions"`
	Data        ContextData  `json:"data"`
	Missing     []string     `json:"missing"`
}
