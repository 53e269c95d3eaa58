package boardroomsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Boardroom HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Meeting runs call several models in turn, so the
// default timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 5 * time.Minute,
	}
}

// ChatReply is the answer of one executive.
type ChatReply struct {
	ConversationID string   `json:"conversation_id"`
	Reply          string   `json:"reply"`
	Provider       *string  `json:"provider"`
	Model          *string  `json:"model"`
	Sources        []string `json:"sources"`
	Missing        []string `json:"missing"`
	UsedMarket     bool     `json:"used_market"`
}

// ChatTurn is one prior message supplied as history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Role           string     `json:"role"`
	Message        string     `json:"message"`
	ConversationID string     `json:"conversation_id,omitempty"`
	History        []ChatTurn `json:"history,omitempty"`
	IncludeMarket  bool       `json:"include_market,omitempty"`
}

// Meeting represents the API meeting model (partial).
type Meeting struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Participants []string `json:"participants"`
	Agenda       []string `json:"agenda"`
}

type MeetingRequest struct {
	Title        string   `json:"title"`
	MeetingType  string   `json:"meeting_type,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Agenda       []string `json:"agenda,omitempty"`
	Priority     string   `json:"priority,omitempty"`
}

// Decision represents a recorded decision (partial).
type Decision struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProposedBy  string `json:"proposed_by"`
	MeetingID   string `json:"meeting_id,omitempty"`
	Status      string `json:"status"`
}

// MeetingResult is returned by a completed meeting run.
type MeetingResult struct {
	Success    bool     `json:"success"`
	MeetingID  string   `json:"meeting_id"`
	Summary    string   `json:"summary"`
	DecisionID string   `json:"decision_id"`
	Decision   Decision `json:"decision"`
	Statements int      `json:"statements"`
}

// Draft represents an action draft.
type Draft struct {
	ID              string          `json:"id"`
	Role            string          `json:"role"`
	SourceInsightID string          `json:"source_insight_id"`
	ActionType      string          `json:"action_type"`
	Title           string          `json:"title"`
	Payload         map[string]any  `json:"payload"`
	Status          string          `json:"status"`
	IsExecutable    bool            `json:"is_executable"`
	ExecutionResult json.RawMessage `json:"execution_result,omitempty"`
}

// ActionRef selects one recommended action of an insight, by id or title.
type ActionRef struct {
	ID      string         `json:"id,omitempty"`
	Title   string         `json:"title,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Chat asks one executive a question.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "v0/chat", req, &resp)
	return resp, err
}

// CreateMeeting schedules a meeting.
func (c *Client) CreateMeeting(ctx context.Context, req MeetingRequest) (Meeting, error) {
	var resp Meeting
	err := c.do(ctx, http.MethodPost, "v0/meetings", req, &resp)
	return resp, err
}

// RunMeeting runs a scheduled meeting to completion.
func (c *Client) RunMeeting(ctx context.Context, meetingID string) (MeetingResult, error) {
	var resp MeetingResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/meetings/%s/run", url.PathEscape(meetingID)), nil, &resp)
	return resp, err
}

// CreateDraft drafts one recommended action of an insight.
func (c *Client) CreateDraft(ctx context.Context, insightID string, action ActionRef) (Draft, error) {
	body := map[string]any{
		"source_insight_id": insightID,
		"action":            action,
	}
	var resp Draft
	err := c.do(ctx, http.MethodPost, "v0/drafts", body, &resp)
	return resp, err
}

// ConfirmDraft confirms a draft and runs its effect.
func (c *Client) ConfirmDraft(ctx context.Context, draftID string) (Draft, error) {
	var resp Draft
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/drafts/%s/confirm", url.PathEscape(draftID)), nil, &resp)
	return resp, err
}

// DiscardDraft discards an open draft.
func (c *Client) DiscardDraft(ctx context.Context, draftID string) (Draft, error) {
	var resp Draft
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/drafts/%s/discard", url.PathEscape(draftID)), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
