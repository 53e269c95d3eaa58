package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/engine/auth"
	"boardroom/internal/llm"
	"boardroom/internal/logging"
	"boardroom/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"meeting_failed"`
	Message string         `json:"message" example:"meeting could not be completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"meeting_id\":\"6f1c\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError is the JSON error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Boardroom API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine.Store == nil {
		return nil, errors.New("server: engine store required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	logger := logging.OrNop(cfg.Logger)

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Boardroom API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{e: cfg.Engine, log: logger}
	registerDocs(router, basePath)
	registerHealth(group)
	registerProviders(group, h)
	registerExecutives(group, h)
	registerChat(group, h)
	registerMeetings(group, h)
	registerDecisions(group, h)
	registerInsights(group, h)
	registerDrafts(group, h)
	registerKnowledge(group, h)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	e   engine.Engine
	log *zap.Logger
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Error(), details)
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", ise.Error(), map[string]any{"entity": ise.Entity, "id": ise.ID})
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var me *engine.MeetingError
	if errors.As(err, &me) {
		status := http.StatusBadGateway
		if !me.ProvidersConfigured {
			status = http.StatusServiceUnavailable
		}
		return newAPIError(status, "meeting_failed", "meeting could not be completed", map[string]any{
			"hint":                 me.Hint,
			"meeting_id":           me.MeetingID,
			"providers_configured": me.ProvidersConfigured,
		})
	}
	var xe *engine.ExecutionError
	if errors.As(err, &xe) {
		return newAPIError(http.StatusBadGateway, "execution_failed", err.Error(), map[string]any{"draft_id": xe.DraftID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, llm.ErrNoProvider) {
		return newAPIError(http.StatusServiceUnavailable, "no_provider", err.Error(), nil)
	}
	h.log.Error("request failed", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func operations(item *huma.PathItem) []*huma.Operation {
	out := []*huma.Operation{}
	for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
		if op != nil {
			out = append(out, op)
		}
	}
	return out
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Boardroom API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProviders(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "providers",
		Method:      http.MethodGet,
		Path:        "/providers",
		Summary:     "Generation and research provider status",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ProviderReport `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		report := h.e.Providers()
		report.Generation = nonNilSlice(report.Generation)
		return &struct {
			Body engine.ProviderReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerExecutives(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-executives",
		Method:      http.MethodGet,
		Path:        "/executives",
		Summary:     "List executive personas",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body itemsExecutives `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		execs, err := h.e.ListExecutives(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsExecutives `json:"body"`
		}{Body: itemsExecutives{Items: nonNilSlice(execs)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "executive-context",
		Method:      http.MethodGet,
		Path:        "/executives/{role}/context",
		Summary:     "Preview the context an executive would receive",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role          string  `path:"role"`
		MinConfidence float64 `query:"min_confidence" minimum:"0" maximum:"100"`
	}) (*struct {
		Body domain.ExecutiveContext `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermRead)
		if err != nil {
			return nil, h.handleError(err)
		}
		role, perr := parseRole(input.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		opts := engine.FullContext(role, actor)
		if input.MinConfidence > 0 {
			threshold := input.MinConfidence
			opts.PredictionMinConfidence = &threshold
		}
		execCtx, err := h.e.BuildContext(ctx, opts)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.ExecutiveContext `json:"body"`
		}{Body: execCtx}, nil
	})
}

func registerChat(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "chat",
		Method:        http.MethodPost,
		Path:          "/chat",
		Summary:       "Ask one executive a question",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body engine.ChatResult `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermChat)
		if err != nil {
			return nil, h.handleError(err)
		}
		role, perr := parseRole(input.Body.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		opts := engine.ChatOptions{
			Role:           role,
			ActorID:        actor,
			Message:        input.Body.Message,
			ConversationID: input.Body.ConversationID,
			IncludeMarket:  input.Body.IncludeMarket,
		}
		if len(input.Body.History) > 0 {
			opts.History = chatHistory(input.Body.History)
		}
		res, err := h.e.Chat(ctx, opts)
		if err != nil {
			return nil, h.handleError(err)
		}
		res.Sources = nonNilSlice(res.Sources)
		res.Missing = nonNilSlice(res.Missing)
		return &struct {
			Body engine.ChatResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "conversation-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}/messages",
		Summary:     "Messages of a conversation, oldest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body ConversationMessagesResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		conv, msgs, err := h.e.ConversationMessages(ctx, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body ConversationMessagesResponse `json:"body"`
		}{Body: ConversationMessagesResponse{Conversation: conv, Items: nonNilSlice(msgs)}}, nil
	})
}

func registerMeetings(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-meeting",
		Method:        http.MethodPost,
		Path:          "/meetings",
		Summary:       "Schedule a meeting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateMeetingRequest `json:"body"`
	}) (*struct {
		Body domain.Meeting `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermMeeting)
		if err != nil {
			return nil, h.handleError(err)
		}
		participants := make([]domain.Role, 0, len(input.Body.Participants))
		for _, p := range input.Body.Participants {
			role, perr := parseRole(p)
			if perr != nil {
				return nil, h.handleError(perr)
			}
			participants = append(participants, role)
		}
		m, err := h.e.ScheduleMeeting(ctx, engine.ScheduleMeetingOptions{
			Title:        input.Body.Title,
			MeetingType:  input.Body.MeetingType,
			Participants: participants,
			Agenda:       input.Body.Agenda,
			Priority:     input.Body.Priority,
			ScheduledAt:  input.Body.ScheduledAt,
			InitiatedBy:  actor,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Meeting `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-meetings",
		Method:      http.MethodGet,
		Path:        "/meetings",
		Summary:     "List meetings, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body itemsMeetings `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		items, err := h.e.ListMeetings(ctx, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsMeetings `json:"body"`
		}{Body: itemsMeetings{Items: nonNilSlice(items)}}, nil
	})

	type meetingPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-meeting",
		Method:      http.MethodGet,
		Path:        "/meetings/{id}",
		Summary:     "Get a meeting",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *meetingPath) (*struct {
		Body domain.Meeting `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		m, err := h.e.GetMeeting(ctx, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Meeting `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "meeting-statements",
		Method:      http.MethodGet,
		Path:        "/meetings/{id}/statements",
		Summary:     "Meeting transcript in speaking order",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *meetingPath) (*struct {
		Body itemsStatements `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		items, err := h.e.ListStatements(ctx, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsStatements `json:"body"`
		}{Body: itemsStatements{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-meeting",
		Method:      http.MethodPost,
		Path:        "/meetings/{id}/run",
		Summary:     "Run a scheduled meeting to completion",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *meetingPath) (*struct {
		Body MeetingRunResponse `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermMeeting)
		if err != nil {
			return nil, h.handleError(err)
		}
		res, err := h.e.RunMeeting(ctx, engine.RunMeetingOptions{MeetingID: input.ID, ActorID: actor})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body MeetingRunResponse `json:"body"`
		}{Body: MeetingRunResponse{Success: true, MeetingResult: res}}, nil
	})
}

func registerDecisions(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "List decisions, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProposedBy string `query:"proposed_by"`
		MeetingID  string `query:"meeting_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body itemsDecisions `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		var role domain.Role
		if input.ProposedBy != "" {
			r, perr := parseRole(input.ProposedBy)
			if perr != nil {
				return nil, h.handleError(perr)
			}
			role = r
		}
		items, err := h.e.ListDecisions(ctx, role, input.MeetingID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsDecisions `json:"body"`
		}{Body: itemsDecisions{Items: nonNilSlice(items)}}, nil
	})
}

func registerInsights(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-insight",
		Method:        http.MethodPost,
		Path:          "/insights",
		Summary:       "Record an insight with recommended actions",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateInsightRequest `json:"body"`
	}) (*struct {
		Body domain.Insight `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermDraft)
		if err != nil {
			return nil, h.handleError(err)
		}
		role, perr := parseRole(input.Body.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		in := domain.Insight{
			Role:        role,
			Category:    input.Body.Category,
			InsightType: input.Body.InsightType,
			Urgency:     input.Body.Urgency,
			ImpactLevel: input.Body.ImpactLevel,
			Confidence:  input.Body.Confidence,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Actions:     recommendedActions(input.Body.RecommendedActions),
		}
		saved, err := h.e.CreateInsight(ctx, in, actor)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Insight `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-insights",
		Method:      http.MethodGet,
		Path:        "/insights",
		Summary:     "List insights, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body itemsInsights `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		role, perr := optionalRole(input.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		items, err := h.e.ListInsights(ctx, role, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsInsights `json:"body"`
		}{Body: itemsInsights{Items: nonNilSlice(items)}}, nil
	})
}

func registerDrafts(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-draft",
		Method:        http.MethodPost,
		Path:          "/drafts",
		Summary:       "Draft one of an insight's recommended actions",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateDraftRequest `json:"body"`
	}) (*struct {
		Body domain.ActionDraft `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermDraft)
		if err != nil {
			return nil, h.handleError(err)
		}
		role, perr := optionalRole(input.Body.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		d, err := h.e.CreateDraft(ctx, engine.CreateDraftOptions{
			Role:            role,
			SourceInsightID: input.Body.SourceInsightID,
			Action: domain.RecommendedAction{
				ID:      input.Body.Action.ID,
				Title:   input.Body.Action.Title,
				Payload: input.Body.Action.Payload,
			},
			ActorID: actor,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.ActionDraft `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/drafts",
		Summary:     "List action drafts, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body itemsDrafts `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		role, perr := optionalRole(input.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		items, err := h.e.ListDrafts(ctx, role, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsDrafts `json:"body"`
		}{Body: itemsDrafts{Items: nonNilSlice(items)}}, nil
	})

	type draftPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "confirm-draft",
		Method:      http.MethodPost,
		Path:        "/drafts/{id}/confirm",
		Summary:     "Confirm a draft and run its effect",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *draftPath) (*struct {
		Body domain.ActionDraft `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermDraft)
		if err != nil {
			return nil, h.handleError(err)
		}
		d, err := h.e.ConfirmDraft(ctx, engine.ConfirmDraftOptions{DraftID: input.ID, ActorID: actor})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.ActionDraft `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "discard-draft",
		Method:      http.MethodPost,
		Path:        "/drafts/{id}/discard",
		Summary:     "Discard an open draft",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *draftPath) (*struct {
		Body domain.ActionDraft `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermDraft)
		if err != nil {
			return nil, h.handleError(err)
		}
		d, err := h.e.DiscardDraft(ctx, engine.DiscardDraftOptions{DraftID: input.ID, ActorID: actor})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.ActionDraft `json:"body"`
		}{Body: d}, nil
	})
}

func registerKnowledge(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-knowledge",
		Method:      http.MethodGet,
		Path:        "/knowledge",
		Summary:     "Knowledge entries of one executive",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role          string `query:"role" required:"true"`
		KnowledgeType string `query:"knowledge_type"`
		Limit         int    `query:"limit"`
	}) (*struct {
		Body itemsKnowledge `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, h.e, auth.PermRead); err != nil {
			return nil, h.handleError(err)
		}
		role, perr := parseRole(input.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		items, err := h.e.ListKnowledge(ctx, role, input.KnowledgeType, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body itemsKnowledge `json:"body"`
		}{Body: itemsKnowledge{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-knowledge",
		Method:      http.MethodPut,
		Path:        "/knowledge",
		Summary:     "Create or replace a knowledge entry",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body PutKnowledgeRequest `json:"body"`
	}) (*struct {
		Body domain.KnowledgeEntry `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, h.e, auth.PermKnowledgeWrite)
		if err != nil {
			return nil, h.handleError(err)
		}
		role, perr := parseRole(input.Body.Role)
		if perr != nil {
			return nil, h.handleError(perr)
		}
		value, err := knowledgeValue(input.Body.Value)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "value must be JSON", nil)
		}
		entry, err := h.e.PutKnowledge(ctx, engine.PutKnowledgeOptions{
			Role:          role,
			KnowledgeType: input.Body.KnowledgeType,
			Category:      input.Body.Category,
			Key:           input.Body.Key,
			Value:         value,
			Confidence:    input.Body.Confidence,
			Source:        input.Body.Source,
			SourceID:      input.Body.SourceID,
			ValidFrom:     input.Body.ValidFrom,
			ValidUntil:    input.Body.ValidUntil,
			ActorID:       actor,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.KnowledgeEntry `json:"body"`
		}{Body: entry}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		perms, err := auth.Expand(input.Body.Permissions)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, perms, authCfg.TokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func parseRole(s string) (domain.Role, error) {
	role, err := domain.ParseRole(s)
	if err != nil {
		return "", engine.ValidationError{Field: "role", Message: err.Error()}
	}
	return role, nil
}

func optionalRole(s string) (domain.Role, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return parseRole(s)
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
