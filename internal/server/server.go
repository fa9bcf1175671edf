package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"coordline/internal/domain"
	"coordline/internal/engine"
	"coordline/internal/registry"
	"coordline/internal/store"
)

// Config for the HTTP API handler. Store is optional; without it the
// events endpoint is not registered.
type Config struct {
	Engine         *engine.Engine
	Store          *store.Store
	BasePath       string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid transition completed -> pending for w1"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"completed\",\"to\":\"pending\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the coordination API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	if cfg.RateLimitRPS > 0 {
		router.Use(newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
	}
	hcfg := huma.DefaultConfig("Coordline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWork(group, cfg.Engine)
	registerFlows(group, cfg.Engine)
	registerField(group, cfg.Engine)
	registerSchedules(group, cfg.Engine)
	if cfg.Store != nil {
		registerEvents(group, *cfg.Store)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{"field": ve.Field, "reason": ve.Reason}
		if ve.Value != nil {
			details["value"] = ve.Value
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	var nf engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"id": nf.ID})
	}
	var te engine.TransitionError
	if errors.As(err, &te) {
		details := map[string]any{"id": te.ID, "from": te.From, "to": te.To}
		if te.Reason != "" {
			details["reason"] = te.Reason
		}
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), details)
	}
	var ce engine.CapacityError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "capacity_exceeded", err.Error(), map[string]any{"active": ce.Active, "limit": ce.Limit})
	}
	var cy engine.CycleError
	if errors.As(err, &cy) {
		return newAPIError(http.StatusConflict, "cycle_detected", err.Error(), map[string]any{"from": cy.From, "to": cy.To})
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func writeAPIError(w http.ResponseWriter, status int, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newAPIError(status, "", message, details))
}

func registerDocs(r chi.Router, basePath string) {
	docsPath := path.Join(basePath, "docs")
	r.Get(docsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(swaggerHTML(basePath)))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once    sync.Once
		spec    []byte
		specErr error
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, specErr = json.Marshal(oas)
		})
		if specErr != nil {
			writeAPIError(w, http.StatusInternalServerError, "openapi document unavailable", nil)
			return
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
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
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

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Coordline API Docs</title>
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

func registerWork(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work",
		Method:        http.MethodPost,
		Path:          "/work",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkRequest `json:"body"`
	}) (*WorkOutput, error) {
		w, err := e.CreateWork(ctx, input.Body.params())
		if err != nil {
			return nil, handleError(err)
		}
		return &WorkOutput{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work",
		Method:      http.MethodGet,
		Path:        "/work",
		Summary:     "Search work items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Priority string `query:"priority"`
		Category string `query:"category"`
		Elevated string `query:"elevated"`
		Assignee string `query:"assignee"`
	}) (*WorkListOutput, error) {
		var c registry.Criteria
		if input.Status != "" {
			s := domain.Status(input.Status)
			if !s.Valid() {
				return nil, badQuery("status", input.Status)
			}
			c.Status = &s
		}
		if input.Priority != "" {
			p := domain.Priority(input.Priority)
			if !p.Valid() {
				return nil, badQuery("priority", input.Priority)
			}
			c.Priority = &p
		}
		if input.Category != "" {
			cat := domain.Category(input.Category)
			if !cat.Valid() {
				return nil, badQuery("category", input.Category)
			}
			c.Category = &cat
		}
		if input.Elevated != "" {
			v, err := strconv.ParseBool(input.Elevated)
			if err != nil {
				return nil, badQuery("elevated", input.Elevated)
			}
			c.Elevated = &v
		}
		if input.Assignee != "" {
			c.Assignee = &input.Assignee
		}
		return &WorkListOutput{Body: WorkList{Items: e.Search(ctx, c)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work",
		Method:      http.MethodGet,
		Path:        "/work/{id}",
		Summary:     "Get work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *workPath) (*WorkOutput, error) {
		w, err := e.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &WorkOutput{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-status",
		Method:      http.MethodPost,
		Path:        "/work/{id}/status",
		Summary:     "Transition work item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateStatusRequest `json:"body"`
	}) (*WorkOutput, error) {
		tc := engine.TransitionContext{Reason: input.Body.Reason, BlockerID: input.Body.BlockerID}
		w, err := e.UpdateStatus(ctx, input.ID, domain.Status(input.Body.Status), tc)
		if err != nil {
			return nil, handleError(err)
		}
		return &WorkOutput{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-progress",
		Method:      http.MethodPost,
		Path:        "/work/{id}/progress",
		Summary:     "Record progress",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateProgressRequest `json:"body"`
	}) (*WorkOutput, error) {
		w, err := e.UpdateProgress(ctx, input.ID, input.Body.Progress, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &WorkOutput{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-work",
		Method:      http.MethodPost,
		Path:        "/work/{id}/assign",
		Summary:     "Reassign work item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*WorkOutput, error) {
		w, err := e.AssignWork(ctx, input.ID, input.Body.Assignee)
		if err != nil {
			return nil, handleError(err)
		}
		return &WorkOutput{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-edges",
		Method:      http.MethodGet,
		Path:        "/work/{id}/edges",
		Summary:     "List edges touching a work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *workPath) (*EdgeListOutput, error) {
		if _, err := e.Get(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &EdgeListOutput{Body: EdgeList{Items: e.Edges(ctx, input.ID)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admission-check",
		Method:      http.MethodPost,
		Path:        "/work/admission",
		Summary:     "Check whether a candidate would be admitted",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkRequest `json:"body"`
	}) (*AdmissionOutput, error) {
		adm, err := e.CanAccept(ctx, input.Body.params())
		if err != nil {
			return nil, handleError(err)
		}
		return &AdmissionOutput{Body: adm}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recommendations",
		Method:      http.MethodGet,
		Path:        "/recommendations",
		Summary:     "Recommend pending work for a worker",
	}, func(ctx context.Context, input *struct {
		WorkerID string `query:"worker_id"`
	}) (*RecommendationsOutput, error) {
		recs := e.GetRecommendations(ctx, input.WorkerID)
		if recs == nil {
			recs = []engine.Recommendation{}
		}
		return &RecommendationsOutput{Body: RecommendationList{Items: recs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "distribute-work",
		Method:      http.MethodPost,
		Path:        "/distribution",
		Summary:     "Pair pending work with workers",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DistributeRequest `json:"body"`
	}) (*DistributionOutput, error) {
		out := e.Distribute(ctx, input.Body.Workers)
		return &DistributionOutput{Body: DistributionList{Items: out}}, nil
	})
}

func registerFlows(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-flow",
		Method:        http.MethodPost,
		Path:          "/flows",
		Summary:       "Declare a dependency between work items",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateFlowRequest `json:"body"`
	}) (*EdgeOutput, error) {
		edge, err := e.CreateWorkFlow(ctx, input.Body.From, input.Body.To, domain.Relationship(input.Body.Relationship))
		if err != nil {
			return nil, handleError(err)
		}
		return &EdgeOutput{Body: edge}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-flows",
		Method:      http.MethodGet,
		Path:        "/flows",
		Summary:     "List every dependency edge",
	}, func(ctx context.Context, _ *struct{}) (*EdgeListOutput, error) {
		return &EdgeListOutput{Body: EdgeList{Items: e.Edges(ctx, "")}}, nil
	})
}

func registerField(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-load",
		Method:      http.MethodGet,
		Path:        "/field/load",
		Summary:     "Current load state",
	}, func(ctx context.Context, _ *struct{}) (*LoadOutput, error) {
		return &LoadOutput{Body: e.LoadState(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "observe-load",
		Method:      http.MethodPut,
		Path:        "/field/load",
		Summary:     "Replace the load metric",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ObserveLoadRequest `json:"body"`
	}) (*LoadOutput, error) {
		state, err := e.ObserveLoad(ctx, input.Body.Metric)
		if err != nil {
			return nil, handleError(err)
		}
		return &LoadOutput{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "field-health",
		Method:      http.MethodGet,
		Path:        "/field/health",
		Summary:     "Field health summary",
	}, func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: e.GetFieldHealth(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restoration-plan",
		Method:      http.MethodGet,
		Path:        "/field/restoration-plan",
		Summary:     "Restoration plan for the current load",
	}, func(ctx context.Context, _ *struct{}) (*PlanOutput, error) {
		return &PlanOutput{Body: e.RestorationPlan(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "statistics",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Aggregate statistics",
	}, func(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
		return &StatsOutput{Body: e.GetStatistics(ctx)}, nil
	})
}

func registerSchedules(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upcoming-schedules",
		Method:      http.MethodGet,
		Path:        "/schedules",
		Summary:     "Upcoming schedules ordered by start",
	}, func(ctx context.Context, _ *struct{}) (*ScheduleListOutput, error) {
		resp := ScheduleList{Items: []ScheduleResponse{}}
		for _, s := range e.Upcoming(ctx) {
			resp.Items = append(resp.Items, scheduleResponse(s))
		}
		return &ScheduleListOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-window",
		Method:      http.MethodGet,
		Path:        "/schedules/window",
		Summary:     "Time window containing now",
	}, func(ctx context.Context, _ *struct{}) (*WindowOutput, error) {
		return &WindowOutput{Body: windowResponse(e.CurrentWindow(ctx))}, nil
	})
}

func registerEvents(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List journaled events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		WorkID string `query:"work_id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*EventListOutput, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := s.LatestEvents(ctx, store.EventFilters{Type: input.Type, WorkID: input.WorkID, Cursor: cursorID, Limit: limit + 1})
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventList{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &EventListOutput{Body: resp}, nil
	})
}

func badQuery(name, value string) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", "invalid "+name, map[string]any{name: value})
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
