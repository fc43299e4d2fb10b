// Package server exposes the observation workflow over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"safetrack/internal/config"
	"safetrack/internal/domain"
	"safetrack/internal/engine"
	"safetrack/internal/metrics"
	"safetrack/internal/notify"
	"safetrack/internal/store"
	"safetrack/internal/visibility"
	"safetrack/internal/vocab"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Notifier notify.StoreNotifier
	Site     *config.Config
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"observation already has an assignee"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the SafeTrack API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("SafeTrack API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDevAuth(group, cfg)
	registerMe(group, cfg)
	registerVocabulary(group)
	registerObservations(group, cfg)
	registerActions(group, cfg)
	registerNotifications(group, cfg)
	registerDashboard(group, cfg)
	registerSummary(group, cfg)
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
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if len(ve.Fields) > 0 {
			details = map[string]any{"fields": ve.Fields}
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Error(), details)
	}
	var pe *engine.PreconditionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusConflict, "precondition_failed", pe.Error(), nil)
	}
	var re *visibility.UnknownRoleError
	if errors.As(err, &re) {
		return newAPIError(http.StatusInternalServerError, "unknown_role", re.Error(), nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if store.IsTransient(err) {
		return newAPIError(http.StatusServiceUnavailable, "transient_io", err.Error(), nil)
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
		return "precondition_failed"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "transient_io"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func identityFromContext(ctx context.Context, cfg Config) (domain.Identity, huma.StatusError) {
	id, authErr := identityIDFromContext(ctx)
	if authErr != nil {
		return domain.Identity{}, authErr
	}
	ident, err := cfg.Engine.Dir.LookupByID(id)
	if err != nil {
		return domain.Identity{}, newAPIError(http.StatusUnauthorized, "unknown_identity", fmt.Sprintf("identity %s not in directory", id), nil)
	}
	return ident, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var doc []byte
	docPath := path.Join(basePath, "openapi.json")
	r.Get(docPath, func(w http.ResponseWriter, r *http.Request) {
		if doc == nil {
			oas := api.OpenAPI()
			doc, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func swaggerHTML(basePath string) string {
	docURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>SafeTrack API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or the X-Identity-Id header.
    </p>
  </body>
</html>`, docURL)
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

func registerDevAuth(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a short-lived token for a roster identity",
	}, func(ctx context.Context, input *struct {
		Body struct {
			IdentityID string `json:"identity_id"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Token string `json:"token"`
		} `json:"body"`
	}, error) {
		if !cfg.Auth.AllowDevLogin {
			return nil, newAPIError(http.StatusForbidden, "dev_login_disabled", "dev login is disabled", nil)
		}
		if _, err := cfg.Engine.Dir.LookupByID(input.Body.IdentityID); err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(input.Body.IdentityID, cfg.Auth.JWTSecret, 24*time.Hour, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Token string `json:"token"`
			} `json:"body"`
		}{}
		resp.Body.Token = token
		return resp, nil
	})
}

func registerMe(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Authenticated identity",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Identity `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.Identity `json:"body"`
		}{Body: ident}, nil
	})
}

func registerVocabulary(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "vocabulary",
		Method:      http.MethodGet,
		Path:        "/vocabulary",
		Summary:     "Reporting vocabularies",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body VocabularyResponse `json:"body"`
	}, error) {
		cats := map[string][]string{}
		for _, c := range vocab.Categories() {
			cats[c] = vocab.SubCategories(c)
		}
		return &struct {
			Body VocabularyResponse `json:"body"`
		}{Body: VocabularyResponse{
			Locations:    vocab.Locations,
			Units:        vocab.Units,
			AreaManagers: vocab.AreaManagers,
			Categories:   cats,
		}}, nil
	})
}

func registerObservations(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID:   "submit-observation",
		Method:        http.MethodPost,
		Path:          "/observations",
		Summary:       "Submit an observation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitObservationRequest `json:"body"`
	}) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		var image []byte
		if input.Body.ImageBase64 != "" {
			var err error
			image, err = base64.StdEncoding.DecodeString(input.Body.ImageBase64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "image_base64 is not valid base64", nil)
			}
		}
		o, err := e.Submit(ctx, ident.ID, input.Body.draft(), image)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-observations",
		Method:      http.MethodGet,
		Path:        "/observations",
		Summary:     "List visible observations",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"open,pending,closed,active" required:"false" doc:"Narrow to one review status; active keeps everything not yet closed"`
	}) (*struct {
		Body ObservationListResponse `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		obs, degraded, err := e.FetchVisible(ctx, ident)
		if err != nil {
			return nil, handleError(err)
		}
		obs, err = engine.FilterStatus(obs, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ObservationListResponse `json:"body"`
		}{Body: ObservationListResponse{Observations: obs, Degraded: degraded}}, nil
	})

	type ObservationPath struct {
		ObservationID string `path:"observation_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-observation",
		Method:      http.MethodGet,
		Path:        "/observations/{observation_id}",
		Summary:     "Get an observation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ObservationPath) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		if _, authErr := identityFromContext(ctx, cfg); authErr != nil {
			return nil, authErr
		}
		o, err := e.Get(ctx, input.ObservationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/observations/{observation_id}/comments",
		Summary:       "Comment on an observation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ObservationPath
		Body AddCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AddComment(ctx, input.ObservationID, ident.ID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-observation",
		Method:      http.MethodPost,
		Path:        "/observations/{observation_id}/reassign",
		Summary:     "Route to a different area manager",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ObservationPath
		Body ReassignRequest `json:"body"`
	}) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Reassign(ctx, input.ObservationID, input.Body.AreaManager, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-observation",
		Method:      http.MethodPost,
		Path:        "/observations/{observation_id}/close",
		Summary:     "Close an observation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ObservationPath) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Close(ctx, input.ObservationID, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-action",
		Method:      http.MethodPost,
		Path:        "/observations/{observation_id}/action/assign",
		Summary:     "Assign the remediation action",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ObservationPath
		Body AssignActionRequest `json:"body"`
	}) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AssignAction(ctx, input.ObservationID, input.Body.AssigneeID, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-action",
		Method:      http.MethodPost,
		Path:        "/observations/{observation_id}/action/start",
		Summary:     "Start the remediation action",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *ObservationPath) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.StartAction(ctx, input.ObservationID, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-action",
		Method:      http.MethodPost,
		Path:        "/observations/{observation_id}/action/complete",
		Summary:     "Complete the remediation action",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *ObservationPath) (*struct {
		Body domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CompleteAction(ctx, input.ObservationID, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observation `json:"body"`
		}{Body: o}, nil
	})
}

func registerActions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assigned-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "Actionable observations assigned to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Observation `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		obs, err := cfg.Engine.FetchAssigned(ctx, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Observation `json:"body"`
		}{Body: obs}, nil
	})
}

func registerNotifications(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Caller's notifications, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		items, err := cfg.Notifier.ListForRecipient(ctx, ident.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark a notification read",
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, authErr := identityFromContext(ctx, cfg); authErr != nil {
			return nil, authErr
		}
		if err := cfg.Notifier.MarkRead(ctx, input.NotificationID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDashboard(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Latest record and target progress over the caller's visible set",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body metrics.Dashboard `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		obs, _, err := cfg.Engine.FetchVisible(ctx, ident)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if cfg.Engine.Now != nil {
			now = cfg.Engine.Now()
		}
		d := metrics.DashboardView(obs, now, cfg.Site.Targets.Monthly, cfg.Site.Targets.Yearly)
		return &struct {
			Body metrics.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func registerSummary(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "summary",
		Method:      http.MethodGet,
		Path:        "/summary",
		Summary:     "Dashboard metrics over the caller's visible set",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body metrics.Summary `json:"body"`
	}, error) {
		ident, authErr := identityFromContext(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		obs, _, err := cfg.Engine.FetchVisible(ctx, ident)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if cfg.Engine.Now != nil {
			now = cfg.Engine.Now()
		}
		s := metrics.Summarize(obs, cfg.Engine.Dir.List(), now, cfg.Site.Targets.Monthly, cfg.Site.Targets.Yearly)
		return &struct {
			Body metrics.Summary `json:"body"`
		}{Body: s}, nil
	})
}
