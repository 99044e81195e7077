package server

import (
	"context"
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

	"microlab/internal/domain"
	"microlab/internal/engine"
	"microlab/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"form not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every failure answers with.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Microlab API.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Microlab API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerForms(group, cfg.Engine)
	registerSelections(group, cfg.Engine)
	registerReadings(group, cfg.Engine)
	registerWaitingRoom(group, cfg.Engine)
	registerSamples(group, cfg.Engine)
	registerSpecies(group, cfg.Engine)
	registerThresholds(group, cfg.Engine)
	registerLocations(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already completed"),
		strings.Contains(lowered, "not pending"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must start"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Microlab API Docs</title>
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

func registerForms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-form",
		Method:        http.MethodPost,
		Path:          "/forms",
		Summary:       "Create sample form",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateFormRequest `json:"body"`
	}) (*struct {
		Body FormResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.CreateForm(ctx, engine.FormCreateOptions{
			ID:           stringOrEmpty(input.Body.ID),
			Title:        input.Body.Title,
			Brand:        stringOrEmpty(input.Body.Brand),
			Site:         stringOrEmpty(input.Body.Site),
			SampleDate:   stringOrEmpty(input.Body.SampleDate),
			AnalysisDate: stringOrEmpty(input.Body.AnalysisDate),
			LegacyRef:    stringOrEmpty(input.Body.LegacyRef),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FormResponse `json:"body"`
		}{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-forms",
		Method:      http.MethodGet,
		Path:        "/forms",
		Summary:     "List sample forms",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []FormResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListForms(ctx, e.Config.Lab.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []FormResponse `json:"body"`
		}{Body: mapForms(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-form",
		Method:      http.MethodGet,
		Path:        "/forms/{id}",
		Summary:     "Get sample form",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body FormResponse `json:"body"`
	}, error) {
		f, err := e.ResolveForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FormResponse `json:"body"`
		}{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-form",
		Method:      http.MethodPatch,
		Path:        "/forms/{id}",
		Summary:     "Update sample form",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateFormRequest `json:"body"`
	}) (*struct {
		Body FormResponse `json:"body"`
	}, error) {
		f, err := e.ResolveForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		now := e.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateForm(ctx, f.ID, input.Body.Title, input.Body.Brand, input.Body.Site,
			input.Body.SampleDate, input.Body.AnalysisDate, input.Body.Status, now); err != nil {
			return nil, handleError(err)
		}
		f, err = e.Repo.GetForm(ctx, f.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FormResponse `json:"body"`
		}{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-form",
		Method:      http.MethodDelete,
		Path:        "/forms/{id}",
		Summary:     "Delete sample form and everything attached to it",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteForm(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSelections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-form-bacteria",
		Method:      http.MethodGet,
		Path:        "/forms/{id}/bacteria",
		Summary:     "Get the bacteria selection of a form",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []SelectionResponse `json:"body"`
	}, error) {
		f, err := e.ResolveForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSelectionsByForm(ctx, f.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SelectionResponse `json:"body"`
		}{Body: mapSelections(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-form-bacteria",
		Method:      http.MethodPut,
		Path:        "/forms/{id}/bacteria",
		Summary:     "Replace the bacteria selection of a form",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body ReplaceSelectionRequest `json:"body"`
	}) (*struct {
		Body []SelectionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ReplaceSelection(ctx, input.ID, input.Body.Bacteria, actorID); err != nil {
			return nil, handleError(err)
		}
		f, err := e.ResolveForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSelectionsByForm(ctx, f.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SelectionResponse `json:"body"`
		}{Body: mapSelections(items)}, nil
	})
}

func registerReadings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "start-reading",
		Method:      http.MethodPost,
		Path:        "/forms/{id}/bacteria/{name}/start",
		Summary:     "Start a bacteria reading",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Name string `path:"name"`
	}) (*struct {
		Body ReadingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sel, forced, err := e.StartReading(ctx, input.ID, input.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReadingResponse `json:"body"`
		}{Body: ReadingResponse{Selection: selectionResponse(sel), Forced: forced}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-reading",
		Method:      http.MethodPost,
		Path:        "/forms/{id}/bacteria/{name}/complete",
		Summary:     "Complete a bacteria reading",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Name string `path:"name"`
	}) (*struct {
		Body SelectionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sel, err := e.CompleteReading(ctx, input.ID, input.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SelectionResponse `json:"body"`
		}{Body: selectionResponse(sel)}, nil
	})
}

func registerWaitingRoom(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "waiting-room",
		Method:      http.MethodGet,
		Path:        "/waiting-room",
		Summary:     "Forms with outstanding bacteria readings",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Site string `query:"site"`
	}) (*struct {
		Body []domain.WaitingForm `json:"body"`
	}, error) {
		forms, err := e.WaitingRoom(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		forms = engine.FilterBySite(forms, input.Site)
		if forms == nil {
			forms = []domain.WaitingForm{}
		}
		return &struct {
			Body []domain.WaitingForm `json:"body"`
		}{Body: forms}, nil
	})
}

func registerSamples(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sample",
		Method:        http.MethodPost,
		Path:          "/forms/{id}/samples",
		Summary:       "Register a sample on a form",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateSampleRequest `json:"body"`
	}) (*struct {
		Body SampleResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.AddSample(ctx, engine.SampleCreateOptions{
			FormID:       input.ID,
			Product:      input.Body.Product,
			Site:         stringOrEmpty(input.Body.Site),
			SampleDate:   stringOrEmpty(input.Body.SampleDate),
			Organoleptic: stringOrEmpty(input.Body.Organoleptic),
			PH:           input.Body.PH,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SampleResponse `json:"body"`
		}{Body: sampleResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-form-samples",
		Method:      http.MethodGet,
		Path:        "/forms/{id}/samples",
		Summary:     "List samples of a form",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []SampleResponse `json:"body"`
	}, error) {
		f, err := e.ResolveForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSamplesByForm(ctx, f.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SampleResponse `json:"body"`
		}{Body: mapSamples(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-sample-results",
		Method:      http.MethodPost,
		Path:        "/samples/{id}/results",
		Summary:     "Record organoleptic and pH results",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body SampleResultsRequest `json:"body"`
	}) (*struct {
		Body SampleResponse `json:"body"`
	}, error) {
		now := e.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateSampleResults(ctx, input.ID, input.Body.Organoleptic, input.Body.PH, now); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetSample(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SampleResponse `json:"body"`
		}{Body: sampleResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sample-to-reading",
		Method:      http.MethodPost,
		Path:        "/samples/{id}/to-reading",
		Summary:     "Move a sample to waiting for reading",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body SampleResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MoveSampleToReading(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetSample(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SampleResponse `json:"body"`
		}{Body: sampleResponse(s)}, nil
	})
}

func registerSpecies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-species",
		Method:      http.MethodGet,
		Path:        "/species",
		Summary:     "List the species catalog with current delays",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SpeciesResponse `json:"body"`
	}, error) {
		items := e.Catalog.List()
		res := make([]SpeciesResponse, 0, len(items))
		for _, s := range items {
			res = append(res, SpeciesResponse{
				ID:          s.ID,
				DisplayName: s.DisplayName,
				Delay:       e.Catalog.DelayLabel(s.DisplayName, e.Config.DemoMode),
			})
		}
		return &struct {
			Body []SpeciesResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerThresholds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-threshold",
		Method:      http.MethodPut,
		Path:        "/thresholds",
		Summary:     "Upsert a product threshold",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ThresholdRequest `json:"body"`
	}) (*struct {
		Body domain.ProductThreshold `json:"body"`
	}, error) {
		if input.Body.Product == "" || input.Body.Parameter == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "product and parameter are required", nil)
		}
		t, err := e.UpsertThreshold(ctx, input.Body.Product, input.Body.Parameter,
			input.Body.Min, input.Body.Max, stringOrEmpty(input.Body.Unit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProductThreshold `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-thresholds",
		Method:      http.MethodGet,
		Path:        "/thresholds",
		Summary:     "List product thresholds",
	}, func(ctx context.Context, input *struct {
		Product string `query:"product"`
	}) (*struct {
		Body []domain.ProductThreshold `json:"body"`
	}, error) {
		items, err := e.Repo.ListThresholds(ctx, input.Product)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ProductThreshold{}
		}
		return &struct {
			Body []domain.ProductThreshold `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-threshold",
		Method:      http.MethodDelete,
		Path:        "/thresholds/{id}",
		Summary:     "Delete a product threshold",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteThreshold(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerLocations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-location",
		Method:      http.MethodPut,
		Path:        "/locations",
		Summary:     "Upsert an air static sampling location",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body LocationRequest `json:"body"`
	}) (*struct {
		Body domain.AirStaticLocation `json:"body"`
	}, error) {
		if input.Body.Site == "" || input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "site and name are required", nil)
		}
		active := true
		if input.Body.Active != nil {
			active = *input.Body.Active
		}
		l, err := e.UpsertLocation(ctx, input.Body.Site, input.Body.Name,
			stringOrEmpty(input.Body.Description), active)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AirStaticLocation `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-locations",
		Method:      http.MethodGet,
		Path:        "/locations",
		Summary:     "List air static sampling locations",
	}, func(ctx context.Context, input *struct {
		Site string `query:"site"`
	}) (*struct {
		Body []domain.AirStaticLocation `json:"body"`
	}, error) {
		items, err := e.Repo.ListLocations(ctx, input.Site)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AirStaticLocation{}
		}
		return &struct {
			Body []domain.AirStaticLocation `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-location",
		Method:      http.MethodDelete,
		Path:        "/locations/{id}",
		Summary:     "Delete an air static sampling location",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteLocation(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Tail the audit log",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		items, err := e.Repo.ListAudit(ctx, e.Config.Lab.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AuditEntry{}
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: items}, nil
	})
}
