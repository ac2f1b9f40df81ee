package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"albumline/internal/binding"
	"albumline/internal/broadcast"
	"albumline/internal/dispatch"
	"albumline/internal/domain"
	"albumline/internal/engine"
	"albumline/internal/repo"
	"albumline/internal/status"
)

// Config for the HTTP API handler.
type Config struct {
	Engine     engine.Engine
	Hub        *broadcast.Hub
	Dispatcher *dispatch.Dispatcher
	Binding    binding.Manager
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"album not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Albumline API.
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

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Albumline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerLogin(group, cfg.Engine, cfg.Auth)
	registerStatuses(group)
	registerAlbums(group, cfg)
	registerBindings(group, cfg)
	registerWS(router, basePath, cfg)

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
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(s int) string {
	switch s {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(s), " ", "_"))
	}
}

// requireCompanyMember enforces the only authorization rule the API has:
// the caller must belong to the company owning the resource.
func requireCompanyMember(ctx context.Context, e engine.Engine, companyID string) huma.StatusError {
	p, ok := principalFromContext(ctx)
	if !ok || p.UserID == "" {
		return newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	for _, c := range p.Companies {
		if c == companyID {
			return nil
		}
	}
	member, err := e.Repo.IsCompanyMember(ctx, companyID, p.UserID)
	if err != nil {
		return handleError(err)
	}
	if !member {
		return newAPIError(http.StatusForbidden, "forbidden", "not a member of this company", nil)
	}
	return nil
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

func registerLogin(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange a signed login assertion for a session token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if !auth.Verifier.Verify(input.Body.Assertion()) {
			// One failure code regardless of why the assertion failed.
			return nil, newAPIError(http.StatusUnauthorized, "invalid_assertion", "login assertion rejected", nil)
		}
		user, err := e.Repo.GetUserByTelegramID(ctx, input.Body.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusUnauthorized, "unknown_user", "no account for this identity", nil)
			}
			return nil, handleError(err)
		}
		companies, err := e.Repo.MemberCompanies(ctx, user.ID)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(user.ID, companies, auth, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: user}}, nil
	})
}

func registerStatuses(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "Status dictionary",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []status.Status `json:"body"`
	}, error) {
		return &struct {
			Body []status.Status `json:"body"`
		}{Body: status.All()}, nil
	})
}

func registerAlbums(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "list-albums",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/albums",
		Summary:     "List project albums",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Album `json:"body"`
	}, error) {
		project, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireCompanyMember(ctx, e, project.CompanyID); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAlbums(ctx, project.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Album `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-album",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/albums",
		Summary:       "Create album",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateAlbumRequest `json:"body"`
	}) (*struct {
		Body domain.Album `json:"body"`
	}, error) {
		project, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireCompanyMember(ctx, e, project.CompanyID); authErr != nil {
			return nil, authErr
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAlbum(ctx, engine.AlbumCreateOptions{
			ProjectID:    project.ID,
			DepartmentID: input.Body.DepartmentID,
			Code:         input.Body.Code,
			Name:         input.Body.Name,
			ExecutorID:   input.Body.ExecutorID,
			CustomerID:   input.Body.CustomerID,
			Deadline:     input.Body.Deadline,
			Comment:      input.Body.Comment,
			Link:         input.Body.Link,
			Actor:        domain.MemberActor(userID),
		})
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique") {
				return nil, newAPIError(http.StatusConflict, "conflict", "album code already used in project", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Album `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-album",
		Method:      http.MethodGet,
		Path:        "/albums/{album_id}",
		Summary:     "Get album",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AlbumID string `path:"album_id"`
	}) (*struct {
		Body domain.Album `json:"body"`
	}, error) {
		a, _, authErr := loadAlbumChecked(ctx, e, input.AlbumID)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.Album `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-album",
		Method:      http.MethodPatch,
		Path:        "/albums/{album_id}",
		Summary:     "Edit album metadata",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AlbumID string             `path:"album_id"`
		Body    UpdateAlbumRequest `json:"body"`
	}) (*struct {
		Body domain.Album `json:"body"`
	}, error) {
		a, _, authErr := loadAlbumChecked(ctx, e, input.AlbumID)
		if authErr != nil {
			return nil, authErr
		}
		// Metadata only; status fields belong to the transition engine.
		now := time.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateAlbumMeta(ctx, a.ID, repo.AlbumMetaUpdate{
			Name:       input.Body.Name,
			DeptID:     input.Body.DepartmentID,
			ExecutorID: input.Body.ExecutorID,
			CustomerID: input.Body.CustomerID,
			Deadline:   input.Body.Deadline,
			Comment:    input.Body.Comment,
			Link:       input.Body.Link,
		}, now); err != nil {
			return nil, handleError(err)
		}
		updated, err := e.Repo.GetAlbum(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Album `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "album-history",
		Method:      http.MethodGet,
		Path:        "/albums/{album_id}/history",
		Summary:     "Album status history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AlbumID string `path:"album_id"`
	}) (*struct {
		Body []HistoryEntry `json:"body"`
	}, error) {
		a, _, authErr := loadAlbumChecked(ctx, e, input.AlbumID)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListStatusHistory(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HistoryEntry `json:"body"`
		}{Body: historyEntries(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-album-status",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/albums/{code}/status",
		Summary:     "Apply a status change",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Code      string              `path:"code"`
		Body      ChangeStatusRequest `json:"body"`
	}) (*struct {
		Body StatusChangeResponse `json:"body"`
	}, error) {
		project, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireCompanyMember(ctx, e, project.CompanyID); authErr != nil {
			return nil, authErr
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actor := domain.MemberActor(userID)
		res, err := e.Apply(ctx, actor, domain.SourceWeb, project.ID, domain.StatusCommand{
			AlbumCode:  input.Code,
			StatusCode: input.Body.StatusCode,
			LocalPath:  input.Body.LocalPath,
		}, nil)
		if err != nil {
			return nil, handleError(err)
		}
		switch res.Outcome {
		case engine.OutcomeNotFound:
			return nil, newAPIError(http.StatusNotFound, "not_found", "album not found", nil)
		case engine.OutcomeInvalidStatus:
			return nil, newAPIError(http.StatusBadRequest, "invalid_status", "unknown status code", nil)
		case engine.OutcomeApplied:
			company, err := e.Repo.GetCompany(ctx, project.CompanyID)
			if err != nil {
				return nil, handleError(err)
			}
			cfg.Dispatcher.Dispatch(context.WithoutCancel(ctx), dispatch.Applied{
				Album:       res.Album,
				ProjectID:   project.ID,
				ProjectName: project.Name,
				CompanyID:   company.ID,
				CompanyName: company.Name,
				OldStatus:   res.OldStatus,
				NewStatus:   res.NewStatus,
				Actor:       actor,
				Source:      domain.SourceWeb,
			})
		}
		return &struct {
			Body StatusChangeResponse `json:"body"`
		}{Body: StatusChangeResponse{
			Changed:     res.Outcome == engine.OutcomeApplied,
			Album:       res.Album,
			OldStatusID: res.OldStatus.ID,
			NewStatusID: res.NewStatus.ID,
		}}, nil
	})
}

func registerBindings(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "list-bindings",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/bindings",
		Summary:     "List chat bindings",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.ChatBinding `json:"body"`
	}, error) {
		project, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireCompanyMember(ctx, e, project.CompanyID); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListBindings(ctx, project.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChatBinding `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "issue-binding",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/bindings",
		Summary:       "Issue an invite-link binding for the project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      struct {
			InviteLink string `json:"invite_link"`
		} `json:"body"`
	}) (*struct {
		Body domain.ChatBinding `json:"body"`
	}, error) {
		if input.Body.InviteLink == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invite_link is required", nil)
		}
		project, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireCompanyMember(ctx, e, project.CompanyID); authErr != nil {
			return nil, authErr
		}
		b, err := cfg.Binding.IssueBinding(ctx, project.ID, input.Body.InviteLink)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatBinding `json:"body"`
		}{Body: b}, nil
	})
}

func loadAlbumChecked(ctx context.Context, e engine.Engine, albumID string) (domain.Album, domain.Project, huma.StatusError) {
	a, err := e.Repo.GetAlbum(ctx, albumID)
	if err != nil {
		return domain.Album{}, domain.Project{}, handleError(err)
	}
	project, err := e.Repo.GetProject(ctx, a.ProjectID)
	if err != nil {
		return domain.Album{}, domain.Project{}, handleError(err)
	}
	if authErr := requireCompanyMember(ctx, e, project.CompanyID); authErr != nil {
		return domain.Album{}, domain.Project{}, authErr
	}
	return a, project, nil
}
