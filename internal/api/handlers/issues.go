// issues.go — HTTP-обработчики вопросов: листинг с агрегацией по
// федерации, получение, создание и update-глагол (комментарии,
// закрытие, переоткрытие — в одном PUT-payload).
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/collab-module/internal/api/errors"
	"github.com/bigkaa/goartstore/collab-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/service"
)

// createIssueBody — тело запроса создания вопроса.
type createIssueBody struct {
	Name          string           `json:"name"`
	ObjectID      string           `json:"object_id,omitempty"`
	Revision      string           `json:"revision,omitempty"`
	Viewpoint     *model.Viewpoint `json:"viewpoint,omitempty"`
	Scale         *float64         `json:"scale,omitempty"`
	Position      []float64        `json:"position,omitempty"`
	Norm          []float64        `json:"norm,omitempty"`
	CreatorRole   string           `json:"creator_role,omitempty"`
	AssignedRoles []string         `json:"assigned_roles,omitempty"`
	Priority      string           `json:"priority,omitempty"`
	Scribble      string           `json:"scribble,omitempty"`
	Screenshot    string           `json:"screenshot,omitempty"`
}

// updateIssueBody — тело запроса обновления вопроса.
// Глаголы жизненного цикла складываются в один payload:
//   - comment — добавить комментарий (или изменить при commentIndex);
//   - delete=true + commentIndex — удалить комментарий;
//   - sealed=true + commentIndex — запечатать комментарий;
//   - closed=true/false — закрыть/переоткрыть вопрос.
type updateIssueBody struct {
	Comment      string `json:"comment,omitempty"`
	CommentIndex *int   `json:"commentIndex,omitempty"`
	Delete       bool   `json:"delete,omitempty"`
	Sealed       bool   `json:"sealed,omitempty"`
	Closed       *bool  `json:"closed,omitempty"`
	Revision     string `json:"revision,omitempty"`
}

// ListIssues — GET /api/v1/{account}/{project}/issues.
// Параметры branch/revision задают снимок; без них — вся федерация
// по ветке по умолчанию без фильтра ревизии у корня.
func (h *APIHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	project := chi.URLParam(r, "project")
	username := middleware.UsernameFromContext(r.Context())

	issues, err := h.issues.ListByProject(r.Context(), account, project, username,
		r.URL.Query().Get("branch"), r.URL.Query().Get("revision"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, issues)
}

// GetIssue — GET /api/v1/{account}/{project}/issues/{uid}.
// stubs=true — укороченная проекция.
func (h *APIHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	project := chi.URLParam(r, "project")
	uid := chi.URLParam(r, "uid")
	stubs := r.URL.Query().Get("stubs") == "true"

	issue, err := h.issues.GetByUID(r.Context(), account, project, uid, stubs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

// ListObjectIssues — GET /api/v1/{account}/{project}/objects/{sid}/issues.
// Вопросы, аннотирующие один 3D-объект; number — опциональный фильтр.
func (h *APIHandler) ListObjectIssues(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	project := chi.URLParam(r, "project")
	sid := chi.URLParam(r, "sid")

	var number *int
	if raw := r.URL.Query().Get("number"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр number должен быть целым числом")
			return
		}
		number = &n
	}

	issues, err := h.issues.FindBySharedID(r.Context(), account, project, sid, number)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, issues)
}

// CreateIssue — POST /api/v1/{account}/{project}/issues.
func (h *APIHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	project := chi.URLParam(r, "project")
	username := middleware.UsernameFromContext(r.Context())

	var body createIssueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Невалидное JSON-тело запроса")
		return
	}

	issue, err := h.issues.Create(r.Context(), account, project, service.CreateIssueRequest{
		Name:          body.Name,
		ObjectID:      body.ObjectID,
		Revision:      body.Revision,
		Owner:         username,
		Viewpoint:     body.Viewpoint,
		Scale:         body.Scale,
		Position:      body.Position,
		Norm:          body.Norm,
		CreatorRole:   body.CreatorRole,
		AssignedRoles: body.AssignedRoles,
		Priority:      body.Priority,
		Scribble:      body.Scribble,
		Screenshot:    body.Screenshot,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("Вопрос создан через API",
		slog.String("account", account),
		slog.String("project", project),
		slog.String("issue_id", issue.ID),
		slog.String("owner", username),
	)
	writeJSON(w, http.StatusCreated, issue)
}

// UpdateIssue — PUT /api/v1/{account}/{project}/issues/{uid}.
// Разбирает сложенный payload на операцию жизненного цикла.
func (h *APIHandler) UpdateIssue(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	project := chi.URLParam(r, "project")
	uid := chi.URLParam(r, "uid")
	username := middleware.UsernameFromContext(r.Context())

	var body updateIssueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Невалидное JSON-тело запроса")
		return
	}

	var (
		issue *model.CleanedIssue
		err   error
	)

	switch {
	case body.Delete && body.CommentIndex != nil:
		issue, err = h.issues.RemoveComment(r.Context(), account, project, uid, *body.CommentIndex, username)
	case body.CommentIndex != nil:
		issue, err = h.issues.EditComment(r.Context(), account, project, uid, *body.CommentIndex, service.CommentRequest{
			Owner:   username,
			Comment: body.Comment,
			Sealed:  body.Sealed,
		})
	case body.Comment != "":
		issue, err = h.issues.AddComment(r.Context(), account, project, uid, service.CommentRequest{
			Owner:    username,
			Comment:  body.Comment,
			Revision: body.Revision,
		})
	case body.Closed != nil && *body.Closed:
		issue, err = h.issues.Close(r.Context(), account, project, uid)
	case body.Closed != nil:
		issue, err = h.issues.Reopen(r.Context(), account, project, uid)
	default:
		apierrors.ValidationError(w, "Payload не содержит ни одной операции")
		return
	}

	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}
