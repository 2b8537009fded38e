// handler.go — основной обработчик API Collab Module.
// Объединяет health и бизнес-обработчики; маппит ошибки сервисного слоя
// в стандартный формат ответов.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/collab-module/internal/api/errors"
	"github.com/bigkaa/goartstore/collab-module/internal/service"
)

// APIHandler — основной обработчик API Collab Module.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health *HealthHandler
	issues *service.IssueService
	bcf    *service.BCFService
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	issues *service.IssueService,
	bcf *service.BCFService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health: health,
		issues: issues,
		bcf:    bcf,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError маппит ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Вопрос не найден")
	case errors.Is(err, service.ErrHistoryNotFound):
		apierrors.NotFound(w, "Ревизия не найдена")
	case errors.Is(err, service.ErrObjectNotFound):
		apierrors.NotFound(w, "Объект сцены не найден")
	case errors.Is(err, service.ErrNoName):
		apierrors.ValidationError(w, "Заголовок вопроса обязателен")
	case errors.Is(err, service.ErrInvalidAttachment):
		apierrors.ValidationError(w, "Вложение не является валидным base64")
	case errors.Is(err, service.ErrCommentInvalidIndex):
		apierrors.ValidationError(w, "Некорректный индекс комментария")
	case errors.Is(err, service.ErrCommentPermission):
		apierrors.Forbidden(w, "Операция над чужим комментарием запрещена")
	case errors.Is(err, service.ErrCommentSealed):
		apierrors.StateConflict(w, "Комментарий запечатан или вопрос закрыт")
	case errors.Is(err, service.ErrIssueClosedAlready):
		apierrors.StateConflict(w, "Вопрос уже закрыт")
	default:
		h.logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
