// requests.go — обработчики /api/v1/requests endpoints.
// Реестр запросов на изменение и решения администратора.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ToshikSoni/ResearchWeb/internal/api/errors"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
	"github.com/ToshikSoni/ResearchWeb/internal/service"
)

// ListRequests — GET /api/v1/requests.
// Податель видит только собственные запросы, админ — все.
// Фильтры: status (pending/approved/rejected), target_paper_id.
func (h *APIHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	q := r.URL.Query()
	filters := repository.RequestListFilters{
		Status:        optionalString(q, "status"),
		TargetPaperID: optionalString(q, "target_paper_id"),
	}
	limit, offset := paginationParams(q)

	reqs, total, err := h.workflow.ListRequests(r.Context(), caller, filters, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения списка запросов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения списка запросов")
		return
	}

	responses := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		responses = append(responses, mapRequest(req))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:  responses,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRequest — GET /api/v1/requests/{requestID}.
// Чужой запрос для подателя неотличим от несуществующего.
func (h *APIHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	req, err := h.workflow.GetRequest(r.Context(), caller, requestID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Запрос не найден")
			return
		}
		h.logger.Error("Ошибка получения запроса", slog.String("request_id", requestID), slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения запроса")
		return
	}

	writeJSON(w, http.StatusOK, mapRequest(req))
}

// decisionRequest — тело POST /api/v1/requests/{requestID}/decision.
type decisionRequest struct {
	// Decision — approve или reject.
	Decision string `json:"decision"`
	// Comment — комментарий администратора (обязателен при reject).
	Comment string `json:"comment,omitempty"`
}

// DecideRequest — POST /api/v1/requests/{requestID}/decision.
// Решение по pending-запросу (только admin). Одобрение
// материализует изменение в каталоге; повторное решение
// по тому же запросу отвергается.
func (h *APIHandler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	requestID := chi.URLParam(r, "requestID")
	req, err := h.workflow.Decide(r.Context(), caller, requestID, body.Decision, body.Comment)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Запрос не найден")
		case errors.Is(err, service.ErrForbidden):
			apierrors.Forbidden(w, "Решение доступно только администратору")
		case errors.Is(err, service.ErrInvalidState):
			apierrors.InvalidState(w, "Решение по запросу уже принято")
		default:
			h.logger.Error("Ошибка решения по запросу", slog.String("request_id", requestID), slog.String("error", err.Error()))
			apierrors.InternalError(w, "Ошибка решения по запросу")
		}
		return
	}

	h.stats.Invalidate()
	writeJSON(w, http.StatusOK, mapRequest(req))
}
